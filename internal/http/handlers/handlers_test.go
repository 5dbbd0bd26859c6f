package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"renderly/internal/account"
	"renderly/internal/domain"
	"renderly/internal/generation"
	"renderly/internal/http/handlers"
	"renderly/internal/http/httpapi"
	"renderly/internal/infra"
	"renderly/internal/purchase"
	"renderly/internal/security"
)

type memUsers struct {
	mu    sync.Mutex
	byID  map[string]*domain.User
	byEml map[string]*domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]*domain.User{}, byEml: map[string]*domain.User{}}
}

func (m *memUsers) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := *user
	m.byID[u.ID] = &u
	m.byEml[u.Email] = &u
	return nil
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		out := *u
		return &out, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byEml[email]; ok {
		out := *u
		return &out, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) UpsertByGoogleSub(ctx context.Context, user *domain.User) (*domain.User, error) {
	if err := m.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

type memLedger struct {
	mu      sync.Mutex
	opening map[string]int
	entries []domain.LedgerEntry
}

func (m *memLedger) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memLedger) Balance(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opening == nil {
		return 0, nil
	}
	return m.opening[userID], nil
}

func (m *memLedger) ListRecent(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LedgerEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

type memJobs struct {
	mu   sync.Mutex
	rows map[string]*domain.Job
}

func newMemJobs() *memJobs { return &memJobs{rows: map[string]*domain.Job{}} }

func (m *memJobs) Create(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := *job
	m.rows[j.ID] = &j
	return nil
}

func (m *memJobs) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, resultRef, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.rows[jobID]; ok && !j.Status.Terminal() {
		j.Status = status
		j.ResultRef = resultRef
		j.ErrorMessage = errMsg
	}
	return nil
}

func (m *memJobs) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.rows[jobID]; ok {
		out := *j
		return &out, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memJobs) GetActiveByUser(ctx context.Context, userID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.rows {
		if j.UserID == userID && !j.Status.Terminal() {
			out := *j
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memJobs) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, j := range m.rows {
		if j.UserID == userID {
			out = append(out, *j)
		}
	}
	return out, nil
}

type manualBackend struct {
	mu   sync.Mutex
	done map[string]generation.ResultFunc
}

func (b *manualBackend) RequestGeneration(ctx context.Context, job domain.Job, done generation.ResultFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done == nil {
		b.done = map[string]generation.ResultFunc{}
	}
	b.done[job.ID] = done
	return nil
}

func (b *manualBackend) deliver(jobID, resultRef string, jobErr error) {
	b.mu.Lock()
	fn := b.done[jobID]
	b.mu.Unlock()
	if fn != nil {
		fn(jobID, resultRef, jobErr)
	}
}

type testEnv struct {
	server  *httptest.Server
	users   *memUsers
	jobs    *memJobs
	ledger  *memLedger
	backend *manualBackend
	cfg     *infra.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := infra.Logger(zerolog.New(io.Discard))
	cfg := &infra.Config{
		JWTSecret:         "test-secret",
		JWTTTL:            time.Hour,
		SignupCreditGrant: 2,
	}

	users := newMemUsers()
	jobs := newMemJobs()
	ledger := &memLedger{}
	backend := &manualBackend{}

	auth := account.NewAuthenticator(users, nil, &logger)
	hub := account.NewHub(jobs, ledger, backend, auth, &logger)
	catalog := purchase.NewCatalog()

	app := &handlers.App{
		Users:     users,
		Jobs:      jobs,
		Ledger:    ledger,
		Hub:       hub,
		Catalog:   catalog,
		Purchases: purchase.NewCatalogProcessor(catalog, &logger),
		Config:    cfg,
		Logger:    &logger,
	}

	server := httptest.NewServer(httpapi.NewRouter(app, httpapi.RouterOptions{}))
	t.Cleanup(server.Close)

	return &testEnv{server: server, users: users, jobs: jobs, ledger: ledger, backend: backend, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (e *testEnv) register(t *testing.T, email string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email":    email,
		"password": "hunter2-long",
		"name":     "Test User",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d body = %v", resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("register returned no token: %v", body)
	}
	return token
}

func errorCode(body map[string]any) string {
	env, _ := body["error"].(map[string]any)
	code, _ := env["code"].(string)
	return code
}

func TestRegisterGrantsSignupCredits(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "new@user.com")

	resp, body := env.do(t, http.MethodGet, "/v1/credits", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("credits status = %d", resp.StatusCode)
	}
	if balance := body["balance"].(float64); balance != 2 {
		t.Fatalf("balance = %v, want 2", balance)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@b.com")

	resp, body := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "a@b.com",
		"password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if code := errorCode(body); code != "auth_rejected" {
		t.Fatalf("code = %q", code)
	}
}

func TestLoginThenLogout(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@b.com")

	resp, body := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "a@b.com",
		"password": "hunter2-long",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d body = %v", resp.StatusCode, body)
	}
	token := body["token"].(string)
	session := body["session"].(map[string]any)
	if session["status"] != "signed_in" {
		t.Fatalf("session = %v", session)
	}

	resp, body = env.do(t, http.MethodPost, "/v1/auth/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}
	session = body["session"].(map[string]any)
	if session["status"] != "signed_out" {
		t.Fatalf("session after logout = %v", session)
	}
}

func TestGenerateLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "maker@b.com")

	resp, body := env.do(t, http.MethodPost, "/v1/videos/generate", token, map[string]string{
		"image_ref":  "uploads/photo.png",
		"prompt":     "slow zoom",
		"resolution": "480p",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("generate status = %d body = %v", resp.StatusCode, body)
	}
	jobID := body["id"].(string)
	if body["status"] != "running" {
		t.Fatalf("job status = %v", body["status"])
	}

	// One job at a time.
	resp, body = env.do(t, http.MethodPost, "/v1/videos/generate", token, map[string]string{
		"image_ref": "uploads/photo.png",
		"prompt":    "another",
	})
	if resp.StatusCode != http.StatusConflict || errorCode(body) != "job_already_running" {
		t.Fatalf("second generate = %d %v", resp.StatusCode, body)
	}

	env.backend.deliver(jobID, "videos/out.mp4", nil)

	resp, body = env.do(t, http.MethodGet, "/v1/videos/"+jobID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status status = %d", resp.StatusCode)
	}
	if body["status"] != "completed" || body["result_ref"] != "videos/out.mp4" {
		t.Fatalf("job = %v", body)
	}

	// 2 signup credits - 1 finalized.
	resp, body = env.do(t, http.MethodGet, "/v1/credits", token, nil)
	if balance := body["balance"].(float64); balance != 1 {
		t.Fatalf("balance = %v, want 1", balance)
	}
}

func TestGenerateInsufficientCredits(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.SignupCreditGrant = 0
	token := env.register(t, "broke@b.com")

	resp, body := env.do(t, http.MethodPost, "/v1/videos/generate", token, map[string]string{
		"image_ref":  "uploads/photo.png",
		"prompt":     "zoom",
		"resolution": "720p",
	})
	if resp.StatusCode != http.StatusPaymentRequired || errorCode(body) != "insufficient_credits" {
		t.Fatalf("generate = %d %v", resp.StatusCode, body)
	}
}

func TestCancelRefundsReservation(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "c@b.com")

	_, body := env.do(t, http.MethodPost, "/v1/videos/generate", token, map[string]string{
		"image_ref":  "uploads/photo.png",
		"prompt":     "zoom",
		"resolution": "720p",
	})
	jobID := body["id"].(string)

	resp, body := env.do(t, http.MethodPost, "/v1/videos/"+jobID+"/cancel", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d body = %v", resp.StatusCode, body)
	}
	if body["status"] != "cancelled" {
		t.Fatalf("status = %v", body["status"])
	}

	_, body = env.do(t, http.MethodGet, "/v1/credits", token, nil)
	if balance := body["balance"].(float64); balance != 2 {
		t.Fatalf("balance = %v, want 2", balance)
	}

	// A late worker result cannot resurrect the cancelled job.
	env.backend.deliver(jobID, "videos/out.mp4", nil)
	_, body = env.do(t, http.MethodGet, "/v1/videos/"+jobID, token, nil)
	if body["status"] != "cancelled" {
		t.Fatalf("status after late result = %v", body["status"])
	}
}

func TestPurchaseAddsCredits(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "buyer@b.com")

	resp, body := env.do(t, http.MethodPost, "/v1/credits/purchase", token, map[string]string{
		"plan_id": "starter",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("purchase status = %d body = %v", resp.StatusCode, body)
	}
	if balance := body["balance"].(float64); balance != 14 {
		t.Fatalf("balance = %v, want 14", balance)
	}

	resp, body = env.do(t, http.MethodPost, "/v1/credits/purchase", token, map[string]string{
		"plan_id": "enterprise",
	})
	if resp.StatusCode != http.StatusBadRequest || errorCode(body) != "unsupported_plan" {
		t.Fatalf("bad plan = %d %v", resp.StatusCode, body)
	}
}

func TestPlansCatalog(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/v1/plans", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("plans status = %d", resp.StatusCode)
	}
	plans := body["plans"].([]any)
	if len(plans) != 3 {
		t.Fatalf("plans = %d", len(plans))
	}
	first := plans[0].(map[string]any)
	if first["currency"] != "USD" {
		t.Fatalf("default currency = %v", first["currency"])
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/v1/me", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	bad, err := security.SignSessionToken("other-secret", "u1", "en", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	resp, _ = env.do(t, http.MethodGet, "/v1/me", bad, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("forged token status = %d", resp.StatusCode)
	}
}
