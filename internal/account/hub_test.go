package account

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"renderly/internal/domain"
	"renderly/internal/generation"
	"renderly/internal/infra"
)

type fakeLedgerRepo struct {
	mu      sync.Mutex
	balance int
	entries []domain.LedgerEntry
}

func (f *fakeLedgerRepo) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeLedgerRepo) Balance(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeLedgerRepo) ListRecent(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.LedgerEntry(nil), f.entries...), nil
}

type fakeJobRepo struct {
	mu      sync.Mutex
	active  *domain.Job
	history []domain.Job
}

func (f *fakeJobRepo) Create(ctx context.Context, job *domain.Job) error { return nil }

func (f *fakeJobRepo) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, resultRef, errMsg string) error {
	return nil
}

func (f *fakeJobRepo) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeJobRepo) GetActiveByUser(ctx context.Context, userID string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == nil {
		return nil, domain.ErrNotFound
	}
	job := *f.active
	return &job, nil
}

func (f *fakeJobRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Job(nil), f.history...), nil
}

type idleBackend struct {
	mu       sync.Mutex
	requests []string
	done     generation.ResultFunc
}

func (b *idleBackend) RequestGeneration(ctx context.Context, job domain.Job, done generation.ResultFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, job.ID)
	b.done = done
	return nil
}

func (b *idleBackend) deliver(jobID, resultRef string, jobErr error) {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	done(jobID, resultRef, jobErr)
}

type staticAuth struct {
	userID string
	err    error
}

func (a *staticAuth) Authenticate(ctx context.Context, creds domain.Credentials) (string, error) {
	return a.userID, a.err
}

func (a *staticAuth) AuthenticateProvider(ctx context.Context, provider, assertion string) (string, error) {
	return a.userID, a.err
}

func testLogger() *infra.Logger {
	l := infra.Logger(zerolog.New(io.Discard))
	return &l
}

func newTestHub(jobs *fakeJobRepo, ledger *fakeLedgerRepo, auth *staticAuth) (*Hub, *idleBackend) {
	backend := &idleBackend{}
	return NewHub(jobs, ledger, backend, auth, testLogger()), backend
}

func TestForUserHydratesOnce(t *testing.T) {
	ledger := &fakeLedgerRepo{balance: 7}
	jobs := &fakeJobRepo{history: []domain.Job{
		{ID: "old", UserID: "u1", Status: domain.JobStatusCompleted},
		{ID: "mid", UserID: "u1", Status: domain.JobStatusRunning},
	}}
	hub, _ := newTestHub(jobs, ledger, &staticAuth{userID: "u1"})

	rt, err := hub.ForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ForUser: %v", err)
	}
	if rt.Ledger.Balance() != 7 {
		t.Fatalf("balance = %d, want 7", rt.Ledger.Balance())
	}
	if got := len(rt.Tracker.History()); got != 1 {
		t.Fatalf("history = %d terminal jobs, want 1", got)
	}

	again, err := hub.ForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ForUser again: %v", err)
	}
	if again != rt {
		t.Fatalf("expected same runtime instance")
	}
}

func TestForUserResumesActiveJob(t *testing.T) {
	ledger := &fakeLedgerRepo{balance: 3}
	jobs := &fakeJobRepo{active: &domain.Job{ID: "j1", UserID: "u1", Status: domain.JobStatusQueued}}
	hub, backend := newTestHub(jobs, ledger, &staticAuth{userID: "u1"})

	rt, err := hub.ForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ForUser: %v", err)
	}

	active, ok := rt.Tracker.Active()
	if !ok || active.ID != "j1" {
		t.Fatalf("active = %+v ok=%v", active, ok)
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.requests) != 1 || backend.requests[0] != "j1" {
		t.Fatalf("backend requests = %v", backend.requests)
	}
}

func TestForUserResumedJobRefundsOnFailure(t *testing.T) {
	// Stored balance is post-debit: opening 2, one credit reserved for the
	// in-flight job before the restart.
	ledger := &fakeLedgerRepo{balance: 1}
	jobs := &fakeJobRepo{active: &domain.Job{
		ID:            "j1",
		UserID:        "u1",
		Status:        domain.JobStatusQueued,
		Cost:          1,
		ReservationID: "resv-1",
	}}
	hub, backend := newTestHub(jobs, ledger, &staticAuth{userID: "u1"})

	rt, err := hub.ForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ForUser: %v", err)
	}
	if got := rt.Ledger.Balance(); got != 1 {
		t.Fatalf("hydrated balance = %d, want 1", got)
	}

	backend.deliver("j1", "", errors.New("render failed"))

	if got := rt.Ledger.Balance(); got != 2 {
		t.Fatalf("balance after failed resumed job = %d, want 2", got)
	}
	job, ok := rt.Tracker.Active()
	if ok || job.Status != domain.JobStatusFailed {
		t.Fatalf("job = %+v ok=%v, want failed", job, ok)
	}
}

func TestForUserResumedJobCancelRefunds(t *testing.T) {
	ledger := &fakeLedgerRepo{balance: 0}
	jobs := &fakeJobRepo{active: &domain.Job{
		ID:            "j2",
		UserID:        "u1",
		Status:        domain.JobStatusRunning,
		Cost:          2,
		ReservationID: "resv-2",
	}}
	hub, _ := newTestHub(jobs, ledger, &staticAuth{userID: "u1"})

	rt, err := hub.ForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ForUser: %v", err)
	}
	if _, err := rt.Tracker.Cancel("j2"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got := rt.Ledger.Balance(); got != 2 {
		t.Fatalf("balance after cancel = %d, want 2", got)
	}
}

func TestForUserSeedsHistoryOldestFirst(t *testing.T) {
	// The repository lists newest first.
	jobs := &fakeJobRepo{history: []domain.Job{
		{ID: "newest", UserID: "u1", Status: domain.JobStatusCompleted},
		{ID: "oldest", UserID: "u1", Status: domain.JobStatusFailed},
	}}
	hub, _ := newTestHub(jobs, &fakeLedgerRepo{}, &staticAuth{userID: "u1"})

	rt, err := hub.ForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ForUser: %v", err)
	}
	history := rt.Tracker.History()
	if len(history) != 2 {
		t.Fatalf("history = %d jobs, want 2", len(history))
	}
	if history[0].ID != "oldest" || history[1].ID != "newest" {
		t.Fatalf("history order = [%s, %s], want [oldest, newest]", history[0].ID, history[1].ID)
	}
}

func TestSessionLifecycle(t *testing.T) {
	hub, _ := newTestHub(&fakeJobRepo{}, &fakeLedgerRepo{}, &staticAuth{userID: "u1"})

	mgr := hub.SessionFor("a@b.c")
	sess, err := mgr.Login(context.Background(), domain.Credentials{Email: "a@b.c", Password: "pw"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.Status != domain.SessionSignedIn || sess.UserID != "u1" {
		t.Fatalf("session = %+v", sess)
	}

	if err := hub.BindSession(context.Background(), "a@b.c", "u1"); err != nil {
		t.Fatalf("BindSession: %v", err)
	}
	if hub.SessionFor("u1") != mgr {
		t.Fatalf("manager not re-keyed to user id")
	}

	out := hub.Logout("u1")
	if out.Status != domain.SessionSignedOut {
		t.Fatalf("logout session = %+v", out)
	}
}

func TestLogoutUnknownUserIsNoop(t *testing.T) {
	hub, _ := newTestHub(&fakeJobRepo{}, &fakeLedgerRepo{}, &staticAuth{userID: "u1"})
	out := hub.Logout("ghost")
	if out.Status != domain.SessionSignedOut {
		t.Fatalf("session = %+v", out)
	}
}

func TestHubLoginFailure(t *testing.T) {
	hub, _ := newTestHub(&fakeJobRepo{}, &fakeLedgerRepo{}, &staticAuth{err: domain.ErrInvalidCredentials})

	mgr := hub.SessionFor("a@b.c")
	if _, err := mgr.Login(context.Background(), domain.Credentials{Email: "a@b.c", Password: "bad"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("err = %v", err)
	}
}
