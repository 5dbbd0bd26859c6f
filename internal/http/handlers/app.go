package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"renderly/internal/account"
	"renderly/internal/domain"
	"renderly/internal/infra"
	"renderly/internal/middleware"
	"renderly/internal/purchase"
	"renderly/internal/storage"
)

// App bundles the dependencies the HTTP handlers need. Handlers go through
// the hub for anything that moves credits or jobs; repositories are read
// directly only for plain lookups.
type App struct {
	Users     domain.UserRepository
	Jobs      domain.JobRepository
	Ledger    domain.LedgerRepository
	Hub       *account.Hub
	Catalog   *purchase.Catalog
	Purchases purchase.Processor
	Store     *storage.FileStore
	Config    *infra.Config
	Logger    *infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorEnvelope{Error: errorBody{Code: errCode, Message: message}})
}

// domainError translates domain sentinels into HTTP error responses.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		a.error(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, domain.ErrUnsupportedPlan):
		a.error(w, http.StatusBadRequest, "unsupported_plan", "unknown plan")
	case errors.Is(err, domain.ErrInvalidCredentials):
		a.error(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, domain.ErrAuthRejected):
		a.error(w, http.StatusUnauthorized, "auth_rejected", "authentication rejected")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.error(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrAuthInProgress):
		a.error(w, http.StatusConflict, "auth_in_progress", "an authentication attempt is already running")
	case errors.Is(err, domain.ErrJobAlreadyRunning):
		a.error(w, http.StatusConflict, "job_already_running", "a generation job is already running")
	case errors.Is(err, domain.ErrNotCancellable):
		a.error(w, http.StatusConflict, "not_cancellable", "job is already settled")
	case errors.Is(err, domain.ErrAlreadyFinalized):
		a.error(w, http.StatusConflict, "already_finalized", "reservation already settled")
	case errors.Is(err, domain.ErrProviderError), errors.Is(err, domain.ErrProviderFailure):
		a.error(w, http.StatusBadGateway, "provider_error", "upstream provider failed")
	default:
		a.Logger.Error().Err(err).Msg("http: unhandled error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// runtime resolves the caller's hub runtime or writes the error response.
func (a *App) runtime(w http.ResponseWriter, r *http.Request) (*account.Runtime, string, bool) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return nil, "", false
	}
	rt, err := a.Hub.ForUser(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("http: hydrate runtime")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return nil, "", false
	}
	return rt, userID, true
}
