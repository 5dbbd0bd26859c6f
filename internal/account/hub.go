package account

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"renderly/internal/credits"
	"renderly/internal/domain"
	"renderly/internal/generation"
	"renderly/internal/infra"
	"renderly/internal/session"
)

// Runtime is one user's live state: the credit ledger and the job tracker.
// Everything the HTTP layer mutates for a user goes through here, never
// straight to the database.
type Runtime struct {
	UserID  string
	Ledger  *credits.Ledger
	Tracker *generation.Tracker
}

// Hub hands out exactly one Runtime per user, hydrating it from Postgres on
// first use. It also owns the session managers so a login attempt and its
// logout see the same state machine.
type Hub struct {
	mu       sync.Mutex
	runtimes map[string]*Runtime
	sessions map[string]*session.Manager

	jobs    domain.JobRepository
	ledger  domain.LedgerRepository
	backend generation.Backend
	auth    session.Authenticator
	logger  *infra.Logger
}

func NewHub(jobs domain.JobRepository, ledger domain.LedgerRepository, backend generation.Backend, auth session.Authenticator, logger *infra.Logger) *Hub {
	return &Hub{
		runtimes: make(map[string]*Runtime),
		sessions: make(map[string]*session.Manager),
		jobs:     jobs,
		ledger:   ledger,
		backend:  backend,
		auth:     auth,
		logger:   logger,
	}
}

// ForUser returns the user's runtime, hydrating it on first access. The hub
// lock is held across hydration so two concurrent requests can never build
// two ledgers for the same user.
func (h *Hub) ForUser(ctx context.Context, userID string) (*Runtime, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rt, ok := h.runtimes[userID]; ok {
		return rt, nil
	}

	rt, err := h.hydrate(ctx, userID)
	if err != nil {
		return nil, err
	}
	h.runtimes[userID] = rt
	return rt, nil
}

func (h *Hub) hydrate(ctx context.Context, userID string) (*Runtime, error) {
	balance, err := h.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("hydrate balance: %w", err)
	}

	ledger := credits.NewLedger(userID, balance, h.ledger, *h.logger)
	tracker := generation.NewTracker(userID, ledger, h.backend, h.jobs, *h.logger)

	history, err := h.jobs.ListByUser(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("hydrate history: %w", err)
	}
	// The repository lists newest first; the tracker keeps history oldest
	// first.
	terminal := history[:0:0]
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Status.Terminal() {
			terminal = append(terminal, history[i])
		}
	}
	tracker.SeedHistory(terminal)

	active, err := h.jobs.GetActiveByUser(ctx, userID)
	switch {
	case err == nil:
		// The opening balance already carries this job's debit; the fresh
		// ledger must know the token so the job can still refund or finalize.
		if adoptErr := ledger.Adopt(active.ReservationID, active.Cost); adoptErr != nil {
			h.logger.Warn().Err(adoptErr).Str("user_id", userID).Str("job_id", active.ID).Msg("hub: adopt reservation")
		}
		if resumeErr := tracker.Resume(ctx, *active); resumeErr != nil {
			h.logger.Warn().Err(resumeErr).Str("user_id", userID).Str("job_id", active.ID).Msg("hub: resume active job")
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		return nil, fmt.Errorf("hydrate active job: %w", err)
	}

	h.logger.Debug().Str("user_id", userID).Int("balance", balance).Msg("hub: runtime hydrated")
	return &Runtime{UserID: userID, Ledger: ledger, Tracker: tracker}, nil
}

// SessionFor returns the session manager for a login key, creating an idle
// one if needed. The key is whatever identifies the client before sign-in
// finishes: a lowercased email, or the raw provider assertion.
func (h *Hub) SessionFor(key string) *session.Manager {
	h.mu.Lock()
	defer h.mu.Unlock()
	if mgr, ok := h.sessions[key]; ok {
		return mgr
	}
	mgr := session.NewManager(h.auth, *h.logger)
	h.sessions[key] = mgr
	return mgr
}

// BindSession re-keys a manager to its user id after sign-in so logout can
// find it, and hooks logout to drop the tracker's result listener. The job
// itself keeps running and settles through the ledger either way.
func (h *Hub) BindSession(ctx context.Context, key, userID string) error {
	rt, err := h.ForUser(ctx, userID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	mgr, ok := h.sessions[key]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("no session for key")
	}
	if key != userID {
		delete(h.sessions, key)
		h.sessions[userID] = mgr
	}
	h.mu.Unlock()

	mgr.SetLogoutHook(rt.Tracker.DropNotify)
	return nil
}

// ReleaseSession drops a manager that never reached signed_in, keeping the
// map from accumulating one entry per failed attempt.
func (h *Hub) ReleaseSession(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if mgr, ok := h.sessions[key]; ok {
		switch mgr.Current().Status {
		case domain.SessionSignedOut, domain.SessionFailed:
			delete(h.sessions, key)
		}
	}
}

// Logout signs the user's manager out if one is live. Logging out a user the
// hub never saw is a no-op, matching logout-is-always-allowed semantics.
func (h *Hub) Logout(userID string) domain.Session {
	h.mu.Lock()
	mgr, ok := h.sessions[userID]
	h.mu.Unlock()
	if !ok {
		return domain.Session{Status: domain.SessionSignedOut}
	}
	return mgr.Logout()
}
