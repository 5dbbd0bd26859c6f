// Package generation owns the lifecycle of a user's video generation job:
// queued -> running -> completed/failed, with cancellation from either
// non-terminal state. One non-terminal job per user, enforced here and not
// just in the UI, so the credit ledger can never be double-reserved.
package generation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"renderly/internal/credits"
	"renderly/internal/domain"
)

// ResultFunc delivers the backend's outcome for a dispatched job. A nil
// jobErr means resultRef points at the generated video.
type ResultFunc func(jobID, resultRef string, jobErr error)

// Backend dispatches generation work asynchronously and reports back through
// the ResultFunc, possibly from another goroutine.
type Backend interface {
	RequestGeneration(ctx context.Context, job domain.Job, done ResultFunc) error
}

// Store persists job state transitions. It may be nil for in-memory use.
type Store interface {
	Create(ctx context.Context, job *domain.Job) error
	UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, resultRef, errMsg string) error
}

// Notifier receives terminal job snapshots for delivery to the client. It is
// dropped on logout: the job still settles, nobody is told about it.
type Notifier func(job domain.Job)

// Tracker coordinates a single user's jobs against the credit ledger and the
// generation backend.
type Tracker struct {
	mu      sync.Mutex
	userID  string
	active  *domain.Job
	history []domain.Job
	ledger  *credits.Ledger
	backend Backend
	store   Store
	notify  Notifier
	logger  zerolog.Logger
}

// NewTracker constructs an idle tracker for the given user.
func NewTracker(userID string, ledger *credits.Ledger, backend Backend, store Store, logger zerolog.Logger) *Tracker {
	return &Tracker{
		userID:  userID,
		ledger:  ledger,
		backend: backend,
		store:   store,
		logger:  logger,
	}
}

// SetNotify registers the terminal-result listener for the current client.
func (t *Tracker) SetNotify(fn Notifier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notify = fn
}

// DropNotify discards the result listener. Called on logout.
func (t *Tracker) DropNotify() {
	t.SetNotify(nil)
}

// Active returns the most recent job and whether it is still non-terminal.
func (t *Tracker) Active() (domain.Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return domain.Job{}, false
	}
	return *t.active, !t.active.Status.Terminal()
}

// History returns terminal jobs, oldest first.
func (t *Tracker) History() []domain.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Job, len(t.history))
	copy(out, t.history)
	return out
}

// SeedHistory loads previously persisted terminal jobs, oldest first. Used
// when hydrating a tracker from storage.
func (t *Tracker) SeedHistory(jobs []domain.Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append([]domain.Job(nil), jobs...)
}

// Submit accepts a generation request: reserves cost credits, persists the
// job and dispatches it to the backend. Fails with domain.ErrInvalidInput on
// missing image or prompt, domain.ErrJobAlreadyRunning while a non-terminal
// job exists, and propagates domain.ErrInsufficientCredits from the ledger.
func (t *Tracker) Submit(ctx context.Context, imageRef, prompt string, resolution domain.Resolution, cost int) (domain.Job, error) {
	imageRef = strings.TrimSpace(imageRef)
	prompt = strings.TrimSpace(prompt)
	if imageRef == "" || prompt == "" {
		return domain.Job{}, domain.ErrInvalidInput
	}
	if cost <= 0 {
		return domain.Job{}, domain.ErrInvalidAmount
	}

	t.mu.Lock()
	if t.active != nil && !t.active.Status.Terminal() {
		t.mu.Unlock()
		return domain.Job{}, domain.ErrJobAlreadyRunning
	}

	token, err := t.ledger.Reserve(ctx, cost)
	if err != nil {
		t.mu.Unlock()
		return domain.Job{}, err
	}

	now := time.Now().UTC()
	job := domain.Job{
		ID:            uuid.NewString(),
		UserID:        t.userID,
		Status:        domain.JobStatusQueued,
		InputImageRef: imageRef,
		Prompt:        prompt,
		Resolution:    resolution,
		Cost:          cost,
		ReservationID: token,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if t.store != nil {
		if err := t.store.Create(ctx, &job); err != nil {
			t.mu.Unlock()
			if refundErr := t.ledger.Refund(ctx, token); refundErr != nil {
				t.logger.Error().Err(refundErr).Str("job_id", job.ID).Msg("generation: refund after create failure")
			}
			return domain.Job{}, err
		}
	}

	// The persisted row stays queued until the worker claims it; the
	// in-memory state is what the client observes.
	job.Status = domain.JobStatusRunning
	job.UpdatedAt = time.Now().UTC()
	t.active = &job
	dispatched := job
	t.mu.Unlock()

	if err := t.backend.RequestGeneration(ctx, dispatched, t.OnResult); err != nil {
		t.logger.Error().Err(err).Str("job_id", dispatched.ID).Msg("generation: dispatch failed")
		t.OnResult(dispatched.ID, "", err)
		return t.snapshot(dispatched.ID), nil
	}
	return dispatched, nil
}

// OnResult finalizes or refunds the reservation and moves the job to its
// terminal state. Results for unknown or already-terminal jobs are ignored;
// a late backend answer after cancel or logout settles nothing twice.
func (t *Tracker) OnResult(jobID, resultRef string, jobErr error) {
	_, err := t.finish(jobID, func(job *domain.Job) {
		if jobErr != nil {
			t.refund(job)
			job.Status = domain.JobStatusFailed
			job.ErrorMessage = jobErr.Error()
			return
		}
		if err := t.ledger.Finalize(context.Background(), job.ReservationID); err != nil {
			t.logger.Warn().Err(err).Str("job_id", job.ID).Msg("generation: finalize reservation")
		}
		job.Status = domain.JobStatusCompleted
		job.ResultRef = resultRef
	})
	if err != nil {
		t.logger.Debug().Str("job_id", jobID).Msg("generation: stale result ignored")
	}
}

// Cancel aborts a queued or running job, refunding its reservation. The
// backend call is not forcibly interrupted; its eventual result is ignored.
func (t *Tracker) Cancel(jobID string) (domain.Job, error) {
	return t.finish(jobID, func(job *domain.Job) {
		t.refund(job)
		job.Status = domain.JobStatusCancelled
	})
}

// Resume re-adopts a non-terminal job found in storage after a restart and
// re-arms the backend watch for it.
func (t *Tracker) Resume(ctx context.Context, job domain.Job) error {
	t.mu.Lock()
	if t.active != nil && !t.active.Status.Terminal() {
		t.mu.Unlock()
		return domain.ErrJobAlreadyRunning
	}
	adopted := job
	adopted.Status = domain.JobStatusRunning
	t.active = &adopted
	t.mu.Unlock()
	return t.backend.RequestGeneration(ctx, adopted, t.OnResult)
}

// finish runs the terminal transition under the tracker lock. The ledger has
// its own mutex and never calls back into the tracker, so settling it while
// holding t.mu cannot deadlock.
func (t *Tracker) finish(jobID string, transition func(job *domain.Job)) (domain.Job, error) {
	t.mu.Lock()
	if t.active == nil || t.active.ID != jobID {
		// An older history entry is already terminal, not missing.
		for i := range t.history {
			if t.history[i].ID == jobID {
				t.mu.Unlock()
				return domain.Job{}, domain.ErrNotCancellable
			}
		}
		t.mu.Unlock()
		return domain.Job{}, domain.ErrNotFound
	}
	if t.active.Status.Terminal() {
		t.mu.Unlock()
		return domain.Job{}, domain.ErrNotCancellable
	}
	transition(t.active)
	t.active.UpdatedAt = time.Now().UTC()
	done := *t.active
	t.history = append(t.history, done)
	notify := t.notify
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.UpdateStatus(context.Background(), done.ID, done.Status, done.ResultRef, done.ErrorMessage); err != nil {
			t.logger.Error().Err(err).Str("job_id", done.ID).Msg("generation: persist terminal status")
		}
	}
	if notify != nil {
		notify(done)
	}
	return done, nil
}

func (t *Tracker) refund(job *domain.Job) {
	if err := t.ledger.Refund(context.Background(), job.ReservationID); err != nil {
		t.logger.Warn().Err(err).Str("job_id", job.ID).Msg("generation: refund reservation")
	}
}

func (t *Tracker) snapshot(jobID string) domain.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != nil && t.active.ID == jobID {
		return *t.active
	}
	for i := len(t.history) - 1; i >= 0; i-- {
		if t.history[i].ID == jobID {
			return t.history[i]
		}
	}
	return domain.Job{}
}
