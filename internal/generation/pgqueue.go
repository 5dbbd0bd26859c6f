package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"renderly/internal/domain"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultJobDeadline  = 10 * time.Minute
)

// JobReader is the slice of the job repository the queue backend needs.
type JobReader interface {
	GetByID(ctx context.Context, jobID string) (*domain.Job, error)
}

// PGQueue is a Backend that relies on the worker process: the job row is
// already queued in Postgres by the tracker's store, the worker claims and
// executes it, and this backend watches the row until it turns terminal.
type PGQueue struct {
	base     context.Context
	jobs     JobReader
	interval time.Duration
	deadline time.Duration
	logger   zerolog.Logger
}

// PGQueueOptions tune the watch loop. Zero values fall back to defaults.
type PGQueueOptions struct {
	PollInterval time.Duration
	JobDeadline  time.Duration
}

// NewPGQueue constructs a queue backend. Watch goroutines are bound to base,
// not to the request context that submitted the job, so they survive the
// HTTP request that started them.
func NewPGQueue(base context.Context, jobs JobReader, logger zerolog.Logger, opts PGQueueOptions) *PGQueue {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.JobDeadline <= 0 {
		opts.JobDeadline = defaultJobDeadline
	}
	return &PGQueue{
		base:     base,
		jobs:     jobs,
		interval: opts.PollInterval,
		deadline: opts.JobDeadline,
		logger:   logger,
	}
}

// RequestGeneration starts a watcher for the queued job row.
func (q *PGQueue) RequestGeneration(_ context.Context, job domain.Job, done ResultFunc) error {
	if done == nil {
		return errors.New("generation: nil result callback")
	}
	go q.watch(job, done)
	return nil
}

func (q *PGQueue) watch(job domain.Job, done ResultFunc) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()
	expires := time.NewTimer(q.deadline)
	defer expires.Stop()

	for {
		select {
		case <-q.base.Done():
			return
		case <-expires.C:
			done(job.ID, "", fmt.Errorf("%w: generation timed out after %s", domain.ErrProviderFailure, q.deadline))
			return
		case <-ticker.C:
		}

		row, err := q.jobs.GetByID(q.base, job.ID)
		if err != nil {
			q.logger.Warn().Err(err).Str("job_id", job.ID).Msg("pgqueue: poll failed")
			continue
		}
		switch row.Status {
		case domain.JobStatusCompleted:
			done(job.ID, row.ResultRef, nil)
			return
		case domain.JobStatusFailed:
			msg := row.ErrorMessage
			if msg == "" {
				msg = "generation failed"
			}
			done(job.ID, "", fmt.Errorf("%w: %s", domain.ErrProviderFailure, msg))
			return
		case domain.JobStatusCancelled:
			// The tracker cancelled the job itself; nothing to report.
			return
		}
	}
}

var _ Backend = (*PGQueue)(nil)
