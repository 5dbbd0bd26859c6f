package repo

import (
	"context"

	"renderly/internal/domain"
	"renderly/internal/infra"
	"renderly/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a queued job row for the worker to claim.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.UserID,
		job.InputImageRef,
		job.Prompt,
		string(job.Resolution),
		job.Cost,
		job.ReservationID,
	)
	return err
}

// UpdateStatus moves a non-terminal row to the given status. Terminal rows
// are left untouched by the WHERE guard.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, resultRef, errMsg string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpdateJobStatus, jobID, string(status), resultRef, errMsg)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobByID, jobID))
}

// GetActiveByUser returns the user's most recent non-terminal job, or
// domain.ErrNotFound when none exists.
func (r *JobRepositoryPG) GetActiveByUser(ctx context.Context, userID string) (*domain.Job, error) {
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectActiveJobByUser, userID))
}

// ListByUser returns the user's jobs, newest first.
func (r *JobRepositoryPG) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListJobsByUser, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var resolution string
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Status,
		&job.InputImageRef,
		&job.Prompt,
		&resolution,
		&job.Cost,
		&job.ReservationID,
		&job.ResultRef,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Resolution = domain.Resolution(resolution)
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
