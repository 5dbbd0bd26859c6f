package domain

import "context"

// UserRepository defines access methods for users.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpsertByGoogleSub(ctx context.Context, user *User) (*User, error)
}

// JobRepository defines persistence for generation jobs.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, resultRef, errMsg string) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	GetActiveByUser(ctx context.Context, userID string) (*Job, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Job, error)
}

// LedgerRepository persists credit movements and balances.
type LedgerRepository interface {
	Append(ctx context.Context, entry *LedgerEntry) error
	Balance(ctx context.Context, userID string) (int, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]LedgerEntry, error)
}
