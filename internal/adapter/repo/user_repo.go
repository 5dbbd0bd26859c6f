package repo

import (
	"context"

	"renderly/internal/domain"
	"renderly/internal/infra"
	"renderly/internal/sqlinline"
)

// UserRepositoryPG implements domain.UserRepository backed by PostgreSQL.
type UserRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(sql infra.SQLExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{sql: sql}
}

// Create inserts a new user record.
func (r *UserRepositoryPG) Create(ctx context.Context, user *domain.User) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertUser,
		user.ID,
		user.Email,
		user.Name,
		user.Picture,
		user.GoogleSub,
		user.PasswordHash,
		user.Locale,
	)
	return err
}

// GetByID fetches a user by identifier.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.scanOne(r.sql.QueryRow(ctx, sqlinline.QSelectUserByID, id))
}

// GetByEmail fetches a user by email address.
func (r *UserRepositoryPG) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanOne(r.sql.QueryRow(ctx, sqlinline.QSelectUserByEmail, email))
}

// UpsertByGoogleSub inserts or refreshes a user from federated sign-in claims.
func (r *UserRepositoryPG) UpsertByGoogleSub(ctx context.Context, user *domain.User) (*domain.User, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QUpsertGoogleUser,
		user.ID,
		user.Email,
		user.Name,
		user.Picture,
		user.GoogleSub,
		user.Locale,
	)
	return r.scanOne(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *UserRepositoryPG) scanOne(row rowScanner) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Picture,
		&user.GoogleSub,
		&user.PasswordHash,
		&user.Locale,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

var _ domain.UserRepository = (*UserRepositoryPG)(nil)
