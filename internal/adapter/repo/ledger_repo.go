package repo

import (
	"context"

	"renderly/internal/domain"
	"renderly/internal/infra"
	"renderly/internal/sqlinline"
)

// LedgerRepositoryPG implements domain.LedgerRepository. Rows are an
// append-only audit trail; the balance is the balance_after of the latest
// entry.
type LedgerRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewLedgerRepository creates a new ledger repository backed by PostgreSQL.
func NewLedgerRepository(sql infra.SQLExecutor) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{sql: sql}
}

// Append writes one credit movement.
func (r *LedgerRepositoryPG) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertLedgerEntry,
		entry.ID,
		entry.UserID,
		string(entry.Kind),
		entry.Amount,
		entry.ReservationID,
		entry.JobID,
		entry.BalanceAfter,
		entry.CreatedAt,
	)
	return err
}

// Balance returns the user's current balance, zero for an empty ledger.
func (r *LedgerRepositoryPG) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectBalance, userID).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// ListRecent returns the newest ledger entries first.
func (r *LedgerRepositoryPG) ListRecent(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListLedgerEntries, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []domain.LedgerEntry
	for rows.Next() {
		var entry domain.LedgerEntry
		var kind string
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&kind,
			&entry.Amount,
			&entry.ReservationID,
			&entry.JobID,
			&entry.BalanceAfter,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.Kind = domain.LedgerEntryKind(kind)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

var _ domain.LedgerRepository = (*LedgerRepositoryPG)(nil)
