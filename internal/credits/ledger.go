// Package credits owns a user's credit balance. Every debit happens through a
// reservation that is later settled exactly once, so a failed or cancelled
// generation always returns its credit and concurrent submissions can never
// spend the same credit twice.
package credits

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"renderly/internal/domain"
)

// Journal receives ledger movements for persistence. Append failures are
// logged and do not roll back the in-memory balance.
type Journal interface {
	Append(ctx context.Context, entry *domain.LedgerEntry) error
}

type reservationState int

const (
	reservationPending reservationState = iota
	reservationFinalized
	reservationRefunded
)

type reservation struct {
	state reservationState
	cost  int
}

// Ledger serializes all balance mutations behind a single mutex. Reserve is a
// pessimistic debit: the balance drops immediately and comes back only through
// Refund.
type Ledger struct {
	mu           sync.Mutex
	userID       string
	balance      int
	reservations map[string]*reservation
	journal      Journal
	logger       zerolog.Logger
}

// NewLedger constructs a ledger for the given user seeded with an opening
// balance. The journal may be nil, in which case movements are kept in memory
// only.
func NewLedger(userID string, opening int, journal Journal, logger zerolog.Logger) *Ledger {
	if opening < 0 {
		opening = 0
	}
	return &Ledger{
		userID:       userID,
		balance:      opening,
		reservations: make(map[string]*reservation),
		journal:      journal,
		logger:       logger,
	}
}

// Balance returns the current available balance.
func (l *Ledger) Balance() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Reserve debits cost from the balance and returns an opaque token to settle
// the debit with. Returns domain.ErrInvalidAmount for non-positive costs and
// domain.ErrInsufficientCredits when the balance cannot cover the cost.
func (l *Ledger) Reserve(ctx context.Context, cost int) (string, error) {
	if cost <= 0 {
		return "", domain.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balance < cost {
		return "", domain.ErrInsufficientCredits
	}
	token := uuid.NewString()
	l.balance -= cost
	l.reservations[token] = &reservation{state: reservationPending, cost: cost}
	l.record(ctx, domain.LedgerEntryReserve, -cost, token)
	return token, nil
}

// Adopt registers a reservation made before a restart as pending again. The
// opening balance already reflects the debit, so nothing moves here; the
// token just becomes settleable so the resumed job can refund or finalize it.
// Adopting a token the ledger already knows is a no-op.
func (l *Ledger) Adopt(token string, cost int) error {
	if strings.TrimSpace(token) == "" {
		return domain.ErrInvalidInput
	}
	if cost <= 0 {
		return domain.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.reservations[token]; ok {
		return nil
	}
	l.reservations[token] = &reservation{state: reservationPending, cost: cost}
	l.logger.Debug().Str("user_id", l.userID).Str("token", token).Int("cost", cost).Msg("credits: reservation adopted")
	return nil
}

// Refund returns a pending reservation's credits to the balance. Settling a
// token twice, or settling an unknown token, is a logged no-op reported as
// domain.ErrAlreadyFinalized.
func (l *Ledger) Refund(ctx context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.reservations[token]
	if !ok || res.state != reservationPending {
		l.logger.Warn().Str("user_id", l.userID).Str("token", token).Msg("credits: refund on settled reservation ignored")
		return domain.ErrAlreadyFinalized
	}
	res.state = reservationRefunded
	l.balance += res.cost
	l.record(ctx, domain.LedgerEntryRefund, res.cost, token)
	return nil
}

// Finalize marks a pending reservation as permanently consumed. Like Refund it
// is a logged no-op on already-settled tokens.
func (l *Ledger) Finalize(ctx context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.reservations[token]
	if !ok || res.state != reservationPending {
		l.logger.Warn().Str("user_id", l.userID).Str("token", token).Msg("credits: finalize on settled reservation ignored")
		return domain.ErrAlreadyFinalized
	}
	res.state = reservationFinalized
	l.record(ctx, domain.LedgerEntryFinalize, 0, token)
	return nil
}

// Credit adds purchased or granted credits to the balance and returns the new
// balance. Non-positive amounts fail with domain.ErrInvalidAmount.
func (l *Ledger) Credit(ctx context.Context, amount int, kind domain.LedgerEntryKind) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	if kind != domain.LedgerEntryPurchase && kind != domain.LedgerEntryGrant {
		return 0, domain.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance += amount
	l.record(ctx, kind, amount, "")
	return l.balance, nil
}

// record appends a journal entry for the movement. Callers hold l.mu.
func (l *Ledger) record(ctx context.Context, kind domain.LedgerEntryKind, amount int, token string) {
	if l.journal == nil {
		return
	}
	entry := &domain.LedgerEntry{
		ID:            uuid.NewString(),
		UserID:        l.userID,
		Kind:          kind,
		Amount:        amount,
		ReservationID: token,
		BalanceAfter:  l.balance,
		CreatedAt:     time.Now().UTC(),
	}
	if err := l.journal.Append(ctx, entry); err != nil {
		l.logger.Error().Err(err).Str("user_id", l.userID).Str("kind", string(kind)).Msg("credits: journal append failed")
	}
}
