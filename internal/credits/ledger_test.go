package credits

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"renderly/internal/domain"
)

type memJournal struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry
	err     error
}

func (j *memJournal) Append(_ context.Context, entry *domain.LedgerEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.entries = append(j.entries, *entry)
	return nil
}

func newTestLedger(t *testing.T, opening int) (*Ledger, *memJournal) {
	t.Helper()
	journal := &memJournal{}
	return NewLedger("user-1", opening, journal, zerolog.Nop()), journal
}

func TestReserveDebitsImmediately(t *testing.T) {
	ledger, _ := newTestLedger(t, 2)
	token, err := ledger.Reserve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Reserve() error: %v", err)
	}
	if token == "" {
		t.Fatalf("Reserve() returned empty token")
	}
	if got := ledger.Balance(); got != 1 {
		t.Fatalf("Balance() = %d, want 1", got)
	}
}

func TestReserveInsufficientCredits(t *testing.T) {
	ledger, _ := newTestLedger(t, 0)
	if _, err := ledger.Reserve(context.Background(), 1); !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("Reserve() error = %v, want ErrInsufficientCredits", err)
	}
	if got := ledger.Balance(); got != 0 {
		t.Fatalf("Balance() = %d, want 0 after rejected reserve", got)
	}
}

func TestReserveRejectsNonPositiveCost(t *testing.T) {
	ledger, _ := newTestLedger(t, 5)
	for _, cost := range []int{0, -1} {
		if _, err := ledger.Reserve(context.Background(), cost); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("Reserve(%d) error = %v, want ErrInvalidAmount", cost, err)
		}
	}
}

func TestRefundRestoresBalance(t *testing.T) {
	ledger, _ := newTestLedger(t, 2)
	token, err := ledger.Reserve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Reserve() error: %v", err)
	}
	if err := ledger.Refund(context.Background(), token); err != nil {
		t.Fatalf("Refund() error: %v", err)
	}
	if got := ledger.Balance(); got != 2 {
		t.Fatalf("Balance() = %d, want 2 after refund", got)
	}
}

func TestRefundIsIdempotentPerToken(t *testing.T) {
	ledger, _ := newTestLedger(t, 2)
	token, _ := ledger.Reserve(context.Background(), 1)
	if err := ledger.Refund(context.Background(), token); err != nil {
		t.Fatalf("first Refund() error: %v", err)
	}
	if err := ledger.Refund(context.Background(), token); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("second Refund() error = %v, want ErrAlreadyFinalized", err)
	}
	if got := ledger.Balance(); got != 2 {
		t.Fatalf("Balance() = %d, want 2 after double refund", got)
	}
}

func TestRefundAfterFinalizeIsNoOp(t *testing.T) {
	ledger, _ := newTestLedger(t, 2)
	token, _ := ledger.Reserve(context.Background(), 1)
	if err := ledger.Finalize(context.Background(), token); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}
	if err := ledger.Refund(context.Background(), token); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("Refund() after Finalize() error = %v, want ErrAlreadyFinalized", err)
	}
	if got := ledger.Balance(); got != 1 {
		t.Fatalf("Balance() = %d, want 1: finalized credit must stay spent", got)
	}
}

func TestFinalizeUnknownToken(t *testing.T) {
	ledger, _ := newTestLedger(t, 2)
	if err := ledger.Finalize(context.Background(), "nope"); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("Finalize() error = %v, want ErrAlreadyFinalized", err)
	}
}

func TestAdoptMakesTokenSettleable(t *testing.T) {
	// Opening balance already carries the debit, as after a restart.
	ledger, journal := newTestLedger(t, 1)
	if err := ledger.Adopt("resv-1", 1); err != nil {
		t.Fatalf("Adopt() error: %v", err)
	}
	if got := ledger.Balance(); got != 1 {
		t.Fatalf("Balance() = %d, adopt must not move the balance", got)
	}

	if err := ledger.Refund(context.Background(), "resv-1"); err != nil {
		t.Fatalf("Refund() error: %v", err)
	}
	if got := ledger.Balance(); got != 2 {
		t.Fatalf("Balance() = %d, want 2 after refunding adopted token", got)
	}
	if len(journal.entries) != 1 || journal.entries[0].Kind != domain.LedgerEntryRefund {
		t.Fatalf("journal = %+v, want one refund entry", journal.entries)
	}
}

func TestAdoptedTokenFinalizes(t *testing.T) {
	ledger, _ := newTestLedger(t, 0)
	if err := ledger.Adopt("resv-1", 2); err != nil {
		t.Fatalf("Adopt() error: %v", err)
	}
	if err := ledger.Finalize(context.Background(), "resv-1"); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}
	if err := ledger.Refund(context.Background(), "resv-1"); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("Refund() after finalize error = %v, want ErrAlreadyFinalized", err)
	}
	if got := ledger.Balance(); got != 0 {
		t.Fatalf("Balance() = %d, want 0", got)
	}
}

func TestAdoptValidatesInput(t *testing.T) {
	ledger, _ := newTestLedger(t, 1)
	if err := ledger.Adopt("", 1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("Adopt(empty token) error = %v, want ErrInvalidInput", err)
	}
	if err := ledger.Adopt("resv-1", 0); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("Adopt(zero cost) error = %v, want ErrInvalidAmount", err)
	}

	token, err := ledger.Reserve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Reserve() error: %v", err)
	}
	if err := ledger.Adopt(token, 5); err != nil {
		t.Fatalf("Adopt(known token) error: %v, want no-op", err)
	}
	if err := ledger.Refund(context.Background(), token); err != nil {
		t.Fatalf("Refund() error: %v", err)
	}
	if got := ledger.Balance(); got != 1 {
		t.Fatalf("Balance() = %d, want 1 (adopt must not change a live reservation)", got)
	}
}

func TestCreditAddsToBalance(t *testing.T) {
	ledger, _ := newTestLedger(t, 2)
	balance, err := ledger.Credit(context.Background(), 12, domain.LedgerEntryPurchase)
	if err != nil {
		t.Fatalf("Credit() error: %v", err)
	}
	if balance != 14 {
		t.Fatalf("Credit() balance = %d, want 14", balance)
	}
}

func TestCreditRejectsNonPositiveAmount(t *testing.T) {
	ledger, _ := newTestLedger(t, 2)
	for _, amount := range []int{0, -3} {
		if _, err := ledger.Credit(context.Background(), amount, domain.LedgerEntryPurchase); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("Credit(%d) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestJournalRecordsMovements(t *testing.T) {
	ledger, journal := newTestLedger(t, 2)
	token, _ := ledger.Reserve(context.Background(), 1)
	_ = ledger.Refund(context.Background(), token)
	_, _ = ledger.Credit(context.Background(), 6, domain.LedgerEntryPurchase)

	journal.mu.Lock()
	defer journal.mu.Unlock()
	kinds := []domain.LedgerEntryKind{domain.LedgerEntryReserve, domain.LedgerEntryRefund, domain.LedgerEntryPurchase}
	if len(journal.entries) != len(kinds) {
		t.Fatalf("journal has %d entries, want %d", len(journal.entries), len(kinds))
	}
	for i, want := range kinds {
		if journal.entries[i].Kind != want {
			t.Fatalf("entry[%d].Kind = %s, want %s", i, journal.entries[i].Kind, want)
		}
	}
	if journal.entries[0].Amount != -1 || journal.entries[0].BalanceAfter != 1 {
		t.Fatalf("reserve entry = %+v, want amount -1 balance_after 1", journal.entries[0])
	}
}

func TestJournalFailureDoesNotBlockLedger(t *testing.T) {
	journal := &memJournal{err: errors.New("db down")}
	ledger := NewLedger("user-1", 2, journal, zerolog.Nop())
	if _, err := ledger.Reserve(context.Background(), 1); err != nil {
		t.Fatalf("Reserve() error = %v, journal failure must not fail the debit", err)
	}
	if got := ledger.Balance(); got != 1 {
		t.Fatalf("Balance() = %d, want 1", got)
	}
}

func TestConcurrentReservesNeverOverspend(t *testing.T) {
	const opening = 10
	ledger, _ := newTestLedger(t, opening)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Reserve(context.Background(), 1); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != opening {
		t.Fatalf("granted %d reservations, want %d", granted, opening)
	}
	if got := ledger.Balance(); got != 0 {
		t.Fatalf("Balance() = %d, want 0", got)
	}
}

func TestEveryReservationSettlesExactlyOnce(t *testing.T) {
	ledger, _ := newTestLedger(t, 3)
	tokens := make([]string, 3)
	for i := range tokens {
		token, err := ledger.Reserve(context.Background(), 1)
		if err != nil {
			t.Fatalf("Reserve() error: %v", err)
		}
		tokens[i] = token
	}

	// One of each outcome: success, failure, cancel.
	if err := ledger.Finalize(context.Background(), tokens[0]); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}
	if err := ledger.Refund(context.Background(), tokens[1]); err != nil {
		t.Fatalf("Refund() error: %v", err)
	}
	if err := ledger.Refund(context.Background(), tokens[2]); err != nil {
		t.Fatalf("Refund() error: %v", err)
	}

	// Any further settlement attempt is a no-op in both directions.
	for _, token := range tokens {
		if err := ledger.Finalize(context.Background(), token); !errors.Is(err, domain.ErrAlreadyFinalized) {
			t.Fatalf("re-Finalize(%s) error = %v, want ErrAlreadyFinalized", token, err)
		}
		if err := ledger.Refund(context.Background(), token); !errors.Is(err, domain.ErrAlreadyFinalized) {
			t.Fatalf("re-Refund(%s) error = %v, want ErrAlreadyFinalized", token, err)
		}
	}
	if got := ledger.Balance(); got != 2 {
		t.Fatalf("Balance() = %d, want 2 (one finalized, two refunded)", got)
	}
}
