package domain

import "time"

// LedgerEntryKind enumerates credit ledger movements.
type LedgerEntryKind string

const (
	LedgerEntryReserve  LedgerEntryKind = "reserve"
	LedgerEntryFinalize LedgerEntryKind = "finalize"
	LedgerEntryRefund   LedgerEntryKind = "refund"
	LedgerEntryPurchase LedgerEntryKind = "purchase"
	LedgerEntryGrant    LedgerEntryKind = "grant"
)

// LedgerEntry is one movement in a user's credit ledger. Amount is signed:
// negative for reserves, positive for refunds, purchases and grants, zero for
// finalizes (the debit already happened at reserve time).
type LedgerEntry struct {
	ID            string
	UserID        string
	Kind          LedgerEntryKind
	Amount        int
	ReservationID string
	JobID         string
	BalanceAfter  int
	CreatedAt     time.Time
}
