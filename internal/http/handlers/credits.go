package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"renderly/internal/domain"
	"renderly/internal/middleware"
)

type ledgerEntryDTO struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Amount       int    `json:"amount"`
	JobID        string `json:"job_id,omitempty"`
	BalanceAfter int    `json:"balance_after"`
	CreatedAt    string `json:"created_at,omitempty"`
}

type creditsResponse struct {
	Balance int              `json:"balance"`
	Entries []ledgerEntryDTO `json:"entries"`
}

type purchaseRequest struct {
	PlanID string `json:"plan_id"`
}

type purchaseResponse struct {
	Balance  int    `json:"balance"`
	Credits  int    `json:"credits"`
	PlanID   string `json:"plan_id"`
	Currency string `json:"currency"`
	Amount   int    `json:"amount"`
}

func entryToDTO(e domain.LedgerEntry) ledgerEntryDTO {
	dto := ledgerEntryDTO{
		ID:           e.ID,
		Kind:         string(e.Kind),
		Amount:       e.Amount,
		JobID:        e.JobID,
		BalanceAfter: e.BalanceAfter,
	}
	if !e.CreatedAt.IsZero() {
		dto.CreatedAt = e.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func (a *App) Credits(w http.ResponseWriter, r *http.Request) {
	rt, userID, ok := a.runtime(w, r)
	if !ok {
		return
	}

	entries, err := a.Ledger.ListRecent(r.Context(), userID, 20)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("list ledger failed")
		entries = nil
	}
	out := make([]ledgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryToDTO(e))
	}
	a.json(w, http.StatusOK, creditsResponse{Balance: rt.Ledger.Balance(), Entries: out})
}

func (a *App) PurchaseCredits(w http.ResponseWriter, r *http.Request) {
	rt, userID, ok := a.runtime(w, r)
	if !ok {
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	country := middleware.CountryFromContext(r.Context())
	receipt, err := a.Purchases.Purchase(r.Context(), userID, req.PlanID, country)
	if err != nil {
		a.domainError(w, err)
		return
	}

	balance, err := rt.Ledger.Credit(r.Context(), receipt.Credits, domain.LedgerEntryPurchase)
	if err != nil {
		a.domainError(w, err)
		return
	}

	a.json(w, http.StatusOK, purchaseResponse{
		Balance:  balance,
		Credits:  receipt.Credits,
		PlanID:   receipt.PlanID,
		Currency: receipt.Currency,
		Amount:   receipt.Amount,
	})
}
