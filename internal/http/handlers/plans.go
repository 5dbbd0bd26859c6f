package handlers

import (
	"fmt"
	"net/http"

	"golang.org/x/text/currency"

	"renderly/internal/middleware"
)

type planDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Credits     int    `json:"credits"`
	Description string `json:"description"`
	Popular     bool   `json:"popular"`
	Currency    string `json:"currency"`
	Amount      int    `json:"amount"`
	Display     string `json:"display"`
}

func (a *App) Plans(w http.ResponseWriter, r *http.Request) {
	country := middleware.CountryFromContext(r.Context())

	plans := a.Catalog.Plans()
	out := make([]planDTO, 0, len(plans))
	for _, plan := range plans {
		code, amount := a.Catalog.PriceFor(plan, country)
		out = append(out, planDTO{
			ID:          plan.ID,
			Name:        plan.Name,
			Credits:     plan.Credits,
			Description: plan.Description,
			Popular:     plan.Popular,
			Currency:    code,
			Amount:      amount,
			Display:     displayPrice(code, amount),
		})
	}
	a.json(w, http.StatusOK, map[string]any{"plans": out})
}

// displayPrice renders minor units with the currency symbol, e.g. "₹ 299.00".
func displayPrice(code string, amount int) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%s %d.%02d", code, amount/100, amount%100)
	}
	return fmt.Sprintf("%v", currency.Symbol(unit.Amount(float64(amount)/100)))
}
