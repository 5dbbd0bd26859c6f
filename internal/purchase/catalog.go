package purchase

import (
	"strings"

	"renderly/internal/domain"
)

// DefaultCurrency is used when a buyer's region has no dedicated price.
const DefaultCurrency = "USD"

// Catalog holds the purchasable credit bundles and their regional prices.
type Catalog struct {
	plans      []domain.Plan
	currencies map[string]string
}

// NewCatalog returns the launch catalog. Prices are minor units (paise,
// cents).
func NewCatalog() *Catalog {
	return &Catalog{
		plans: []domain.Plan{
			{
				ID:          "starter",
				Name:        "Starter",
				Credits:     12,
				Description: "12 video credits for getting started",
				Prices:      map[string]int{"INR": 29900, "USD": 499},
			},
			{
				ID:          "pro",
				Name:        "Pro",
				Credits:     20,
				Description: "20 video credits at the best rate",
				Popular:     true,
				Prices:      map[string]int{"INR": 39900, "USD": 649},
			},
			{
				ID:          "topup",
				Name:        "Top-up",
				Credits:     6,
				Description: "6 extra credits when you run low",
				Prices:      map[string]int{"INR": 19900, "USD": 329},
			},
		},
		currencies: map[string]string{
			"IN": "INR",
		},
	}
}

// Plans lists every plan in display order.
func (c *Catalog) Plans() []domain.Plan {
	out := make([]domain.Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// Plan looks a plan up by id.
func (c *Catalog) Plan(id string) (domain.Plan, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range c.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Plan{}, domain.ErrUnsupportedPlan
}

// CurrencyFor maps an ISO country code to the currency shown to that buyer.
func (c *Catalog) CurrencyFor(country string) string {
	if cur, ok := c.currencies[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return cur
	}
	return DefaultCurrency
}

// PriceFor returns the price of a plan for a country, falling back to the
// default currency when no regional price exists.
func (c *Catalog) PriceFor(plan domain.Plan, country string) (currency string, amount int) {
	currency = c.CurrencyFor(country)
	if v, ok := plan.Prices[currency]; ok {
		return currency, v
	}
	return DefaultCurrency, plan.Prices[DefaultCurrency]
}
