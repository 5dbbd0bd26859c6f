package purchase

import (
	"context"

	"renderly/internal/infra"
)

// Receipt describes a completed purchase.
type Receipt struct {
	PlanID    string
	Credits   int
	Currency  string
	Amount    int
	Reference string
}

// Processor charges a buyer for a plan. Implementations must either charge
// fully or return an error; credits are granted only after a nil return.
type Processor interface {
	Purchase(ctx context.Context, userID, planID, country string) (Receipt, error)
}

// CatalogProcessor settles purchases directly off the catalog without an
// external payment provider. It is the default wiring; a gateway takes its
// place when a checkout URL is configured.
type CatalogProcessor struct {
	catalog *Catalog
	logger  *infra.Logger
}

func NewCatalogProcessor(catalog *Catalog, logger *infra.Logger) *CatalogProcessor {
	return &CatalogProcessor{catalog: catalog, logger: logger}
}

func (p *CatalogProcessor) Purchase(ctx context.Context, userID, planID, country string) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	plan, err := p.catalog.Plan(planID)
	if err != nil {
		return Receipt{}, err
	}
	currency, amount := p.catalog.PriceFor(plan, country)

	p.logger.Info().
		Str("user_id", userID).
		Str("plan_id", plan.ID).
		Str("currency", currency).
		Int("amount", amount).
		Msg("purchase: settled from catalog")

	return Receipt{
		PlanID:   plan.ID,
		Credits:  plan.Credits,
		Currency: currency,
		Amount:   amount,
	}, nil
}

var _ Processor = (*CatalogProcessor)(nil)
