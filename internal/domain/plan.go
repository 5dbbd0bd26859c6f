package domain

// Plan describes a purchasable credit bundle. Prices are stored in minor
// units keyed by ISO currency code; the catalog decides which currency a
// buyer sees based on their region.
type Plan struct {
	ID          string
	Name        string
	Credits     int
	Description string
	Popular     bool
	Prices      map[string]int
}
