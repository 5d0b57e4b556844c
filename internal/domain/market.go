package domain

import "time"

// MarketInfo es la metadata de un mercado relevante para settlement.
type MarketInfo struct {
	MarketID string // condition id
	Question string
	Slug     string
	Active   bool
	Resolved bool

	// ResolutionPrice is the first outcome's final price. nil while unresolved.
	ResolutionPrice *float64
	// TokenPrices maps outcome token id to its final price.
	TokenPrices map[string]float64

	FetchedAt time.Time
}

// ResolutionFor devuelve el precio de resolución del token dado.
// Cae al precio del primer outcome si el venue no reporta precios por token.
func (m MarketInfo) ResolutionFor(tokenID string) (float64, bool) {
	if !m.Resolved {
		return 0, false
	}
	if p, ok := m.TokenPrices[tokenID]; ok {
		return p, true
	}
	if m.ResolutionPrice != nil {
		return *m.ResolutionPrice, true
	}
	return 0, false
}
