package ports

import (
	"context"

	"github.com/airhao3/jmm-trade/internal/domain"
)

// MarketProvider obtiene la metadata y el estado de resolución de un mercado.
type MarketProvider interface {
	// FetchMarket devuelve MarketInfo{} (MarketID vacío) si el venue no conoce el mercado.
	FetchMarket(ctx context.Context, marketID string) (domain.MarketInfo, error)
}
