package ports

import (
	"context"

	"github.com/airhao3/jmm-trade/internal/domain"
)

// TradeSource lista los trades recientes de una cuenta, más nuevos primero.
type TradeSource interface {
	ListTrades(ctx context.Context, address string, limit int) ([]domain.ObservedTrade, error)
}
