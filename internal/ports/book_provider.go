package ports

import (
	"context"

	"github.com/airhao3/jmm-trade/internal/domain"
)

// BookProvider obtiene el orderbook actual de un outcome token.
type BookProvider interface {
	// FetchOrderBook devuelve bids ordenados desc y asks asc.
	FetchOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error)
}
