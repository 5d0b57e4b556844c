package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/airhao3/jmm-trade/internal/domain"
)

const (
	tradesPath      = "/trades"
	maxTradesPerReq = 500
)

// ListTrades obtiene los trades recientes de una cuenta usando la Data API pública.
// Los items sin hash o con un lado desconocido se descartan.
func (c *Client) ListTrades(ctx context.Context, address string, limit int) ([]domain.ObservedTrade, error) {
	if limit <= 0 || limit > maxTradesPerReq {
		limit = maxTradesPerReq
	}
	q := url.Values{}
	q.Set("user", address)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", "0")

	var resp []rawDataTrade
	if err := c.get(ctx, c.dataBase+tradesPath+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("data-api.ListTrades: %w", err)
	}

	trades := make([]domain.ObservedTrade, 0, len(resp))
	for _, rt := range resp {
		t, ok := mapTrade(rt, address)
		if !ok {
			continue
		}
		trades = append(trades, t)
	}

	slog.Debug("fetched account trades",
		"account", address,
		"raw", len(resp),
		"valid", len(trades),
	)
	return trades, nil
}
