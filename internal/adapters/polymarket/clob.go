package polymarket

import (
	"context"
	"fmt"
	"net/url"

	"github.com/airhao3/jmm-trade/internal/domain"
)

const bookPath = "/book"

// FetchOrderBook obtiene el orderbook de un token del CLOB.
// Bids quedan ordenados de mayor a menor y asks de menor a mayor.
func (c *Client) FetchOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	var resp orderBookResponse
	u := c.clobBase + bookPath + "?token_id=" + url.QueryEscape(tokenID)
	if err := c.get(ctx, u, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("clob.FetchOrderBook: %w", err)
	}
	return mapOrderBook(resp, tokenID), nil
}
