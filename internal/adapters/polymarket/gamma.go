package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/airhao3/jmm-trade/internal/domain"
)

const gammaMarketsPath = "/markets"

// FetchMarket obtiene la metadata y el estado de resolución de un mercado por condition id.
// Devuelve MarketInfo{} si Gamma no conoce el mercado.
func (c *Client) FetchMarket(ctx context.Context, marketID string) (domain.MarketInfo, error) {
	q := url.Values{}
	q.Set("condition_ids", marketID)

	var resp []gammaMarket
	if err := c.get(ctx, c.gammaBase+gammaMarketsPath+"?"+q.Encode(), &resp); err != nil {
		return domain.MarketInfo{}, fmt.Errorf("gamma.FetchMarket: %w", err)
	}

	now := time.Now().UTC()
	for _, gm := range resp {
		if strings.EqualFold(gm.ConditionID, marketID) {
			return mapGammaMarket(gm, now), nil
		}
	}

	slog.Debug("market not found in gamma", "market", marketID, "results", len(resp))
	return domain.MarketInfo{}, nil
}
