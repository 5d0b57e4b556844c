package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/airhao3/jmm-trade/internal/domain"
)

// SaveMarket hace upsert de la última metadata vista de un mercado.
func (s *SQLiteLedger) SaveMarket(ctx context.Context, m domain.MarketInfo) error {
	var prices *string
	if len(m.TokenPrices) > 0 {
		b, err := json.Marshal(m.TokenPrices)
		if err != nil {
			return fmt.Errorf("storage.SaveMarket: marshal prices: %w", err)
		}
		p := string(b)
		prices = &p
	}
	fetched := m.FetchedAt
	if fetched.IsZero() {
		fetched = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markets (market_id, question, slug, active, resolved, resolution_price, token_prices, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market_id) DO UPDATE SET
			question         = excluded.question,
			slug             = excluded.slug,
			active           = excluded.active,
			resolved         = excluded.resolved,
			resolution_price = excluded.resolution_price,
			token_prices     = excluded.token_prices,
			fetched_at       = excluded.fetched_at`,
		m.MarketID, m.Question, m.Slug, m.Active, m.Resolved,
		m.ResolutionPrice, prices, fetched.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveMarket: %s: %w", m.MarketID, err)
	}
	return nil
}

// GetMarket lee la metadata archivada. ok=false si no existe.
func (s *SQLiteLedger) GetMarket(ctx context.Context, marketID string) (domain.MarketInfo, bool, error) {
	var (
		m                domain.MarketInfo
		question, slug   *string
		prices           *string
		resolutionPrice  *float64
		fetchedAt        string
		active, resolved bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT market_id, question, slug, active, resolved, resolution_price, token_prices, fetched_at
		FROM markets WHERE market_id = ?`, marketID,
	).Scan(&m.MarketID, &question, &slug, &active, &resolved, &resolutionPrice, &prices, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MarketInfo{}, false, nil
	}
	if err != nil {
		return domain.MarketInfo{}, false, fmt.Errorf("storage.GetMarket: %s: %w", marketID, err)
	}

	if question != nil {
		m.Question = *question
	}
	if slug != nil {
		m.Slug = *slug
	}
	m.Active, m.Resolved = active, resolved
	m.ResolutionPrice = resolutionPrice
	m.FetchedAt, _ = time.Parse(time.RFC3339Nano, fetchedAt)
	if prices != nil {
		if err := json.Unmarshal([]byte(*prices), &m.TokenPrices); err != nil {
			return m, true, fmt.Errorf("storage.GetMarket: decode prices: %w", err)
		}
	}
	return m, true, nil
}
