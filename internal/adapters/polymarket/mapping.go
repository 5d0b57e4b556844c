package polymarket

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/airhao3/jmm-trade/internal/domain"
)

// mapTrade convierte un trade de la Data API a domain.ObservedTrade.
// ok=false si falta el hash, el lado no es BUY/SELL o el precio no es legible.
// Un size ilegible queda en 0.
func mapTrade(r rawDataTrade, address string) (domain.ObservedTrade, bool) {
	if r.TransactionHash == "" {
		return domain.ObservedTrade{}, false
	}
	side, ok := domain.ParseSide(r.Side)
	if !ok {
		return domain.ObservedTrade{}, false
	}

	price, ok := r.Price.float()
	if !ok || price <= 0 {
		return domain.ObservedTrade{}, false
	}
	size, _ := r.Size.float()

	t := domain.ObservedTrade{
		TxHash:         r.TransactionHash,
		AccountAddress: address,
		Side:           side,
		MarketID:       r.ConditionID,
		TokenID:        r.Asset,
		Outcome:        r.Outcome,
		Title:          r.Title,
		Slug:           r.Slug,
		EventSlug:      r.EventSlug,
		Price:          price,
		Size:           size,
		Timestamp:      parseTradeTimestamp(string(r.Timestamp)),
	}
	if start, ok := parseISO(r.StartDate); ok {
		t.MarketStart = &start
	}
	if end, ok := parseISO(r.EndDate); ok {
		t.MarketEnd = &end
	}
	return t, true
}

// mapOrderBook convierte la respuesta de /book a domain.OrderBook.
func mapOrderBook(r orderBookResponse, tokenID string) domain.OrderBook {
	id := r.AssetID
	if id == "" {
		id = tokenID
	}
	return domain.OrderBook{
		TokenID: id,
		Bids:    mapBookEntries(r.Bids, false),
		Asks:    mapBookEntries(r.Asks, true),
	}
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}

// mapGammaMarket convierte un mercado de Gamma a domain.MarketInfo.
// Resolved = closed || resolved. Los precios por token solo se rellenan si
// el mercado está resuelto; valores no numéricos se ignoran.
func mapGammaMarket(g gammaMarket, fetchedAt time.Time) domain.MarketInfo {
	resolved := g.Closed || g.Resolved
	m := domain.MarketInfo{
		MarketID:  g.ConditionID,
		Question:  g.Question,
		Slug:      g.Slug,
		Active:    g.Active && !resolved,
		Resolved:  resolved,
		FetchedAt: fetchedAt,
	}
	if !resolved {
		return m
	}

	prices := make([]float64, 0, len(g.OutcomePrices))
	valid := make([]bool, 0, len(g.OutcomePrices))
	for _, s := range g.OutcomePrices {
		p, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		prices = append(prices, p)
		valid = append(valid, err == nil)
	}
	if len(prices) > 0 && valid[0] {
		first := prices[0]
		m.ResolutionPrice = &first
	}
	for i, tok := range g.ClobTokenIDs {
		if i >= len(prices) || !valid[i] || tok == "" {
			continue
		}
		if m.TokenPrices == nil {
			m.TokenPrices = make(map[string]float64, len(g.ClobTokenIDs))
		}
		m.TokenPrices[tok] = prices[i]
	}
	return m
}

// parseTradeTimestamp acepta unix segundos, milisegundos, float o ISO.
func parseTradeTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.Unix(sec/1000, (sec%1000)*int64(time.Millisecond)).UTC()
		}
		return time.Unix(sec, 0).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	t, _ := parseISO(s)
	return t
}

func parseISO(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	// Polymarket usa varios formatos; intentamos los más comunes
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
