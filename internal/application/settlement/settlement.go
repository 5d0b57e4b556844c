// Package settlement closes OPEN simulation records once their market resolves.
//
// Each cycle works from a snapshot of the OPEN records taken at the start of
// the cycle, grouped by market. Markets are looked up through the in-memory
// cache first; a miss goes to the venue (rate limited and retried) and the
// result is cached. Unresolved or unknown markets leave their records OPEN.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/airhao3/jmm-trade/internal/domain"
	"github.com/airhao3/jmm-trade/internal/marketcache"
	"github.com/airhao3/jmm-trade/internal/ports"
	"github.com/airhao3/jmm-trade/internal/retry"
)

// Config controla el ciclo de settlement.
type Config struct {
	Interval time.Duration
	Retry    retry.Policy
}

// DefaultConfig: un ciclo por minuto.
func DefaultConfig() Config {
	return Config{
		Interval: 60 * time.Second,
		Retry:    retry.DefaultPolicy(),
	}
}

// CycleResult resume un ciclo.
type CycleResult struct {
	Open     int // records OPEN en el snapshot
	Markets  int // mercados distintos consultados
	Resolved int // mercados resueltos
	Settled  int // records que pasaron a SETTLED
	PnL      float64
}

// Engine liquida records contra la resolución de su mercado.
type Engine struct {
	cfg     Config
	ledger  ports.Ledger
	markets ports.MarketProvider
	cache   *marketcache.Cache
	archive ports.MarketArchive
	limiter retry.Acquirer
	sink    ports.EventSink
	now     func() time.Time
}

// New crea un Engine. archive, limiter y sink pueden ser nil.
func New(cfg Config, ledger ports.Ledger, markets ports.MarketProvider, cache *marketcache.Cache,
	archive ports.MarketArchive, limiter retry.Acquirer, sink ports.EventSink) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cache == nil {
		cache = marketcache.New(0)
	}
	return &Engine{
		cfg:     cfg,
		ledger:  ledger,
		markets: markets,
		cache:   cache,
		archive: archive,
		limiter: limiter,
		sink:    sink,
		now:     time.Now,
	}
}

// Run ejecuta un ciclo inmediatamente y luego uno por intervalo hasta que ctx
// se cancela.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("settlement engine starting", "interval", e.cfg.Interval)

	e.cycle(ctx)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("settlement engine stopped")
			return nil
		case <-ticker.C:
			e.cycle(ctx)
		}
	}
}

func (e *Engine) cycle(ctx context.Context) {
	res, err := e.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("settlement cycle failed", "err", err)
		}
		return
	}
	if res.Settled > 0 {
		slog.Info("settlement cycle",
			"open", res.Open,
			"markets", res.Markets,
			"resolved", res.Resolved,
			"settled", res.Settled,
			"pnl", domain.Round4(res.PnL),
		)
	}
}

// RunOnce ejecuta un ciclo de settlement.
func (e *Engine) RunOnce(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	open, err := e.ledger.ListOpen(ctx)
	if err != nil {
		return res, fmt.Errorf("settlement.RunOnce: list open: %w", err)
	}
	res.Open = len(open)
	if len(open) == 0 {
		return res, nil
	}

	ids, byMarket := groupByMarket(open)
	res.Markets = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		info, ok := e.lookup(ctx, id)
		if !ok || !info.Resolved {
			continue
		}
		res.Resolved++

		n, pnl := e.settleMarket(ctx, info, byMarket[id])
		res.Settled += n
		res.PnL += pnl

		if n > 0 && e.sink != nil {
			e.sink.Publish(domain.SettledEvent(id, n, domain.Round4(pnl), e.now()))
		}
	}
	return res, nil
}

// groupByMarket agrupa manteniendo el orden de primera aparición.
func groupByMarket(recs []domain.SimulationRecord) ([]string, map[string][]domain.SimulationRecord) {
	var ids []string
	by := make(map[string][]domain.SimulationRecord)
	for _, r := range recs {
		if _, ok := by[r.MarketID]; !ok {
			ids = append(ids, r.MarketID)
		}
		by[r.MarketID] = append(by[r.MarketID], r)
	}
	return ids, by
}

// lookup resuelve la metadata del mercado: cache, archivo (solo resueltos) y
// por último el venue. ok=false si no se pudo obtener o el venue no lo conoce.
func (e *Engine) lookup(ctx context.Context, marketID string) (domain.MarketInfo, bool) {
	if m, ok := e.cache.Get(marketID); ok {
		return m, true
	}

	// Un mercado resuelto ya no cambia
	if e.archive != nil {
		m, found, err := e.archive.GetMarket(ctx, marketID)
		switch {
		case err != nil:
			slog.Warn("market archive read failed", "market", marketID, "err", err)
		case found && m.Resolved:
			e.cache.Put(m)
			return m, true
		}
	}

	m, err := retry.Do(ctx, e.cfg.Retry, e.limiter, "settlement.FetchMarket",
		func(ctx context.Context) (domain.MarketInfo, error) {
			return e.markets.FetchMarket(ctx, marketID)
		})
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("market fetch failed, records stay open", "market", marketID, "err", err)
		}
		return domain.MarketInfo{}, false
	}
	if m.MarketID == "" {
		slog.Debug("market not found", "market", marketID)
		return domain.MarketInfo{}, false
	}

	e.cache.Put(m)
	if e.archive != nil {
		if err := e.archive.SaveMarket(ctx, m); err != nil {
			slog.Warn("market archive write failed", "market", marketID, "err", err)
		}
	}
	return m, true
}

// settleMarket liquida los records de un mercado resuelto. Devuelve cuántos
// pasaron a SETTLED y su PnL total.
func (e *Engine) settleMarket(ctx context.Context, info domain.MarketInfo, recs []domain.SimulationRecord) (int, float64) {
	settled := 0
	total := 0.0

	for _, r := range recs {
		if ctx.Err() != nil {
			break
		}

		price, ok := info.ResolutionFor(r.TokenID)
		if !ok {
			slog.Warn("resolved market without resolution price",
				"market", info.MarketID,
				"token", r.TokenID,
			)
			continue
		}

		out := domain.Settle(r.Side, r.Investment, r.Fee, r.SampledPrice, price)
		updated, err := e.ledger.UpdateSettlement(ctx, ports.SettlementUpdate{
			ID:              r.ID,
			Status:          domain.StatusSettled,
			SettlementPrice: price,
			PnL:             out.PnL,
			PnLPct:          out.PnLPct,
			SettledAt:       e.now().UTC(),
		})
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("settlement update failed", "id", r.ID, "err", err)
			}
			continue
		}
		if !updated {
			continue
		}

		settled++
		total += out.PnL
		slog.Info("position settled",
			"account", r.AccountNickname,
			"title", r.Title,
			"side", r.Side,
			"delay", r.DelaySeconds,
			"entry", r.SampledPrice,
			"resolution", price,
			"pnl", out.PnL,
			"pnl_pct", out.PnLPct,
		)
	}
	return settled, total
}
