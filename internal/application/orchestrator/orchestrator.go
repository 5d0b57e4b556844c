// Package orchestrator wires the pipeline together and supervises its loops.
//
//	monitor ──trades──▶ simulator ──records──▶ ledger ◀── settlement
//	   │                 (sizer)                              │
//	   └────────────── events ──▶ dispatcher ──▶ handlers ◀───┘
//
// The rate limiter and the market cache are shared by every component that
// talks to the venue. All loops run under one errgroup: cancelling the parent
// context, or any loop failing, stops every other loop. When risk or the
// whale cap is enabled, a risk.Manager sizes each trade inside the simulator.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/airhao3/jmm-trade/internal/adapters/metrics"
	"github.com/airhao3/jmm-trade/internal/adapters/notify"
	"github.com/airhao3/jmm-trade/internal/application/monitor"
	"github.com/airhao3/jmm-trade/internal/application/risk"
	"github.com/airhao3/jmm-trade/internal/application/settlement"
	"github.com/airhao3/jmm-trade/internal/application/simulator"
	"github.com/airhao3/jmm-trade/internal/domain"
	"github.com/airhao3/jmm-trade/internal/marketcache"
	"github.com/airhao3/jmm-trade/internal/ports"
	"github.com/airhao3/jmm-trade/internal/ratelimit"
)

// Config agrupa la configuración de cada componente.
type Config struct {
	RateLimit  ratelimit.Config
	CacheTTL   time.Duration
	Monitor    monitor.Config
	Simulator  simulator.Config
	Risk       risk.Config // todo desactivado = inversión fija
	Settlement settlement.Config

	QueueSize     int           // capacidad del canal monitor → simulator
	EventBuffer   int           // capacidad de la cola de eventos
	StatsInterval time.Duration // 0 desactiva el log periódico
	MetricsAddr   string        // vacío = sin servidor /metrics
}

// DefaultQueueSize es la capacidad por defecto del canal de trades.
const DefaultQueueSize = 256

// Deps son los adapters que el orquestador no construye.
type Deps struct {
	Trades   ports.TradeSource
	Books    ports.BookProvider
	Markets  ports.MarketProvider
	Ledger   ports.Ledger
	Archive  ports.MarketArchive // opcional
	Accounts []domain.TrackedAccount
	Handlers []notify.Handler
	Metrics  *metrics.Prometheus // opcional; también debe estar en Handlers
}

// App es el pipeline completo.
type App struct {
	cfg    Config
	ledger ports.Ledger
	prom   *metrics.Prometheus

	limiter    *ratelimit.Bucket
	cache      *marketcache.Cache
	trades     chan domain.ObservedTrade
	dispatcher *notify.Dispatcher
	monitor    *monitor.Monitor
	simulator  *simulator.Simulator
	settlement *settlement.Engine
}

// New construye el pipeline. No arranca nada hasta Run.
func New(cfg Config, deps Deps) *App {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	limiter := ratelimit.New(cfg.RateLimit)
	cache := marketcache.New(cfg.CacheTTL)
	trades := make(chan domain.ObservedTrade, cfg.QueueSize)
	dispatcher := notify.NewDispatcher(cfg.EventBuffer, deps.Handlers...)

	var simOpts []simulator.Option
	if cfg.Risk.Enabled || cfg.Risk.WhaleCap {
		simOpts = append(simOpts, simulator.WithSizer(risk.New(cfg.Risk, deps.Accounts)))
	}

	return &App{
		cfg:        cfg,
		ledger:     deps.Ledger,
		prom:       deps.Metrics,
		limiter:    limiter,
		cache:      cache,
		trades:     trades,
		dispatcher: dispatcher,
		monitor:    monitor.New(cfg.Monitor, deps.Trades, limiter, deps.Accounts, trades, dispatcher),
		simulator:  simulator.New(cfg.Simulator, deps.Books, deps.Ledger, limiter, dispatcher, simOpts...),
		settlement: settlement.New(cfg.Settlement, deps.Ledger, deps.Markets, cache, deps.Archive, limiter, dispatcher),
	}
}

// Run arranca todos los loops y bloquea hasta que ctx se cancela o uno falla.
// Devuelve cuando todos han terminado, incluidas las simulaciones en curso.
func (a *App) Run(ctx context.Context) error {
	slog.Info("pipeline starting",
		"queue", cap(a.trades),
		"rate_per_sec", a.limiter.Rate(),
		"burst", a.limiter.Burst(),
		"metrics", a.prom != nil && a.cfg.MetricsAddr != "",
		"risk", a.cfg.Risk.Enabled,
		"whale_cap", a.cfg.Risk.WhaleCap,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.dispatcher.Run(gctx) })
	g.Go(func() error { return a.simulator.Run(gctx, a.trades) })
	g.Go(func() error { return a.monitor.Run(gctx) })
	g.Go(func() error { return a.settlement.Run(gctx) })

	if a.cfg.StatsInterval > 0 {
		g.Go(func() error { return a.runStats(gctx) })
	}
	if a.prom != nil && a.cfg.MetricsAddr != "" {
		g.Go(func() error { return a.prom.Serve(gctx, a.cfg.MetricsAddr) })
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("orchestrator.Run: %w", err)
	}
	slog.Info("pipeline stopped", "dropped_events", a.dispatcher.Dropped())
	return nil
}

// runStats loguea un resumen del ledger cada StatsInterval.
func (a *App) runStats(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.logStats(ctx)
		}
	}
}

func (a *App) logStats(ctx context.Context) {
	st, err := a.ledger.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("stats query failed", "err", err)
		}
		return
	}
	if a.prom != nil {
		a.prom.ObserveStats(st)
	}
	slog.Info("portfolio",
		"total", st.Total,
		"open", st.Open,
		"settled", st.Settled,
		"failed", st.Failed,
		"pnl", st.TotalPnL,
		"win_rate", st.WinRate,
		"avg_slippage", st.AvgSlippage,
		"queued_trades", len(a.trades),
		"cached_markets", a.cache.Len(),
		"rate_tokens", a.limiter.Available(),
	)
}
