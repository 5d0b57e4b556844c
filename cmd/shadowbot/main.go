package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/airhao3/jmm-trade/config"
	"github.com/airhao3/jmm-trade/internal/adapters/metrics"
	"github.com/airhao3/jmm-trade/internal/adapters/notify"
	"github.com/airhao3/jmm-trade/internal/adapters/polymarket"
	"github.com/airhao3/jmm-trade/internal/adapters/storage"
	"github.com/airhao3/jmm-trade/internal/application/monitor"
	"github.com/airhao3/jmm-trade/internal/application/orchestrator"
	"github.com/airhao3/jmm-trade/internal/application/risk"
	"github.com/airhao3/jmm-trade/internal/application/settlement"
	"github.com/airhao3/jmm-trade/internal/application/simulator"
	"github.com/airhao3/jmm-trade/internal/ratelimit"
	"github.com/airhao3/jmm-trade/internal/retry"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", false, "print ledger statistics and PnL summary, then exit")
	recent := flag.Int("recent", 20, "number of recent simulations shown by -report")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	// run devuelve antes de salir para que sus defers (ledger, kafka) se ejecuten.
	if err := run(cfg, *configPath, *report, *recent); err != nil {
		slog.Error("shadowbot exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, report bool, recent int) error {
	ledger, err := storage.NewSQLiteLedger(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open ledger %q: %w", cfg.Storage.DSN, err)
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			slog.Warn("error closing ledger", "err", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if report {
		if err := printReport(ctx, ledger, recent); err != nil {
			return fmt.Errorf("report: %w", err)
		}
		return nil
	}

	slog.Info("shadowbot starting",
		"config", configPath,
		"targets", len(cfg.Accounts()),
		"delays", cfg.Simulation.Delays,
		"poll_interval", cfg.PollInterval(),
		"filter", *cfg.MarketFilter.Enabled,
		"dsn", cfg.Storage.DSN,
	)

	client := polymarket.NewClient(polymarket.Config{
		DataBase:  cfg.API.DataBase,
		CLOBBase:  cfg.API.CLOBBase,
		GammaBase: cfg.API.GammaBase,
		Timeout:   cfg.RequestTimeout(),
		APIKey:    cfg.API.APIKey,
	})

	var handlers []notify.Handler
	if cfg.Notify.Console {
		handlers = append(handlers, notify.NewConsole())
	}
	if cfg.Notify.Kafka.Enabled {
		sink := notify.NewKafkaSink(cfg.Notify.Kafka.Brokers, cfg.Notify.Kafka.Topic)
		defer func() {
			if err := sink.Close(); err != nil {
				slog.Warn("error closing kafka writer", "err", err)
			}
		}()
		handlers = append(handlers, sink)
		slog.Info("kafka sink enabled", "brokers", cfg.Notify.Kafka.Brokers, "topic", sink.Topic)
	}
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.New()
		handlers = append(handlers, prom)
	}

	app := orchestrator.New(pipelineConfig(cfg), orchestrator.Deps{
		Trades:   client,
		Books:    client,
		Markets:  client,
		Ledger:   ledger,
		Archive:  ledger,
		Accounts: cfg.Accounts(),
		Handlers: handlers,
		Metrics:  prom,
	})

	if err := app.Run(ctx); err != nil {
		return err
	}

	slog.Info("shadowbot stopped cleanly")
	return nil
}

// pipelineConfig traduce la configuración de archivo a la de cada componente.
func pipelineConfig(cfg *config.Config) orchestrator.Config {
	policy := retry.Policy{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		BaseDelay:         cfg.RetryBaseDelay(),
		DefaultRetryAfter: cfg.DefaultRetryAfter(),
		MaxRateLimitWaits: cfg.Retry.MaxRateLimitWaits,
	}

	mf := cfg.MarketFilter
	metricsAddr := ""
	if cfg.Metrics.Enabled {
		metricsAddr = cfg.Metrics.Addr
	}

	return orchestrator.Config{
		RateLimit: ratelimit.Config{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      cfg.RateWindow(),
			Burst:       cfg.RateLimit.Burst,
		},
		CacheTTL: cfg.CacheTTL(),
		Monitor: monitor.Config{
			PollInterval: cfg.PollInterval(),
			FetchLimit:   cfg.Monitoring.FetchLimit,
			Filter: monitor.FilterConfig{
				Enabled:            *mf.Enabled,
				Assets:             mf.Assets,
				Keywords:           mf.Keywords,
				Exclude:            mf.Exclude,
				MinDurationMinutes: mf.MinDurationMinutes,
				MaxDurationMinutes: mf.MaxDurationMinutes,
			},
		},
		Simulator: simulator.Config{
			Delays:         cfg.Simulation.Delays,
			Investment:     cfg.Simulation.Investment,
			FeeRate:        *cfg.Simulation.FeeRate,
			SlippageCheck:  *cfg.Simulation.SlippageCheck,
			MaxSlippagePct: *cfg.Simulation.MaxSlippagePct,
			MaxInFlight:    cfg.Simulation.MaxInFlight,
			Retry:          policy,
		},
		Risk: risk.Config{
			Enabled:       cfg.Risk.Enabled,
			SignalTTL:     cfg.SignalTTL(),
			ReduceFactor:  *cfg.Risk.ReduceFactor,
			AmplifyStep:   cfg.Risk.AmplifyStep,
			AmplifyMax:    cfg.Risk.AmplifyMax,
			MinAligned:    2,
			WhaleCap:      cfg.Risk.WhaleCap,
			WhaleCapPct:   cfg.Risk.WhaleCapPct,
			MinInvestment: *cfg.Risk.MinInvestment,
		},
		Settlement: settlement.Config{
			Interval: cfg.SettlementInterval(),
			Retry:    policy,
		},
		QueueSize:     cfg.Monitoring.QueueSize,
		EventBuffer:   cfg.Notify.EventBuffer,
		StatsInterval: cfg.StatsInterval(),
		MetricsAddr:   metricsAddr,
	}
}

func printReport(ctx context.Context, ledger *storage.SQLiteLedger, recent int) error {
	stats, err := ledger.Stats(ctx)
	if err != nil {
		return err
	}
	summary, err := ledger.PnLSummary(ctx)
	if err != nil {
		return err
	}
	rows, err := ledger.Recent(ctx, recent)
	if err != nil {
		return err
	}
	notify.NewConsole().PrintReport(stats, summary, rows)
	return nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
