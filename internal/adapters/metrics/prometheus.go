// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/airhao3/jmm-trade/internal/domain"
)

const namespace = "shadowbot"

// Prometheus es un notify.Handler que traduce eventos a métricas.
type Prometheus struct {
	registry *prometheus.Registry

	tradesDetected *prometheus.CounterVec
	simulations    *prometheus.CounterVec
	slippage       *prometheus.HistogramVec
	settledRecords prometheus.Counter
	realizedPnL    prometheus.Gauge

	ledgerRecords *prometheus.GaugeVec
	winRate       prometheus.Gauge
}

// New registra las métricas en un registry propio.
func New() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		tradesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_detected_total",
			Help:      "New trades observed on tracked accounts.",
		}, []string{"account"}),
		simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_total",
			Help:      "Simulation records written, by status and delay.",
		}, []string{"status", "delay"}),
		slippage: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slippage_pct",
			Help:      "Absolute slippage of sampled fills versus target price, in percent.",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 10, 20, 50},
		}, []string{"delay"}),
		settledRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settled_records_total",
			Help:      "Records transitioned to SETTLED.",
		}),
		realizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realized_pnl_usd",
			Help:      "Realized PnL settled since start.",
		}),
		ledgerRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_records",
			Help:      "Records in the ledger by status.",
		}, []string{"status"}),
		winRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "win_rate_pct",
			Help:      "Share of settled records with positive PnL.",
		}),
	}
	p.registry.MustRegister(
		p.tradesDetected,
		p.simulations,
		p.slippage,
		p.settledRecords,
		p.realizedPnL,
		p.ledgerRecords,
		p.winRate,
		collectors.NewGoCollector(),
	)
	return p
}

func (p *Prometheus) Name() string { return "prometheus" }

// Registry devuelve el registry (tests).
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handle actualiza los contadores según el tipo de evento.
func (p *Prometheus) Handle(_ context.Context, ev domain.Event) error {
	switch ev.Kind {
	case domain.EventNewTrade:
		if ev.Trade != nil {
			p.tradesDetected.WithLabelValues(ev.Trade.AccountNickname).Inc()
		}
	case domain.EventSimulationCompleted:
		if r := ev.Record; r != nil {
			delay := strconv.Itoa(r.DelaySeconds)
			p.simulations.WithLabelValues(string(r.Status), delay).Inc()
			if r.SampledPrice > 0 {
				slip := r.SlippagePct
				if slip < 0 {
					slip = -slip
				}
				p.slippage.WithLabelValues(delay).Observe(slip)
			}
		}
	case domain.EventMarketSettled:
		p.settledRecords.Add(float64(ev.SettledCount))
		p.realizedPnL.Add(ev.TotalPnL)
	}
	return nil
}

// ObserveStats publica el snapshot periódico del ledger.
func (p *Prometheus) ObserveStats(s domain.LedgerStats) {
	p.ledgerRecords.WithLabelValues(string(domain.StatusOpen)).Set(float64(s.Open))
	p.ledgerRecords.WithLabelValues(string(domain.StatusSettled)).Set(float64(s.Settled))
	p.ledgerRecords.WithLabelValues(string(domain.StatusFailed)).Set(float64(s.Failed))
	p.winRate.Set(s.WinRate)
}

// Serve expone /metrics en addr hasta que ctx se cancela.
func (p *Prometheus) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	slog.Info("metrics server listening", "addr", addr, "path", "/metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics.Serve: %w", err)
	}
	return nil
}
