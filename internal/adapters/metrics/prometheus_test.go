package metrics_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airhao3/jmm-trade/internal/adapters/metrics"
	"github.com/airhao3/jmm-trade/internal/domain"
)

func TestPrometheus_HandleEvents(t *testing.T) {
	p := metrics.New()
	ctx := context.Background()

	trade := domain.ObservedTrade{TxHash: "0xa", AccountNickname: "whale"}
	require.NoError(t, p.Handle(ctx, domain.NewTradeEvent(trade, time.Now())))
	require.NoError(t, p.Handle(ctx, domain.NewTradeEvent(trade, time.Now())))

	open := domain.SimulationRecord{DelaySeconds: 3, Status: domain.StatusOpen, SampledPrice: 0.51, SlippagePct: -2}
	failed := domain.SimulationRecord{DelaySeconds: 3, Status: domain.StatusFailed, FailureReason: domain.ReasonEmptyBook}
	require.NoError(t, p.Handle(ctx, domain.SimulationEvent(open, time.Now())))
	require.NoError(t, p.Handle(ctx, domain.SimulationEvent(failed, time.Now())))

	require.NoError(t, p.Handle(ctx, domain.SettledEvent("0xm", 2, 95, time.Now())))
	require.NoError(t, p.Handle(ctx, domain.SettledEvent("0xn", 1, -101.5, time.Now())))

	reg := p.Registry()
	n, err := testutil.GatherAndCount(reg, "shadowbot_trades_detected_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "una serie por cuenta")

	n, err = testutil.GatherAndCount(reg, "shadowbot_simulations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = testutil.GatherAndCount(reg, "shadowbot_slippage_pct")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "los records sin fill no observan slippage")
}

func TestPrometheus_CounterValues(t *testing.T) {
	p := metrics.New()
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, domain.SettledEvent("0xm", 2, 95, time.Now())))
	require.NoError(t, p.Handle(ctx, domain.SettledEvent("0xn", 1, -101.5, time.Now())))
	p.ObserveStats(domain.LedgerStats{Open: 4, Settled: 3, Failed: 1, WinRate: 66.7})

	mfs, err := p.Registry().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil && len(m.GetLabel()) == 0:
				values[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()+"/"+m.GetLabel()[0].GetValue()] = m.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, 3.0, values["shadowbot_settled_records_total"])
	assert.InDelta(t, -6.5, values["shadowbot_realized_pnl_usd"], 1e-9)
	assert.Equal(t, 4.0, values["shadowbot_ledger_records/OPEN"])
	assert.Equal(t, 66.7, values["shadowbot_win_rate_pct"])
}

func TestPrometheus_ServeExposesMetrics(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	p := metrics.New()
	require.NoError(t, p.Handle(context.Background(), domain.SettledEvent("0xm", 1, 1, time.Now())))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx, addr) }()

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ = io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	assert.Contains(t, string(body), "shadowbot_settled_records_total 1")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
