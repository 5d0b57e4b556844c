package notify_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/airhao3/jmm-trade/internal/adapters/notify"
	"github.com/airhao3/jmm-trade/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	name string
	err  error

	mu   sync.Mutex
	seen []domain.EventKind
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) Handle(_ context.Context, ev domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, ev.Kind)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func sampleRecord(status domain.SimStatus) domain.SimulationRecord {
	pnl := 98.5
	r := domain.SimulationRecord{
		ID:              "id-1",
		TxHash:          "0xabcdef1234567890",
		AccountNickname: "whale",
		Title:           "Bitcoin Up or Down - 15 min",
		Side:            domain.SideBuy,
		DelaySeconds:    3,
		TargetPrice:     0.5,
		SampledPrice:    0.51,
		SlippagePct:     2,
		TotalCost:       101.5,
		Status:          status,
		CreatedAt:       time.Now(),
	}
	if status == domain.StatusSettled {
		r.PnL = &pnl
	}
	if status == domain.StatusFailed {
		r.FailureReason = domain.ReasonSlippage
	}
	return r
}

func TestDispatcher_FansOutToAllHandlers(t *testing.T) {
	a := &recordingHandler{name: "a"}
	b := &recordingHandler{name: "b", err: errors.New("down")}
	d := notify.NewDispatcher(8, a, b)

	d.Publish(domain.SettledEvent("0xm", 1, 1, time.Now()))
	d.Publish(domain.NewTradeEvent(domain.ObservedTrade{TxHash: "0xa"}, time.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return a.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 2, b.count(), "un handler que falla no corta el reparto")
	assert.Equal(t, []domain.EventKind{domain.EventMarketSettled, domain.EventNewTrade}, a.seen)
}

func TestDispatcher_PublishNeverBlocks(t *testing.T) {
	d := notify.NewDispatcher(2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Publish(domain.SettledEvent("0xm", 1, 0, time.Now()))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with a full queue")
	}
	assert.EqualValues(t, 8, d.Dropped())
}

func TestDispatcher_DrainsOnShutdown(t *testing.T) {
	h := &recordingHandler{name: "h"}
	d := notify.NewDispatcher(8, h)
	for i := 0; i < 3; i++ {
		d.Publish(domain.SettledEvent("0xm", 1, 0, time.Now()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))
	assert.Equal(t, 3, h.count())
}

// blockingHandler no vuelve hasta que se cierra release o se cancela ctx.
type blockingHandler struct {
	release chan struct{}
}

func (h *blockingHandler) Name() string { return "slow" }

func (h *blockingHandler) Handle(ctx context.Context, _ domain.Event) error {
	select {
	case <-h.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestDispatcher_SlowHandlerDoesNotStarveOthers(t *testing.T) {
	slow := &blockingHandler{release: make(chan struct{})}
	fast := &recordingHandler{name: "console"}
	d := notify.NewDispatcher(4, slow, fast)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- d.Run(ctx) }()

	for i := 0; i < 20; i++ {
		d.Publish(domain.SettledEvent("0xm", 1, 0, time.Now()))
		time.Sleep(time.Millisecond)
	}

	require.Eventually(t, func() bool { return fast.count() == 20 }, time.Second, 5*time.Millisecond,
		"el handler rápido recibe todo aunque el lento esté bloqueado")
	assert.Positive(t, d.Dropped(), "la cola del lento se llena y descarta")

	close(slow.release)
	cancel()
	require.NoError(t, <-done)
}

func TestConsole_HandleEvents(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)
	ctx := context.Background()

	trade := domain.ObservedTrade{TxHash: "0xabcdef1234567890", AccountNickname: "whale", Side: domain.SideBuy, Title: "Bitcoin Up or Down - 15 min", Price: 0.5}
	require.NoError(t, c.Handle(ctx, domain.NewTradeEvent(trade, time.Now())))
	require.NoError(t, c.Handle(ctx, domain.SimulationEvent(sampleRecord(domain.StatusOpen), time.Now())))
	require.NoError(t, c.Handle(ctx, domain.SimulationEvent(sampleRecord(domain.StatusFailed), time.Now())))
	require.NoError(t, c.Handle(ctx, domain.SettledEvent("0xcondition1234567890", 2, 12.5, time.Now())))

	out := buf.String()
	assert.Contains(t, out, "NEW")
	assert.Contains(t, out, "whale")
	assert.Contains(t, out, "SIM")
	assert.Contains(t, out, "d=3s")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, domain.ReasonSlippage)
	assert.Contains(t, out, "SETTLE")
	assert.Contains(t, out, "+12.5000")
}

func TestConsole_PrintReport(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	stats := domain.LedgerStats{Total: 3, Open: 1, Settled: 1, Failed: 1, TotalPnL: 98.5, AvgPnL: 98.5, Wins: 1, WinRate: 100}
	summary := []domain.PnLSummaryRow{{Nickname: "whale", DelaySeconds: 3, Trades: 3, Settled: 1, TotalPnL: 98.5, AvgPnL: 98.5, Wins: 1}}
	long := sampleRecord(domain.StatusSettled)
	long.Title = strings.Repeat("A", 50)
	recent := []domain.SimulationRecord{long, sampleRecord(domain.StatusFailed)}

	c.PrintReport(stats, summary, recent)

	out := buf.String()
	assert.Contains(t, out, "SHADOW COPY-TRADE REPORT")
	assert.Contains(t, out, "98.5000")
	assert.Contains(t, out, "whale")
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "FAILED: "+domain.ReasonSlippage)
}

func TestConsole_PrintReport_Empty(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).PrintReport(domain.LedgerStats{}, nil, nil)
	assert.Contains(t, buf.String(), "No simulations recorded yet")
}
