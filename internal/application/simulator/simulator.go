// Package simulator turns observed trades into simulated copies.
//
// For every trade and every configured delay a goroutine waits the delay,
// samples the orderbook of the traded outcome, prices the copy at the best
// opposite level and writes one record to the ledger. Each (trade, delay)
// pair is independent: one failing never affects the others.
package simulator

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/airhao3/jmm-trade/internal/domain"
	"github.com/airhao3/jmm-trade/internal/ports"
	"github.com/airhao3/jmm-trade/internal/retry"
)

// Config holds simulation settings.
type Config struct {
	Delays         []int // segundos; se ordenan y deduplican
	Investment     float64
	FeeRate        float64
	SlippageCheck  bool
	MaxSlippagePct float64
	MaxInFlight    int // fetches de orderbook concurrentes
	Retry          retry.Policy
}

// DefaultConfig devuelve los valores por defecto.
func DefaultConfig() Config {
	return Config{
		Delays:         []int{1, 3},
		Investment:     100,
		FeeRate:        0.015,
		SlippageCheck:  true,
		MaxSlippagePct: 5,
		MaxInFlight:    8,
		Retry:          retry.DefaultPolicy(),
	}
}

// Option configura el Simulator.
type Option func(*Simulator)

// WithDelayUnit cambia la unidad de los delays (tests).
func WithDelayUnit(d time.Duration) Option {
	return func(s *Simulator) { s.unit = d }
}

// WithSizer ajusta la inversión de cada trade antes de lanzar sus simulaciones.
func WithSizer(z ports.Sizer) Option {
	return func(s *Simulator) { s.sizer = z }
}

// WithClock inyecta el reloj.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// Simulator consume trades observados y escribe SimulationRecords.
type Simulator struct {
	cfg     Config
	books   ports.BookProvider
	ledger  ports.Ledger
	limiter retry.Acquirer
	sink    ports.EventSink
	sizer   ports.Sizer // opcional
	sem     *semaphore.Weighted

	unit  time.Duration
	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

// New creates a Simulator. limiter and sink may be nil.
func New(cfg Config, books ports.BookProvider, ledger ports.Ledger, limiter retry.Acquirer, sink ports.EventSink, opts ...Option) *Simulator {
	def := DefaultConfig()
	if cfg.Investment <= 0 {
		cfg.Investment = def.Investment
	}
	if cfg.FeeRate < 0 {
		cfg.FeeRate = def.FeeRate
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = def.MaxInFlight
	}
	cfg.Delays = domain.NormalizeDelays(cfg.Delays)
	if len(cfg.Delays) == 0 {
		cfg.Delays = def.Delays
	}

	s := &Simulator{
		cfg:      cfg,
		books:    books,
		ledger:   ledger,
		limiter:  limiter,
		sink:     sink,
		sem:      semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		unit:     time.Second,
		now:      time.Now,
		newID:    uuid.NewString,
		inFlight: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run consume trades de in hasta que ctx se cancela o el canal se cierra.
// Antes de volver espera a que terminen todas las simulaciones en curso.
func (s *Simulator) Run(ctx context.Context, in <-chan domain.ObservedTrade) error {
	slog.Info("simulator starting",
		"delays", s.cfg.Delays,
		"investment", s.cfg.Investment,
		"max_in_flight", s.cfg.MaxInFlight,
	)
	defer func() {
		s.Wait()
		slog.Info("simulator stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-in:
			if !ok {
				return nil
			}
			s.Submit(ctx, t)
		}
	}
}

// Submit lanza una simulación por delay. Los pares (trade, delay) que ya
// están en curso se ignoran. Devuelve cuántas se lanzaron; 0 también si el
// sizer descarta el trade.
func (s *Simulator) Submit(ctx context.Context, t domain.ObservedTrade) int {
	investment := s.cfg.Investment
	if s.sizer != nil {
		inv, ok := s.sizer.Size(t, investment)
		if !ok || inv <= 0 {
			slog.Info("trade skipped by sizer",
				"account", t.AccountNickname,
				"tx", domain.ShortTx(t.TxHash),
				"market", t.MarketID,
			)
			return 0
		}
		investment = inv
	}

	launched := 0
	for _, d := range s.cfg.Delays {
		key := domain.SimKey(t.TxHash, d)
		if !s.claim(key) {
			slog.Debug("simulation already in flight", "key", key)
			continue
		}
		launched++
		s.wg.Add(1)
		go func(delay int, key string) {
			defer s.wg.Done()
			defer s.release(key)
			s.run(ctx, t, delay, investment)
		}(d, key)
	}
	return launched
}

// Wait bloquea hasta que terminan todas las simulaciones lanzadas.
func (s *Simulator) Wait() { s.wg.Wait() }

func (s *Simulator) claim(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *Simulator) release(key string) {
	s.mu.Lock()
	delete(s.inFlight, key)
	s.mu.Unlock()
}

// run espera el delay, muestrea y persiste. Si ctx se cancela en cualquier
// punto antes de escribir, no se escribe nada.
func (s *Simulator) run(ctx context.Context, t domain.ObservedTrade, delay int, investment float64) {
	if delay > 0 {
		timer := time.NewTimer(time.Duration(delay) * s.unit)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			slog.Debug("simulation cancelled during delay", "tx", domain.ShortTx(t.TxHash), "delay", delay)
			return
		}
	}

	rec, err := s.sample(ctx, t, delay, investment)
	if err != nil || ctx.Err() != nil {
		return
	}

	inserted, err := s.ledger.InsertIfAbsent(ctx, rec)
	if err != nil {
		slog.Error("failed to persist simulation", "key", rec.Key(), "err", err)
		return
	}
	if !inserted {
		slog.Debug("simulation already recorded", "key", rec.Key())
		return
	}

	logSimulation(rec)
	if s.sink != nil {
		s.sink.Publish(domain.SimulationEvent(rec, s.now()))
	}
}

// Sample fetches the book now and builds the record for (t, delay) without
// persisting it. The only error returned is ctx cancellation; every other
// failure becomes a FAILED record.
func (s *Simulator) Sample(ctx context.Context, t domain.ObservedTrade, delay int) (domain.SimulationRecord, error) {
	return s.sample(ctx, t, delay, s.cfg.Investment)
}

func (s *Simulator) sample(ctx context.Context, t domain.ObservedTrade, delay int, investment float64) (domain.SimulationRecord, error) {
	rec := domain.NewRecord(s.newID(), t, delay, s.now())
	rec.Investment = investment
	rec.Fee = domain.Fee(investment, s.cfg.FeeRate)
	rec.TotalCost = domain.TotalCost(rec.Investment, rec.Fee)

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return rec, err
	}
	book, err := retry.Do(ctx, s.cfg.Retry, s.limiter, "simulator.FetchOrderBook",
		func(ctx context.Context) (domain.OrderBook, error) {
			return s.books.FetchOrderBook(ctx, t.TokenID)
		})
	s.sem.Release(1)

	if err != nil {
		if ctx.Err() != nil {
			return rec, ctx.Err()
		}
		slog.Warn("orderbook fetch failed", "token", t.TokenID, "delay", delay, "err", err)
		rec.Status = domain.StatusFailed
		rec.FailureReason = domain.ReasonFetchFailed
		return rec, nil
	}

	price, ok := book.FillPrice(t.Side)
	if !ok {
		rec.Status = domain.StatusFailed
		rec.FailureReason = domain.ReasonEmptyBook
		return rec, nil
	}

	rec.SampledPrice = price
	rec.SlippagePct = domain.SlippagePct(price, t.Price)

	if s.cfg.SlippageCheck && math.Abs(rec.SlippagePct) > s.cfg.MaxSlippagePct {
		rec.Status = domain.StatusFailed
		rec.FailureReason = domain.ReasonSlippage
		return rec, nil
	}

	rec.Status = domain.StatusOpen
	return rec, nil
}

func logSimulation(r domain.SimulationRecord) {
	if r.Status == domain.StatusFailed {
		slog.Info("simulation failed",
			"account", r.AccountNickname,
			"tx", domain.ShortTx(r.TxHash),
			"delay", r.DelaySeconds,
			"reason", r.FailureReason,
			"slippage_pct", r.SlippagePct,
		)
		return
	}
	slog.Info("simulated copy",
		"account", r.AccountNickname,
		"side", r.Side,
		"title", r.Title,
		"delay", r.DelaySeconds,
		"target", r.TargetPrice,
		"sampled", r.SampledPrice,
		"slippage_pct", r.SlippagePct,
		"cost", r.TotalCost,
	)
}
