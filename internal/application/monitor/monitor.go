// Package monitor polls tracked accounts and emits their new trades.
//
// Each account goes UNSEEDED → SEEDED on its first successful poll: the trades
// returned then are only recorded as seen, never dispatched. Later polls
// dispatch trades whose transaction hash has not been seen and that pass the
// market filter. Filtered trades are also recorded as seen.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/airhao3/jmm-trade/internal/domain"
	"github.com/airhao3/jmm-trade/internal/ports"
)

// Config controla el polling.
type Config struct {
	PollInterval time.Duration
	FetchLimit   int // trades pedidos por cuenta y poll
	SeenCap      int // máximo de hashes recordados por cuenta; 0 = 10 × FetchLimit
	Filter       FilterConfig
}

// DefaultConfig devuelve los valores por defecto.
func DefaultConfig() Config {
	return Config{
		PollInterval: 3 * time.Second,
		FetchLimit:   50,
		Filter:       DefaultFilterConfig(),
	}
}

// Acquirer debita presupuesto de rate limit antes de cada llamada.
type Acquirer interface {
	Acquire(ctx context.Context, n int) error
}

// accountState es el estado por cuenta. Solo lo toca la goroutine que hace el
// poll de esa cuenta, y los ciclos no se solapan.
type accountState struct {
	acct   domain.TrackedAccount
	seeded bool
	seen   map[string]struct{}
	order  []string // FIFO para el cap
}

func newAccountState(a domain.TrackedAccount) *accountState {
	return &accountState{acct: a, seen: make(map[string]struct{})}
}

func (s *accountState) hasSeen(tx string) bool {
	_, ok := s.seen[tx]
	return ok
}

func (s *accountState) markSeen(tx string, limit int) {
	if s.hasSeen(tx) {
		return
	}
	s.seen[tx] = struct{}{}
	s.order = append(s.order, tx)
	for limit > 0 && len(s.order) > limit {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
}

// Monitor hace polling de las cuentas y envía los trades nuevos por out.
type Monitor struct {
	cfg      Config
	source   ports.TradeSource
	limiter  Acquirer
	filter   *Filter
	accounts []*accountState
	out      chan<- domain.ObservedTrade
	sink     ports.EventSink

	polls      int
	totalPollT time.Duration
}

// New crea un Monitor para las cuentas habilitadas. limiter y sink pueden ser nil.
func New(cfg Config, source ports.TradeSource, limiter Acquirer, accounts []domain.TrackedAccount, out chan<- domain.ObservedTrade, sink ports.EventSink) *Monitor {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = def.FetchLimit
	}
	if cfg.SeenCap <= 0 {
		cfg.SeenCap = 10 * cfg.FetchLimit
	}

	m := &Monitor{
		cfg:     cfg,
		source:  source,
		limiter: limiter,
		filter:  NewFilter(cfg.Filter),
		out:     out,
		sink:    sink,
	}
	for _, a := range accounts {
		if a.Enabled {
			m.accounts = append(m.accounts, newAccountState(a))
		}
	}
	return m
}

// Run hace polling hasta que ctx se cancela. El primer ciclo es inmediato.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("monitor starting",
		"interval", m.cfg.PollInterval,
		"accounts", len(m.accounts),
		"filter", m.cfg.Filter.Enabled,
	)

	m.runCycle(ctx)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor stopped", "polls", m.polls)
			return nil
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

func (m *Monitor) runCycle(ctx context.Context) {
	start := time.Now()
	n := m.PollOnce(ctx)
	elapsed := time.Since(start)

	m.polls++
	m.totalPollT += elapsed

	switch {
	case n > 0:
		slog.Info("poll cycle", "poll", m.polls, "new_trades", n, "latency", elapsed.Round(time.Millisecond))
	case m.polls%20 == 0:
		avg := m.totalPollT / time.Duration(m.polls)
		slog.Info("poll heartbeat", "poll", m.polls, "latency", elapsed.Round(time.Millisecond), "avg", avg.Round(time.Millisecond))
	}
}

// PollOnce consulta todas las cuentas en paralelo y devuelve cuántos trades
// se despacharon. Los errores por cuenta se loguean y no se propagan.
func (m *Monitor) PollOnce(ctx context.Context) int {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for _, st := range m.accounts {
		wg.Add(1)
		go func(st *accountState) {
			defer wg.Done()
			n, err := m.pollAccount(ctx, st)
			if err != nil && ctx.Err() == nil {
				slog.Error("poll failed", "account", st.acct.Nickname, "err", err)
			}
			mu.Lock()
			total += n
			mu.Unlock()
		}(st)
	}
	wg.Wait()
	return total
}

// pollAccount consulta una cuenta. En el primer poll exitoso solo siembra el set de vistos.
func (m *Monitor) pollAccount(ctx context.Context, st *accountState) (int, error) {
	if m.limiter != nil {
		if err := m.limiter.Acquire(ctx, 1); err != nil {
			return 0, err
		}
	}

	trades, err := m.source.ListTrades(ctx, st.acct.Address, m.cfg.FetchLimit)
	if err != nil {
		return 0, err
	}

	if !st.seeded {
		for _, t := range trades {
			if t.TxHash != "" {
				st.markSeen(t.TxHash, m.cfg.SeenCap)
			}
		}
		st.seeded = true
		slog.Info("account seeded", "account", st.acct.Nickname, "existing_trades", len(trades))
		return 0, nil
	}

	// La API devuelve más nuevos primero; despachamos en orden cronológico.
	dispatched := 0
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		if t.TxHash == "" || st.hasSeen(t.TxHash) {
			continue
		}
		st.markSeen(t.TxHash, m.cfg.SeenCap)

		t.AccountAddress = st.acct.Address
		t.AccountNickname = st.acct.Nickname

		if ok, reason := m.filter.Passes(t); !ok {
			slog.Debug("trade filtered out",
				"account", st.acct.Nickname,
				"title", t.Title,
				"reason", reason,
			)
			continue
		}

		slog.Info("new trade",
			"account", st.acct.Nickname,
			"side", t.Side,
			"title", t.Title,
			"price", t.Price,
			"tx", domain.ShortTx(t.TxHash),
		)

		select {
		case m.out <- t:
		case <-ctx.Done():
			return dispatched, ctx.Err()
		}
		dispatched++

		if m.sink != nil {
			m.sink.Publish(domain.NewTradeEvent(t, time.Now()))
		}
	}
	return dispatched, nil
}
