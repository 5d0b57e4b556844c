// Package risk ajusta la inversión de cada copia según lo que hacen las demás
// cuentas seguidas en el mismo mercado y según el tamaño del trade original.
//
// Cada trade observado deja una señal (mercado, lado, outcome) que vive
// SignalTTL. Al evaluar un trade nuevo se miran las señales vivas de OTRAS
// cuentas en ese mercado:
//
//   - conflicto: alguien apuesta en contra. Si su score es mayor se reduce la
//     inversión, si es igual se descarta el trade y si es menor se sigue igual.
//   - convergencia: dos o más cuentas apuestan lo mismo. Se amplifica.
//
// Todo es opt-in. Con Enabled=false y WhaleCap=false el Manager devuelve la
// inversión base sin tocarla.
package risk

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/airhao3/jmm-trade/internal/domain"
)

// Action es el veredicto sobre un trade.
type Action string

const (
	ActionProceed Action = "PROCEED"
	ActionReduce  Action = "REDUCE"
	ActionSkip    Action = "SKIP"
	ActionAmplify Action = "AMPLIFY"
)

// DefaultScore es el score de una cuenta sin score configurado.
const DefaultScore = 5

// Config parametriza el Manager.
type Config struct {
	// Enabled activa la evaluación de conflictos y convergencias.
	Enabled      bool
	SignalTTL    time.Duration
	ReduceFactor float64 // multiplicador ante un rival de mayor score
	AmplifyStep  float64 // +step por cada cuenta alineada
	AmplifyMax   float64
	MinAligned   int // cuentas alineadas necesarias para amplificar

	// WhaleCap limita la copia a WhaleCapPct del notional del trade original.
	WhaleCap    bool
	WhaleCapPct float64
	// MinInvestment es el suelo de la inversión tras el cap.
	MinInvestment float64
}

// DefaultConfig devuelve los valores por defecto, todo desactivado.
func DefaultConfig() Config {
	return Config{
		SignalTTL:     10 * time.Minute,
		ReduceFactor:  0.3,
		AmplifyStep:   0.2,
		AmplifyMax:    1.5,
		MinAligned:    2,
		WhaleCapPct:   0.01,
		MinInvestment: 5,
	}
}

// Verdict es el resultado de Assess.
type Verdict struct {
	Action      Action
	Multiplier  float64
	Opposing    int
	Aligned     int
	Convergence int // cuentas (incluida la evaluada) en la misma dirección
	Reasons     []string
}

type signal struct {
	tx      string
	account string
	side    domain.Side
	outcome string
	score   int
	at      time.Time
}

// Manager guarda las señales recientes por mercado. Es seguro para uso concurrente.
type Manager struct {
	cfg    Config
	scores map[string]int // address → score
	now    func() time.Time

	mu      sync.Mutex
	signals map[string][]signal // market id → señales
}

// New crea un Manager. Las cuentas aportan el score de cada address.
func New(cfg Config, accounts []domain.TrackedAccount) *Manager {
	def := DefaultConfig()
	if cfg.SignalTTL <= 0 {
		cfg.SignalTTL = def.SignalTTL
	}
	if cfg.ReduceFactor < 0 {
		cfg.ReduceFactor = def.ReduceFactor
	}
	if cfg.AmplifyStep <= 0 {
		cfg.AmplifyStep = def.AmplifyStep
	}
	if cfg.AmplifyMax < 1 {
		cfg.AmplifyMax = def.AmplifyMax
	}
	if cfg.MinAligned <= 0 {
		cfg.MinAligned = def.MinAligned
	}
	if cfg.WhaleCapPct <= 0 {
		cfg.WhaleCapPct = def.WhaleCapPct
	}
	if cfg.MinInvestment < 0 {
		cfg.MinInvestment = def.MinInvestment
	}

	scores := make(map[string]int, len(accounts))
	for _, a := range accounts {
		s := a.Score
		if s <= 0 {
			s = DefaultScore
		}
		scores[strings.ToLower(a.Address)] = s
	}

	return &Manager{
		cfg:     cfg,
		scores:  scores,
		now:     time.Now,
		signals: make(map[string][]signal),
	}
}

// WithClock inyecta el reloj (tests).
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) score(address string) int {
	if s, ok := m.scores[strings.ToLower(address)]; ok {
		return s
	}
	return DefaultScore
}

// Record guarda la señal de t. Una segunda entrega del mismo tx reemplaza a la primera.
func (m *Manager) Record(t domain.ObservedTrade) {
	if t.MarketID == "" {
		return
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.liveLocked(t.MarketID, now)
	kept := live[:0]
	for _, s := range live {
		if s.tx != t.TxHash {
			kept = append(kept, s)
		}
	}
	m.signals[t.MarketID] = append(kept, signal{
		tx:      t.TxHash,
		account: strings.ToLower(t.AccountAddress),
		side:    t.Side,
		outcome: t.Outcome,
		score:   m.score(t.AccountAddress),
		at:      now,
	})
}

// liveLocked poda las señales caducadas del mercado y devuelve las vivas.
func (m *Manager) liveLocked(marketID string, now time.Time) []signal {
	all := m.signals[marketID]
	live := all[:0]
	for _, s := range all {
		if now.Sub(s.at) < m.cfg.SignalTTL {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		delete(m.signals, marketID)
		return nil
	}
	m.signals[marketID] = live
	return live
}

// opposes: mismo lado en otro outcome, o lado contrario en el mismo outcome.
func opposes(a, b signal) bool {
	sameOutcome := strings.EqualFold(a.outcome, b.outcome)
	if a.side == b.side {
		return !sameOutcome
	}
	return sameOutcome
}

func aligned(a, b signal) bool {
	return a.side == b.side && strings.EqualFold(a.outcome, b.outcome)
}

// Assess evalúa t contra las señales vivas de otras cuentas en su mercado.
// No registra t; Size hace Record y luego Assess.
func (m *Manager) Assess(t domain.ObservedTrade) Verdict {
	v := Verdict{Action: ActionProceed, Multiplier: 1}
	if t.MarketID == "" {
		return v
	}

	me := signal{
		account: strings.ToLower(t.AccountAddress),
		side:    t.Side,
		outcome: t.Outcome,
		score:   m.score(t.AccountAddress),
	}

	m.mu.Lock()
	live := append([]signal(nil), m.liveLocked(t.MarketID, m.now())...)
	m.mu.Unlock()

	bestRival := -1
	for _, s := range live {
		if s.account == me.account {
			continue
		}
		switch {
		case opposes(me, s):
			v.Opposing++
			if s.score > bestRival {
				bestRival = s.score
			}
		case aligned(me, s):
			v.Aligned++
		}
	}

	if v.Opposing > 0 {
		switch {
		case bestRival > me.score:
			v.Action = ActionReduce
			v.Multiplier = m.cfg.ReduceFactor
			v.Reasons = append(v.Reasons, fmt.Sprintf("conflict with higher score (%d > %d)", bestRival, me.score))
		case bestRival == me.score:
			v.Action = ActionSkip
			v.Multiplier = 0
			v.Reasons = append(v.Reasons, fmt.Sprintf("conflict with equal score (%d)", me.score))
		default:
			v.Reasons = append(v.Reasons, fmt.Sprintf("conflict with lower score (%d < %d)", bestRival, me.score))
		}
		return v
	}

	if v.Aligned >= m.cfg.MinAligned {
		v.Action = ActionAmplify
		v.Convergence = v.Aligned + 1
		v.Multiplier = math.Min(m.cfg.AmplifyMax, 1+m.cfg.AmplifyStep*float64(v.Aligned))
		v.Reasons = append(v.Reasons, fmt.Sprintf("%d accounts converge", v.Convergence))
	}
	return v
}

// Size implementa ports.Sizer: cap por tamaño del trade, suelo y después el
// multiplicador de riesgo. ok=false si el veredicto es SKIP o la inversión
// resultante es 0.
func (m *Manager) Size(t domain.ObservedTrade, base float64) (float64, bool) {
	inv := base
	if m.cfg.WhaleCap {
		inv = m.capped(t, inv)
	}
	if !m.cfg.Enabled {
		return round2(inv), true
	}

	m.Record(t)
	v := m.Assess(t)
	if len(v.Reasons) > 0 {
		slog.Info("risk verdict",
			"account", t.AccountNickname,
			"tx", domain.ShortTx(t.TxHash),
			"market", t.MarketID,
			"action", v.Action,
			"multiplier", v.Multiplier,
			"reasons", v.Reasons,
		)
	}
	out := round2(inv * v.Multiplier)
	if v.Action == ActionSkip || out <= 0 {
		return 0, false
	}
	return out, true
}

// capped aplica el cap de WhaleCapPct·price·size. Un cap por debajo del
// suelo no se aplica.
func (m *Manager) capped(t domain.ObservedTrade, inv float64) float64 {
	limit := t.Price * t.Size * m.cfg.WhaleCapPct
	if limit > m.cfg.MinInvestment && inv > limit {
		slog.Debug("investment capped by trade size",
			"tx", domain.ShortTx(t.TxHash),
			"base", inv,
			"cap", limit,
		)
		inv = limit
	}
	return math.Max(inv, m.cfg.MinInvestment)
}

// Len devuelve cuántos mercados tienen señales guardadas.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.signals)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
