package domain

import (
	"fmt"
	"sort"
	"time"
)

// SimStatus is the lifecycle of a simulation record.
type SimStatus string

const (
	StatusOpen    SimStatus = "OPEN"
	StatusFailed  SimStatus = "FAILED"
	StatusSettled SimStatus = "SETTLED"
)

// Failure reasons stored on FAILED records.
const (
	ReasonEmptyBook   = "empty orderbook"
	ReasonSlippage    = "slippage exceeded"
	ReasonFetchFailed = "orderbook fetch failed"
)

// SimulationRecord is the simulated copy of one observed trade at one delay.
// (TxHash, DelaySeconds) is unique in the ledger.
type SimulationRecord struct {
	ID string

	TxHash          string
	AccountAddress  string
	AccountNickname string
	MarketID        string
	TokenID         string
	Outcome         string
	Title           string
	Side            Side
	TargetPrice     float64
	TargetSize      float64
	TargetTime      time.Time

	DelaySeconds int
	SampledPrice float64
	SlippagePct  float64
	Investment   float64
	Fee          float64
	TotalCost    float64

	Status          SimStatus
	FailureReason   string
	SettlementPrice *float64
	PnL             *float64
	PnLPct          *float64

	CreatedAt time.Time
	SettledAt *time.Time
}

// Key identifies the (trade, delay) pair.
func (r SimulationRecord) Key() string {
	return SimKey(r.TxHash, r.DelaySeconds)
}

// SimKey builds the (trade, delay) identity used for dedup.
func SimKey(txHash string, delaySeconds int) string {
	return fmt.Sprintf("%s_%d", txHash, delaySeconds)
}

// NewRecord copia los campos del trade observado en un record nuevo.
func NewRecord(id string, t ObservedTrade, delaySeconds int, now time.Time) SimulationRecord {
	return SimulationRecord{
		ID:              id,
		TxHash:          t.TxHash,
		AccountAddress:  t.AccountAddress,
		AccountNickname: t.AccountNickname,
		MarketID:        t.MarketID,
		TokenID:         t.TokenID,
		Outcome:         t.Outcome,
		Title:           t.Title,
		Side:            t.Side,
		TargetPrice:     t.Price,
		TargetSize:      t.Size,
		TargetTime:      t.Timestamp,
		DelaySeconds:    delaySeconds,
		CreatedAt:       now,
	}
}

// NormalizeDelays ordena, deduplica y descarta delays negativos.
func NormalizeDelays(in []int) []int {
	seen := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, d := range in {
		if d < 0 {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
