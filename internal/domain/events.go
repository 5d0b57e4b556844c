package domain

import "time"

// EventKind identifica el tipo de evento del pipeline.
type EventKind string

const (
	EventNewTrade            EventKind = "new_trade_detected"
	EventSimulationCompleted EventKind = "simulation_completed"
	EventMarketSettled       EventKind = "market_settled"
)

// Event is published fire-and-forget to the configured sinks.
type Event struct {
	Kind EventKind
	At   time.Time

	// EventNewTrade
	Trade *ObservedTrade
	// EventSimulationCompleted
	Record  *SimulationRecord
	Success bool
	// EventMarketSettled
	MarketID     string
	SettledCount int
	TotalPnL     float64
}

// NewTradeEvent builds an EventNewTrade.
func NewTradeEvent(t ObservedTrade, at time.Time) Event {
	return Event{Kind: EventNewTrade, At: at, Trade: &t}
}

// SimulationEvent builds an EventSimulationCompleted.
func SimulationEvent(r SimulationRecord, at time.Time) Event {
	return Event{Kind: EventSimulationCompleted, At: at, Record: &r, Success: r.Status != StatusFailed}
}

// SettledEvent builds an EventMarketSettled.
func SettledEvent(marketID string, count int, totalPnL float64, at time.Time) Event {
	return Event{Kind: EventMarketSettled, At: at, MarketID: marketID, SettledCount: count, TotalPnL: totalPnL}
}
