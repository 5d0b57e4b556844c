package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/airhao3/jmm-trade/internal/domain"
	"github.com/segmentio/kafka-go"
)

// messageWriter es la parte de *kafka.Writer que usa KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publica los eventos del pipeline como JSON en un topic.
// La key es la dirección de la cuenta (o el market id para settlements), así
// los eventos de una misma cuenta caen en la misma partición.
type KafkaSink struct {
	writer messageWriter
	Topic  string
}

// NewKafkaSink crea un sink contra los brokers dados.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond, // un evento por write; el default de 1s frena la cola
		WriteTimeout:           5 * time.Second,
	}
	return &KafkaSink{writer: writer, Topic: topic}
}

func (k *KafkaSink) Name() string { return "kafka" }

// Handle serializa ev y lo escribe en el topic.
func (k *KafkaSink) Handle(ctx context.Context, ev domain.Event) error {
	payload := newEventPayload(ev)
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify.KafkaSink: marshal %s: %w", ev.Kind, err)
	}

	msg := kafka.Message{
		Key:   []byte(payload.key()),
		Value: value,
		Time:  ev.At,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("notify.KafkaSink: kafka write: %w", err)
	}
	return nil
}

// Close cierra el writer subyacente.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

// eventPayload es el formato JSON publicado.
type eventPayload struct {
	Kind    domain.EventKind `json:"kind"`
	At      time.Time        `json:"at"`
	Account string           `json:"account,omitempty"`
	Name    string           `json:"nickname,omitempty"`
	TxHash  string           `json:"tx_hash,omitempty"`

	MarketID string      `json:"market_id,omitempty"`
	TokenID  string      `json:"token_id,omitempty"`
	Title    string      `json:"title,omitempty"`
	Side     domain.Side `json:"side,omitempty"`
	Price    float64     `json:"price,omitempty"`
	Size     float64     `json:"size,omitempty"`

	Success       *bool   `json:"success,omitempty"`
	DelaySeconds  *int    `json:"delay_seconds,omitempty"`
	SampledPrice  float64 `json:"sampled_price,omitempty"`
	SlippagePct   float64 `json:"slippage_pct,omitempty"`
	TotalCost     float64 `json:"total_cost,omitempty"`
	FailureReason string  `json:"failure_reason,omitempty"`

	SettledCount int     `json:"settled_count,omitempty"`
	TotalPnL     float64 `json:"total_pnl,omitempty"`
}

func newEventPayload(ev domain.Event) eventPayload {
	p := eventPayload{Kind: ev.Kind, At: ev.At.UTC()}
	switch ev.Kind {
	case domain.EventNewTrade:
		if t := ev.Trade; t != nil {
			p.Account, p.Name, p.TxHash = t.AccountAddress, t.AccountNickname, t.TxHash
			p.MarketID, p.TokenID, p.Title = t.MarketID, t.TokenID, t.Title
			p.Side, p.Price, p.Size = t.Side, t.Price, t.Size
		}
	case domain.EventSimulationCompleted:
		if r := ev.Record; r != nil {
			ok, delay := ev.Success, r.DelaySeconds
			p.Account, p.Name, p.TxHash = r.AccountAddress, r.AccountNickname, r.TxHash
			p.MarketID, p.TokenID, p.Title = r.MarketID, r.TokenID, r.Title
			p.Side, p.Price = r.Side, r.TargetPrice
			p.Success, p.DelaySeconds = &ok, &delay
			p.SampledPrice, p.SlippagePct, p.TotalCost = r.SampledPrice, r.SlippagePct, r.TotalCost
			p.FailureReason = r.FailureReason
		}
	case domain.EventMarketSettled:
		p.MarketID = ev.MarketID
		p.SettledCount = ev.SettledCount
		p.TotalPnL = ev.TotalPnL
	}
	return p
}

func (p eventPayload) key() string {
	if p.Account != "" {
		return p.Account
	}
	return p.MarketID
}
