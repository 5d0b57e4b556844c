package domain

import (
	"strings"
	"time"
)

// Side es el lado de un trade observado.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normaliza el lado devuelto por la API. ok=false si no es BUY ni SELL.
func ParseSide(s string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy, true
	case "SELL":
		return SideSell, true
	}
	return "", false
}

// TrackedAccount es una cuenta externa cuyos trades se replican en sombra.
type TrackedAccount struct {
	Address  string // lowercase 0x...
	Nickname string
	Enabled  bool
	Score    int // 1-10, peso ante conflictos entre cuentas; 0 = default
}

// ObservedTrade es un trade detectado de una cuenta seguida. Inmutable una vez creado.
type ObservedTrade struct {
	TxHash          string
	AccountAddress  string
	AccountNickname string
	Side            Side
	MarketID        string // condition id
	TokenID         string // outcome token (asset)
	Outcome         string
	Title           string
	Slug            string
	EventSlug       string
	Price           float64
	Size            float64
	Timestamp       time.Time

	// Optional market window, when the venue reports it.
	MarketStart *time.Time
	MarketEnd   *time.Time
}

// WindowMinutes returns the market duration from the explicit start/end times.
func (t ObservedTrade) WindowMinutes() (float64, bool) {
	if t.MarketStart == nil || t.MarketEnd == nil {
		return 0, false
	}
	d := t.MarketEnd.Sub(*t.MarketStart)
	if d <= 0 {
		return 0, false
	}
	return d.Minutes(), true
}

// ShortTx devuelve un prefijo del hash para logs.
func ShortTx(tx string) string {
	if len(tx) <= 10 {
		return tx
	}
	return tx[:10] + "..."
}
