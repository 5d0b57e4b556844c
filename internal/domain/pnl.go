package domain

import "github.com/shopspring/decimal"

// Money amounts are rounded to 4 decimals; percentages of PnL to 2.
const (
	moneyPlaces = 4
	pctPlaces   = 2
)

// Round4 redondea a 4 decimales.
func Round4(v float64) float64 {
	return decimal.NewFromFloat(v).Round(moneyPlaces).InexactFloat64()
}

// SlippagePct devuelve (sampled - target) / target * 100.
// Devuelve 0 si el target no es positivo.
func SlippagePct(sampled, target float64) float64 {
	if target <= 0 {
		return 0
	}
	t := decimal.NewFromFloat(target)
	return decimal.NewFromFloat(sampled).Sub(t).
		Div(t).
		Mul(decimal.NewFromInt(100)).
		Round(moneyPlaces).
		InexactFloat64()
}

// Fee es la comisión sobre la inversión.
func Fee(investment, rate float64) float64 {
	return decimal.NewFromFloat(investment).Mul(decimal.NewFromFloat(rate)).Round(moneyPlaces).InexactFloat64()
}

// TotalCost = investment + fee.
func TotalCost(investment, fee float64) float64 {
	return decimal.NewFromFloat(investment).Add(decimal.NewFromFloat(fee)).Round(moneyPlaces).InexactFloat64()
}

// Outcome is the settled result of one record.
type Outcome struct {
	Shares float64
	Payout float64
	PnL    float64
	PnLPct float64
}

// Settle computes the realized outcome of a position opened at sampled price.
//
//	BUY:  payout = shares × resolution
//	SELL: payout = shares × (1 - resolution)
//
// with shares = investment / sampled and pnl = payout - investment - fee.
func Settle(side Side, investment, fee, sampled, resolution float64) Outcome {
	if sampled <= 0 {
		return Outcome{}
	}
	inv := decimal.NewFromFloat(investment)
	shares := inv.Div(decimal.NewFromFloat(sampled))

	res := decimal.NewFromFloat(resolution)
	if side == SideSell {
		res = decimal.NewFromInt(1).Sub(res)
	}
	payout := shares.Mul(res)
	pnl := payout.Sub(inv).Sub(decimal.NewFromFloat(fee)).Round(moneyPlaces)

	var pct decimal.Decimal
	if inv.IsPositive() {
		pct = pnl.Div(inv).Mul(decimal.NewFromInt(100)).Round(pctPlaces)
	}

	return Outcome{
		Shares: shares.Round(moneyPlaces).InexactFloat64(),
		Payout: payout.Round(moneyPlaces).InexactFloat64(),
		PnL:    pnl.InexactFloat64(),
		PnLPct: pct.InexactFloat64(),
	}
}
