package domain

// LedgerStats agrega el estado del ledger.
type LedgerStats struct {
	Total       int
	Open        int
	Settled     int
	Failed      int
	TotalPnL    float64
	AvgPnL      float64
	Wins        int
	WinRate     float64 // % de settled con pnl > 0
	AvgSlippage float64 // media de |slippage| en records no FAILED
	AvgFee      float64
	BestPnL     float64
	WorstPnL    float64
}

// PnLSummaryRow is realized PnL grouped by account and delay.
type PnLSummaryRow struct {
	Nickname     string
	DelaySeconds int
	Trades       int
	Settled      int
	TotalPnL     float64
	AvgPnL       float64
	Wins         int
	AvgSlippage  float64
}
