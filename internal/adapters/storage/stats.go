package storage

import (
	"context"
	"fmt"

	"github.com/airhao3/jmm-trade/internal/domain"
)

// Stats agrega el ledger completo.
func (s *SQLiteLedger) Stats(ctx context.Context) (domain.LedgerStats, error) {
	var st domain.LedgerStats

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'OPEN'    THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'SETTLED' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'FAILED'  THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(pnl), 0),
		       COALESCE(AVG(pnl), 0),
		       COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(MAX(pnl), 0),
		       COALESCE(MIN(pnl), 0),
		       COALESCE(AVG(fee), 0)
		FROM sim_trades`,
	).Scan(
		&st.Total, &st.Open, &st.Settled, &st.Failed,
		&st.TotalPnL, &st.AvgPnL, &st.Wins,
		&st.BestPnL, &st.WorstPnL, &st.AvgFee,
	)
	if err != nil {
		return st, fmt.Errorf("storage.Stats: totals: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(ABS(slippage_pct)), 0)
		FROM sim_trades WHERE status != 'FAILED'`,
	).Scan(&st.AvgSlippage); err != nil {
		return st, fmt.Errorf("storage.Stats: slippage: %w", err)
	}

	if st.Settled > 0 {
		st.WinRate = float64(st.Wins) / float64(st.Settled) * 100
	}
	st.TotalPnL = domain.Round4(st.TotalPnL)
	st.AvgPnL = domain.Round4(st.AvgPnL)
	st.AvgSlippage = domain.Round4(st.AvgSlippage)
	st.AvgFee = domain.Round4(st.AvgFee)
	return st, nil
}

// PnLSummary agrupa el PnL por cuenta y delay.
func (s *SQLiteLedger) PnLSummary(ctx context.Context) ([]domain.PnLSummaryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_nickname, delay_seconds, COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'SETTLED' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(pnl), 0),
		       COALESCE(AVG(pnl), 0),
		       COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(CASE WHEN status != 'FAILED' THEN ABS(slippage_pct) END), 0)
		FROM sim_trades
		GROUP BY account_nickname, delay_seconds
		ORDER BY account_nickname, delay_seconds`)
	if err != nil {
		return nil, fmt.Errorf("storage.PnLSummary: query: %w", err)
	}
	defer rows.Close()

	var out []domain.PnLSummaryRow
	for rows.Next() {
		var r domain.PnLSummaryRow
		if err := rows.Scan(
			&r.Nickname, &r.DelaySeconds, &r.Trades, &r.Settled,
			&r.TotalPnL, &r.AvgPnL, &r.Wins, &r.AvgSlippage,
		); err != nil {
			return nil, fmt.Errorf("storage.PnLSummary: scan: %w", err)
		}
		r.TotalPnL = domain.Round4(r.TotalPnL)
		r.AvgPnL = domain.Round4(r.AvgPnL)
		r.AvgSlippage = domain.Round4(r.AvgSlippage)
		out = append(out, r)
	}
	return out, rows.Err()
}
