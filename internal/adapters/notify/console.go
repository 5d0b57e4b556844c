package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/airhao3/jmm-trade/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console imprime eventos y reportes del ledger en texto plano.
type Console struct {
	out io.Writer
}

// NewConsole crea un Console que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un Console para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

func (c *Console) Name() string { return "console" }

// Handle imprime una línea por evento.
func (c *Console) Handle(_ context.Context, ev domain.Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	ts := at.Format("15:04:05")

	switch ev.Kind {
	case domain.EventNewTrade:
		if ev.Trade == nil {
			return nil
		}
		t := ev.Trade
		fmt.Fprintf(c.out, "[%s] NEW   %-10s %-4s %s @ %.4f  %s\n",
			ts, t.AccountNickname, t.Side, compactName(t.Title, 40), t.Price, domain.ShortTx(t.TxHash))

	case domain.EventSimulationCompleted:
		if ev.Record == nil {
			return nil
		}
		r := ev.Record
		if !ev.Success {
			fmt.Fprintf(c.out, "[%s] FAIL  %-10s d=%ds %s (%s, slip %.2f%%)\n",
				ts, r.AccountNickname, r.DelaySeconds, compactName(r.Title, 40), r.FailureReason, r.SlippagePct)
			return nil
		}
		fmt.Fprintf(c.out, "[%s] SIM   %-10s d=%ds %-4s %s target %.4f → %.4f (slip %+.2f%%) cost $%.2f\n",
			ts, r.AccountNickname, r.DelaySeconds, r.Side, compactName(r.Title, 40),
			r.TargetPrice, r.SampledPrice, r.SlippagePct, r.TotalCost)

	case domain.EventMarketSettled:
		fmt.Fprintf(c.out, "[%s] SETTLE %s  %d positions  pnl $%+.4f\n",
			ts, shortID(ev.MarketID), ev.SettledCount, ev.TotalPnL)
	}
	return nil
}

// PrintReport imprime estadísticas, PnL por (cuenta, delay) y los últimos records.
func (c *Console) PrintReport(stats domain.LedgerStats, summary []domain.PnLSummaryRow, recent []domain.SimulationRecord) {
	fmt.Fprintf(c.out, "\n========================================================\n")
	fmt.Fprintf(c.out, "  SHADOW COPY-TRADE REPORT  (%s)\n", time.Now().Format("2006-01-02 15:04"))
	fmt.Fprintf(c.out, "========================================================\n\n")

	if stats.Total == 0 {
		fmt.Fprintln(c.out, "  No simulations recorded yet.")
		fmt.Fprintln(c.out)
		return
	}

	fmt.Fprintf(c.out, "  Simulations:   %d  (open %d, settled %d, failed %d)\n",
		stats.Total, stats.Open, stats.Settled, stats.Failed)
	fmt.Fprintf(c.out, "  Realized PnL:  $%.4f  (avg $%.4f)\n", stats.TotalPnL, stats.AvgPnL)
	fmt.Fprintf(c.out, "  Win rate:      %.1f%%  (%d/%d)\n", stats.WinRate, stats.Wins, stats.Settled)
	fmt.Fprintf(c.out, "  Best / worst:  $%.4f / $%.4f\n", stats.BestPnL, stats.WorstPnL)
	fmt.Fprintf(c.out, "  Avg slippage:  %.2f%%   avg fee: $%.4f\n", stats.AvgSlippage, stats.AvgFee)

	if len(summary) > 0 {
		fmt.Fprintf(c.out, "\n  --- PnL BY ACCOUNT / DELAY ---\n")
		table := tablewriter.NewWriter(c.out)
		table.Header("Account", "Delay", "Trades", "Settled", "Wins", "PnL", "Avg PnL", "Avg Slip")
		for _, r := range summary {
			table.Append(
				r.Nickname,
				fmt.Sprintf("%ds", r.DelaySeconds),
				fmt.Sprintf("%d", r.Trades),
				fmt.Sprintf("%d", r.Settled),
				fmt.Sprintf("%d", r.Wins),
				fmt.Sprintf("$%.4f", r.TotalPnL),
				fmt.Sprintf("$%.4f", r.AvgPnL),
				fmt.Sprintf("%.2f%%", r.AvgSlippage),
			)
		}
		table.Render()
	}

	if len(recent) > 0 {
		fmt.Fprintf(c.out, "\n  --- RECENT SIMULATIONS ---\n")
		table := tablewriter.NewWriter(c.out)
		table.Header("Time", "Account", "Market", "Side", "Delay", "Target", "Fill", "Slip", "Status", "PnL")
		for _, r := range recent {
			table.Append(
				r.CreatedAt.Local().Format("01-02 15:04:05"),
				r.AccountNickname,
				truncate(r.Title, 32),
				string(r.Side),
				fmt.Sprintf("%ds", r.DelaySeconds),
				fmt.Sprintf("%.4f", r.TargetPrice),
				fmt.Sprintf("%.4f", r.SampledPrice),
				fmt.Sprintf("%+.2f%%", r.SlippagePct),
				statusLabel(r),
				pnlLabel(r.PnL),
			)
		}
		table.Render()
	}
	fmt.Fprintln(c.out)
}

// --- helpers ---

func statusLabel(r domain.SimulationRecord) string {
	if r.Status == domain.StatusFailed && r.FailureReason != "" {
		return "FAILED: " + r.FailureReason
	}
	return string(r.Status)
}

func pnlLabel(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("$%+.4f", *p)
}

func shortID(id string) string {
	if len(id) > 14 {
		return id[:12] + "..."
	}
	return id
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndex(cut, " "); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
