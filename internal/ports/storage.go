package ports

import (
	"context"
	"time"

	"github.com/airhao3/jmm-trade/internal/domain"
)

// Ledger persists simulation records. Writes are idempotent.
type Ledger interface {
	// InsertIfAbsent stores rec unless (TxHash, DelaySeconds) already exists.
	// inserted=false means the pair was already recorded.
	InsertIfAbsent(ctx context.Context, rec domain.SimulationRecord) (inserted bool, err error)

	// ListOpen devuelve un snapshot de los records OPEN.
	ListOpen(ctx context.Context) ([]domain.SimulationRecord, error)

	// UpdateSettlement transitions an OPEN record to status. Records that are
	// no longer OPEN are left untouched and updated=false is returned.
	UpdateSettlement(ctx context.Context, u SettlementUpdate) (updated bool, err error)

	Stats(ctx context.Context) (domain.LedgerStats, error)
	PnLSummary(ctx context.Context) ([]domain.PnLSummaryRow, error)
	Recent(ctx context.Context, limit int) ([]domain.SimulationRecord, error)

	Close() error
}

// SettlementUpdate es la transición OPEN → SETTLED de un record.
type SettlementUpdate struct {
	ID              string
	Status          domain.SimStatus
	SettlementPrice float64
	PnL             float64
	PnLPct          float64
	SettledAt       time.Time
}

// MarketArchive guarda la metadata de mercados consultados. Un mercado resuelto
// no cambia, así que el archivo evita refetches tras un reinicio.
type MarketArchive interface {
	SaveMarket(ctx context.Context, m domain.MarketInfo) error
	GetMarket(ctx context.Context, marketID string) (domain.MarketInfo, bool, error)
}
