package storage

// sqlite.go: ledger de simulaciones.
//
//   - `sim_trades`: una fila por (tx_hash, delay_seconds). UNIQUE + INSERT OR IGNORE
//     hace que la inserción sea idempotente ante entregas duplicadas.
//   - Las transiciones de estado van con guard `WHERE status = 'OPEN'`: un record
//     SETTLED o FAILED nunca se reescribe.
//   - `markets`: última metadata vista por mercado. Settlement solo la lee para
//     mercados ya resueltos; para el resto manda el TTL de la cache en memoria.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/airhao3/jmm-trade/internal/domain"
	"github.com/airhao3/jmm-trade/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sim_trades (
    id               TEXT PRIMARY KEY,
    tx_hash          TEXT    NOT NULL,
    delay_seconds    INTEGER NOT NULL,
    account_address  TEXT    NOT NULL,
    account_nickname TEXT    NOT NULL DEFAULT '',
    market_id        TEXT    NOT NULL,
    token_id         TEXT    NOT NULL,
    outcome          TEXT    NOT NULL DEFAULT '',
    title            TEXT    NOT NULL DEFAULT '',
    side             TEXT    NOT NULL,
    target_price     REAL    NOT NULL DEFAULT 0,
    target_size      REAL    NOT NULL DEFAULT 0,
    target_time      TEXT,
    sampled_price    REAL    NOT NULL DEFAULT 0,
    slippage_pct     REAL    NOT NULL DEFAULT 0,
    investment       REAL    NOT NULL DEFAULT 0,
    fee              REAL    NOT NULL DEFAULT 0,
    total_cost       REAL    NOT NULL DEFAULT 0,
    status           TEXT    NOT NULL,
    failure_reason   TEXT    NOT NULL DEFAULT '',
    settlement_price REAL,
    pnl              REAL,
    pnl_pct          REAL,
    created_at       TEXT    NOT NULL,
    settled_at       TEXT,
    UNIQUE (tx_hash, delay_seconds)
);

CREATE INDEX IF NOT EXISTS idx_sim_status  ON sim_trades(status);
CREATE INDEX IF NOT EXISTS idx_sim_market  ON sim_trades(market_id);
CREATE INDEX IF NOT EXISTS idx_sim_created ON sim_trades(created_at DESC);

CREATE TABLE IF NOT EXISTS markets (
    market_id        TEXT PRIMARY KEY,
    question         TEXT,
    slug             TEXT,
    active           INTEGER NOT NULL DEFAULT 0,
    resolved         INTEGER NOT NULL DEFAULT 0,
    resolution_price REAL,
    token_prices     TEXT,
    fetched_at       TEXT NOT NULL
);
`

const recordColumns = `
	id, tx_hash, delay_seconds, account_address, account_nickname, market_id,
	token_id, outcome, title, side, target_price, target_size, target_time,
	sampled_price, slippage_pct, investment, fee, total_cost, status,
	failure_reason, settlement_price, pnl, pnl_pct, created_at, settled_at`

// SQLiteLedger implementa ports.Ledger usando SQLite (pure Go, sin CGo).
type SQLiteLedger struct {
	db *sql.DB
}

var (
	_ ports.Ledger        = (*SQLiteLedger)(nil)
	_ ports.MarketArchive = (*SQLiteLedger)(nil)
)

// NewSQLiteLedger abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteLedger: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteLedger: pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteLedger: apply schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// InsertIfAbsent inserta el record salvo que (tx_hash, delay_seconds) ya exista.
func (s *SQLiteLedger) InsertIfAbsent(ctx context.Context, r domain.SimulationRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO sim_trades (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TxHash, r.DelaySeconds, r.AccountAddress, r.AccountNickname, r.MarketID,
		r.TokenID, r.Outcome, r.Title, string(r.Side), r.TargetPrice, r.TargetSize, formatTime(r.TargetTime),
		r.SampledPrice, r.SlippagePct, r.Investment, r.Fee, r.TotalCost, string(r.Status),
		r.FailureReason, r.SettlementPrice, r.PnL, r.PnLPct, r.CreatedAt.UTC().Format(time.RFC3339Nano), formatTimePtr(r.SettledAt),
	)
	if err != nil {
		return false, fmt.Errorf("storage.InsertIfAbsent: %s: %w", r.Key(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.InsertIfAbsent: rows affected: %w", err)
	}
	return n == 1, nil
}

// ListOpen devuelve los records OPEN, más viejos primero.
func (s *SQLiteLedger) ListOpen(ctx context.Context) ([]domain.SimulationRecord, error) {
	recs, err := s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM sim_trades WHERE status = ? ORDER BY created_at ASC`,
		string(domain.StatusOpen),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.ListOpen: %w", err)
	}
	return recs, nil
}

// Recent devuelve los últimos limit records.
func (s *SQLiteLedger) Recent(ctx context.Context, limit int) ([]domain.SimulationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	recs, err := s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM sim_trades ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.Recent: %w", err)
	}
	return recs, nil
}

// UpdateSettlement aplica la transición solo si el record sigue OPEN.
func (s *SQLiteLedger) UpdateSettlement(ctx context.Context, u ports.SettlementUpdate) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sim_trades
		SET status = ?, settlement_price = ?, pnl = ?, pnl_pct = ?, settled_at = ?
		WHERE id = ? AND status = 'OPEN'`,
		string(u.Status), u.SettlementPrice, u.PnL, u.PnLPct,
		u.SettledAt.UTC().Format(time.RFC3339Nano), u.ID,
	)
	if err != nil {
		return false, fmt.Errorf("storage.UpdateSettlement: %s: %w", u.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.UpdateSettlement: rows affected: %w", err)
	}
	return n == 1, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func (s *SQLiteLedger) queryRecords(ctx context.Context, query string, args ...any) ([]domain.SimulationRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.SimulationRecord
	for rows.Next() {
		var (
			r                        domain.SimulationRecord
			side, status, createdAt  string
			targetTime, settledAt    sql.NullString
			settlePrice, pnl, pnlPct sql.NullFloat64
		)
		if err := rows.Scan(
			&r.ID, &r.TxHash, &r.DelaySeconds, &r.AccountAddress, &r.AccountNickname, &r.MarketID,
			&r.TokenID, &r.Outcome, &r.Title, &side, &r.TargetPrice, &r.TargetSize, &targetTime,
			&r.SampledPrice, &r.SlippagePct, &r.Investment, &r.Fee, &r.TotalCost, &status,
			&r.FailureReason, &settlePrice, &pnl, &pnlPct, &createdAt, &settledAt,
		); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		r.Side = domain.Side(side)
		r.Status = domain.SimStatus(status)
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if targetTime.Valid {
			r.TargetTime, _ = time.Parse(time.RFC3339Nano, targetTime.String)
		}
		if settledAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, settledAt.String)
			r.SettledAt = &t
		}
		r.SettlementPrice = nullFloat(settlePrice)
		r.PnL = nullFloat(pnl)
		r.PnLPct = nullFloat(pnlPct)

		out = append(out, r)
	}
	return out, rows.Err()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
