package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/airhao3/jmm-trade/internal/adapters/storage"
	"github.com/airhao3/jmm-trade/internal/domain"
	"github.com/airhao3/jmm-trade/internal/ports"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T) *storage.SQLiteLedger {
	t.Helper()
	db, err := storage.NewSQLiteLedger(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func makeRecord(tx string, delay int, status domain.SimStatus) domain.SimulationRecord {
	return domain.SimulationRecord{
		ID:              uuid.NewString(),
		TxHash:          tx,
		AccountAddress:  "0x1111111111111111111111111111111111111111",
		AccountNickname: "whale",
		MarketID:        "0xmarket",
		TokenID:         "tok_up",
		Outcome:         "Up",
		Title:           "Bitcoin Up or Down - 15 min",
		Side:            domain.SideBuy,
		TargetPrice:     0.50,
		TargetSize:      20,
		TargetTime:      time.Now().UTC().Add(-time.Minute).Truncate(time.Second),
		DelaySeconds:    delay,
		SampledPrice:    0.52,
		SlippagePct:     4,
		Investment:      100,
		Fee:             1.5,
		TotalCost:       101.5,
		Status:          status,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestLedger_InsertIfAbsent_Idempotent(t *testing.T) {
	db := newLedger(t)
	ctx := context.Background()

	rec := makeRecord("0xtx1", 3, domain.StatusOpen)
	inserted, err := db.InsertIfAbsent(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	// mismo (tx, delay) con otro id: no-op
	dup := makeRecord("0xtx1", 3, domain.StatusOpen)
	inserted, err = db.InsertIfAbsent(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	// otro delay sí entra
	inserted, err = db.InsertIfAbsent(ctx, makeRecord("0xtx1", 1, domain.StatusOpen))
	require.NoError(t, err)
	assert.True(t, inserted)

	open, err := db.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
}

func TestLedger_ListOpen_RoundTripsFields(t *testing.T) {
	db := newLedger(t)
	ctx := context.Background()

	rec := makeRecord("0xtx1", 3, domain.StatusOpen)
	_, err := db.InsertIfAbsent(ctx, rec)
	require.NoError(t, err)
	_, err = db.InsertIfAbsent(ctx, makeRecord("0xtx2", 3, domain.StatusFailed))
	require.NoError(t, err)

	open, err := db.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	got := open[0]
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, domain.SideBuy, got.Side)
	assert.Equal(t, domain.StatusOpen, got.Status)
	assert.Equal(t, 3, got.DelaySeconds)
	assert.InDelta(t, 0.52, got.SampledPrice, 1e-9)
	assert.True(t, rec.TargetTime.Equal(got.TargetTime))
	assert.Nil(t, got.PnL)
	assert.Nil(t, got.SettledAt)
}

func TestLedger_UpdateSettlement_GuardedByOpen(t *testing.T) {
	db := newLedger(t)
	ctx := context.Background()

	rec := makeRecord("0xtx1", 3, domain.StatusOpen)
	_, err := db.InsertIfAbsent(ctx, rec)
	require.NoError(t, err)

	u := ports.SettlementUpdate{
		ID:              rec.ID,
		Status:          domain.StatusSettled,
		SettlementPrice: 1,
		PnL:             98.5,
		PnLPct:          98.5,
		SettledAt:       time.Now(),
	}
	updated, err := db.UpdateSettlement(ctx, u)
	require.NoError(t, err)
	assert.True(t, updated)

	// segundo intento: ya no está OPEN
	u.PnL = -1
	updated, err = db.UpdateSettlement(ctx, u)
	require.NoError(t, err)
	assert.False(t, updated)

	recent, err := db.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.NotNil(t, recent[0].PnL)
	assert.InDelta(t, 98.5, *recent[0].PnL, 1e-9)
	require.NotNil(t, recent[0].SettledAt)
	assert.Equal(t, domain.StatusSettled, recent[0].Status)
}

func TestLedger_UpdateSettlement_FailedRecordUntouched(t *testing.T) {
	db := newLedger(t)
	ctx := context.Background()

	rec := makeRecord("0xtx1", 3, domain.StatusFailed)
	rec.FailureReason = domain.ReasonEmptyBook
	_, err := db.InsertIfAbsent(ctx, rec)
	require.NoError(t, err)

	updated, err := db.UpdateSettlement(ctx, ports.SettlementUpdate{
		ID: rec.ID, Status: domain.StatusSettled, SettledAt: time.Now(),
	})
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestLedger_StatsAndSummary(t *testing.T) {
	db := newLedger(t)
	ctx := context.Background()

	win := makeRecord("0xa", 1, domain.StatusOpen)
	loss := makeRecord("0xb", 3, domain.StatusOpen)
	failed := makeRecord("0xc", 3, domain.StatusFailed)
	failed.SlippagePct = 50
	for _, r := range []domain.SimulationRecord{win, loss, failed, makeRecord("0xd", 1, domain.StatusOpen)} {
		_, err := db.InsertIfAbsent(ctx, r)
		require.NoError(t, err)
	}

	_, err := db.UpdateSettlement(ctx, ports.SettlementUpdate{ID: win.ID, Status: domain.StatusSettled, PnL: 98.5, PnLPct: 98.5, SettledAt: time.Now()})
	require.NoError(t, err)
	_, err = db.UpdateSettlement(ctx, ports.SettlementUpdate{ID: loss.ID, Status: domain.StatusSettled, PnL: -101.5, PnLPct: -101.5, SettledAt: time.Now()})
	require.NoError(t, err)

	st, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 1, st.Open)
	assert.Equal(t, 2, st.Settled)
	assert.Equal(t, 1, st.Failed)
	assert.InDelta(t, -3.0, st.TotalPnL, 1e-9)
	assert.InDelta(t, 50.0, st.WinRate, 1e-9)
	assert.InDelta(t, 98.5, st.BestPnL, 1e-9)
	assert.InDelta(t, -101.5, st.WorstPnL, 1e-9)
	assert.InDelta(t, 4.0, st.AvgSlippage, 1e-9, "los FAILED no cuentan")

	rows, err := db.PnLSummary(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].DelaySeconds)
	assert.Equal(t, 2, rows[0].Trades)
	assert.InDelta(t, 98.5, rows[0].TotalPnL, 1e-9)
	assert.Equal(t, 3, rows[1].DelaySeconds)
	assert.InDelta(t, -101.5, rows[1].TotalPnL, 1e-9)
}

func TestLedger_StatsEmpty(t *testing.T) {
	db := newLedger(t)
	st, err := db.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st.Total)
	assert.Equal(t, 0.0, st.WinRate)
}

func TestLedger_MarketArchive(t *testing.T) {
	db := newLedger(t)
	ctx := context.Background()

	_, ok, err := db.GetMarket(ctx, "0xm")
	require.NoError(t, err)
	assert.False(t, ok)

	res := 1.0
	m := domain.MarketInfo{
		MarketID:        "0xm",
		Question:        "BTC up?",
		Resolved:        true,
		ResolutionPrice: &res,
		TokenPrices:     map[string]float64{"up": 1, "down": 0},
		FetchedAt:       time.Now(),
	}
	require.NoError(t, db.SaveMarket(ctx, m))
	require.NoError(t, db.SaveMarket(ctx, m), "upsert")

	got, ok, err := db.GetMarket(ctx, "0xm")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Resolved)
	assert.Equal(t, "BTC up?", got.Question)
	require.NotNil(t, got.ResolutionPrice)
	assert.Equal(t, 1.0, *got.ResolutionPrice)
	assert.Equal(t, 0.0, got.TokenPrices["down"])
}
