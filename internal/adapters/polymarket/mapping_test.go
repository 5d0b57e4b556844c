package polymarket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexList_Variants(t *testing.T) {
	cases := map[string]flexList{
		`["1","0"]`:           {"1", "0"},
		`[1, 0.5]`:            {"1", "0.5"},
		`"[\"0.3\",\"0.7\"]"`: {"0.3", "0.7"},
		`"not a list"`:        nil,
		`null`:                nil,
		`{"a":1}`:             nil,
	}
	for raw, want := range cases {
		var got flexList
		require.NoError(t, json.Unmarshal([]byte(raw), &got), raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestMapGammaMarket_GarbagePrices(t *testing.T) {
	g := gammaMarket{
		ConditionID:   "0xc",
		Closed:        true,
		OutcomePrices: flexList{"x", "1"},
		ClobTokenIDs:  flexList{"yes", "no"},
	}
	m := mapGammaMarket(g, time.Now())

	assert.True(t, m.Resolved)
	assert.Nil(t, m.ResolutionPrice, "primer precio ilegible")

	p, ok := m.ResolutionFor("no")
	require.True(t, ok)
	assert.Equal(t, 1.0, p)

	_, ok = m.ResolutionFor("yes")
	assert.False(t, ok)
}

func TestMapGammaMarket_ResolvedWithoutPrices(t *testing.T) {
	m := mapGammaMarket(gammaMarket{ConditionID: "0xc", Closed: true}, time.Now())
	assert.True(t, m.Resolved)
	_, ok := m.ResolutionFor("any")
	assert.False(t, ok)
}

func TestParseTradeTimestamp(t *testing.T) {
	assert.Equal(t, int64(1700000000), parseTradeTimestamp("1700000000").Unix())
	assert.Equal(t, int64(1700000000), parseTradeTimestamp("1700000000123").Unix())
	assert.Equal(t, int64(1700000000), parseTradeTimestamp("1700000000.5").Unix())
	assert.Equal(t, 2026, parseTradeTimestamp("2026-01-01T10:00:00Z").Year())
	assert.True(t, parseTradeTimestamp("garbage").IsZero())
}

func TestFlexScalar(t *testing.T) {
	var v struct {
		A flexScalar `json:"a"`
		B flexScalar `json:"b"`
		C flexScalar `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 12, "b": "2026-01-01T00:00:00Z", "c": true}`), &v))
	assert.Equal(t, flexScalar("12"), v.A)
	assert.Equal(t, flexScalar("2026-01-01T00:00:00Z"), v.B)
	assert.Equal(t, flexScalar(""), v.C)
}

func TestMapTrade_MalformedNumbers(t *testing.T) {
	var raw []rawDataTrade
	require.NoError(t, json.Unmarshal([]byte(`[
		{"side":"BUY","price":"","size":"10","transactionHash":"0x1"},
		{"side":"BUY","price":"abc","size":5,"transactionHash":"0x2"},
		{"side":"BUY","price":0.42,"size":"","transactionHash":"0x3"},
		{"side":"SELL","price":null,"size":1,"transactionHash":"0x4"}
	]`), &raw), "un número malformado no rompe el decode")
	require.Len(t, raw, 4)

	_, ok := mapTrade(raw[0], "0xabc")
	assert.False(t, ok, "precio vacío")
	_, ok = mapTrade(raw[1], "0xabc")
	assert.False(t, ok, "precio no numérico")
	_, ok = mapTrade(raw[3], "0xabc")
	assert.False(t, ok, "precio null")

	tr, ok := mapTrade(raw[2], "0xabc")
	require.True(t, ok)
	assert.Equal(t, 0.42, tr.Price)
	assert.Zero(t, tr.Size, "size ilegible queda en 0")
}
