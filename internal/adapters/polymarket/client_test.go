package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/airhao3/jmm-trade/internal/adapters/polymarket"
	"github.com/airhao3/jmm-trade/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("../../../testdata/fixtures/" + name)
	require.NoError(t, err)
	return data
}

func serveJSON(t *testing.T, path string, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, path, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func serveStatus(t *testing.T, status int, header map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range header {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		w.Write([]byte(`{"error":"nope"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestListTrades_Success(t *testing.T) {
	var gotQuery string
	data := fixture(t, "data_trades.json")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trades", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Write(data)
	}))
	defer srv.Close()

	client := polymarket.NewClient(polymarket.Config{DataBase: srv.URL})
	addr := "0x1111111111111111111111111111111111111111"
	trades, err := client.ListTrades(context.Background(), addr, 50)
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "user="+addr)
	assert.Contains(t, gotQuery, "limit=50")

	// MERGE y el trade sin hash se descartan
	require.Len(t, trades, 2)

	buy := trades[0]
	assert.Equal(t, "0xtx001", buy.TxHash)
	assert.Equal(t, domain.SideBuy, buy.Side)
	assert.Equal(t, "0xcond001", buy.MarketID)
	assert.Equal(t, "tok_up_001", buy.TokenID)
	assert.Equal(t, addr, buy.AccountAddress)
	assert.InDelta(t, 0.5, buy.Price, 1e-9)
	assert.InDelta(t, 40, buy.Size, 1e-9)
	assert.Equal(t, int64(1767225600), buy.Timestamp.Unix())

	sell := trades[1]
	assert.Equal(t, domain.SideSell, sell.Side)
	assert.InDelta(t, 0.61, sell.Price, 1e-9)
	assert.Equal(t, int64(1767225660), sell.Timestamp.Unix(), "timestamp en ms")
}

func TestListTrades_MalformedItemDoesNotBlindAccount(t *testing.T) {
	srv := serveJSON(t, "/trades", []byte(`[
		{"side":"BUY","asset":"tok","conditionId":"0xc","price":"","size":"3","timestamp":1767225600,"transactionHash":"0xbad"},
		{"side":"BUY","asset":"tok","conditionId":"0xc","price":"0.5","size":"3","timestamp":1767225601,"transactionHash":"0xgood"}
	]`))

	client := polymarket.NewClient(polymarket.Config{DataBase: srv.URL})
	trades, err := client.ListTrades(context.Background(), "0x1111111111111111111111111111111111111111", 50)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "0xgood", trades[0].TxHash)
}

func TestFetchOrderBook_SortsAndCleans(t *testing.T) {
	srv := serveJSON(t, "/book", fixture(t, "clob_book.json"))

	client := polymarket.NewClient(polymarket.Config{CLOBBase: srv.URL})
	ob, err := client.FetchOrderBook(context.Background(), "tok_up_001")
	require.NoError(t, err)

	assert.Equal(t, "tok_up_001", ob.TokenID)
	require.Len(t, ob.Bids, 2, "size 0 descartado")
	require.Len(t, ob.Asks, 2, "precio inválido descartado")
	assert.InDelta(t, 0.50, ob.BestBid(), 1e-9)
	assert.InDelta(t, 0.55, ob.BestAsk(), 1e-9)
}

func TestFetchMarket_Resolved(t *testing.T) {
	srv := serveJSON(t, "/markets", fixture(t, "gamma_market_resolved.json"))

	client := polymarket.NewClient(polymarket.Config{GammaBase: srv.URL})
	m, err := client.FetchMarket(context.Background(), "0xcond001")
	require.NoError(t, err)

	assert.Equal(t, "0xcond001", m.MarketID)
	assert.True(t, m.Resolved)
	assert.False(t, m.Active)
	require.NotNil(t, m.ResolutionPrice)
	assert.Equal(t, 1.0, *m.ResolutionPrice)

	p, ok := m.ResolutionFor("tok_down_001")
	require.True(t, ok)
	assert.Equal(t, 0.0, p)
}

func TestFetchMarket_Unresolved(t *testing.T) {
	srv := serveJSON(t, "/markets", fixture(t, "gamma_market_open.json"))

	client := polymarket.NewClient(polymarket.Config{GammaBase: srv.URL})
	m, err := client.FetchMarket(context.Background(), "0xcond001")
	require.NoError(t, err)

	assert.False(t, m.Resolved)
	assert.True(t, m.Active)
	assert.Nil(t, m.ResolutionPrice)
}

func TestFetchMarket_NotFound(t *testing.T) {
	srv := serveJSON(t, "/markets", []byte(`[]`))

	client := polymarket.NewClient(polymarket.Config{GammaBase: srv.URL})
	m, err := client.FetchMarket(context.Background(), "0xmissing")
	require.NoError(t, err)
	assert.Empty(t, m.MarketID)
}

func TestClient_ClassifiesErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("429 with Retry-After", func(t *testing.T) {
		srv := serveStatus(t, http.StatusTooManyRequests, map[string]string{"Retry-After": "3"})
		_, err := polymarket.NewClient(polymarket.Config{CLOBBase: srv.URL}).FetchOrderBook(ctx, "tok")
		d, ok := domain.RetryAfter(err)
		require.True(t, ok)
		assert.Equal(t, 3*time.Second, d)
	})

	t.Run("429 without hint", func(t *testing.T) {
		srv := serveStatus(t, http.StatusTooManyRequests, nil)
		_, err := polymarket.NewClient(polymarket.Config{CLOBBase: srv.URL}).FetchOrderBook(ctx, "tok")
		d, ok := domain.RetryAfter(err)
		require.True(t, ok)
		assert.Zero(t, d)
	})

	t.Run("5xx", func(t *testing.T) {
		srv := serveStatus(t, http.StatusBadGateway, nil)
		_, err := polymarket.NewClient(polymarket.Config{GammaBase: srv.URL}).FetchMarket(ctx, "0x1")
		var se *domain.ServerError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadGateway, se.Status)
	})

	t.Run("4xx", func(t *testing.T) {
		srv := serveStatus(t, http.StatusNotFound, nil)
		_, err := polymarket.NewClient(polymarket.Config{DataBase: srv.URL}).ListTrades(ctx, "0x1", 10)
		assert.True(t, domain.IsClientError(err))
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		client := polymarket.NewClient(polymarket.Config{CLOBBase: srv.URL, Timeout: 20 * time.Millisecond})
		_, err := client.FetchOrderBook(ctx, "tok")
		var te *domain.TimeoutError
		assert.ErrorAs(t, err, &te)
	})
}
