package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T, handler http.HandlerFunc) *YahooQuoteSource {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	y := NewYahooQuoteSource()
	y.baseURL = server.URL
	return y
}

func TestGetQuote(t *testing.T) {
	y := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		fmt.Fprint(w, `{"chart": {"result": [{
			"meta": {"symbol": "AAPL", "regularMarketPrice": 184.25, "chartPreviousClose": 182.0}
		}], "error": null}}`)
	})

	quote, err := y.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", quote.Symbol)
	assert.True(t, quote.Price.Equal(decimal.RequireFromString("184.25")))
	assert.True(t, quote.PrevClose.Equal(decimal.RequireFromString("182")))
}

func TestGetQuoteSymbolNotFound(t *testing.T) {
	y := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart": {"result": [], "error": null}}`)
	})

	_, err := y.GetQuote(context.Background(), "NOPE")
	assert.Error(t, err)
}

func TestGetQuoteChartError(t *testing.T) {
	y := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart": {"result": [], "error": {"description": "No data found"}}}`)
	})

	_, err := y.GetQuote(context.Background(), "NOPE")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "No data found")
}

func TestGetHistory(t *testing.T) {
	y := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3mo", r.URL.Query().Get("range"))
		fmt.Fprint(w, `{"chart": {"result": [{
			"meta": {"symbol": "AAPL", "regularMarketPrice": 103.0},
			"timestamp": [1700000000, 1700086400, 1700172800],
			"indicators": {"quote": [{
				"open": [100, 101, 102],
				"high": [101, 102, 103],
				"low": [99, 100, 101],
				"close": [100.5, 101.5, 102.5],
				"volume": [1000, 1100, 1200]
			}]}
		}], "error": null}}`)
	})

	bars, err := y.GetHistory(context.Background(), "AAPL", 30)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.True(t, bars[2].Close.Equal(decimal.RequireFromString("102.5")))
	assert.Equal(t, int64(1200), bars[2].Volume)
}

func TestGetHistoryTrimsToRequestedDays(t *testing.T) {
	y := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart": {"result": [{
			"timestamp": [1, 2, 3, 4, 5],
			"indicators": {"quote": [{"close": [10, 11, 12, 13, 14]}]}
		}], "error": null}}`)
	})

	bars, err := y.GetHistory(context.Background(), "AAPL", 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Close.Equal(decimal.RequireFromString("13")))
}
