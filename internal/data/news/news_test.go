package news

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/stockflux/internal/models"
)

func setupTestServer(t *testing.T, handler http.HandlerFunc) *YahooNewsFetcher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	f := NewYahooNewsFetcher()
	f.baseURL = server.URL
	return f
}

func TestGetNews(t *testing.T) {
	f := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/finance/search", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"news": [
			{"title": "Apple unveils new chip", "publisher": "Reuters", "link": "https://example.com/1", "providerPublishTime": 1724900000},
			{"title": "", "publisher": "Empty", "link": "https://example.com/2", "providerPublishTime": 1724900001},
			{"title": "Supplier guidance raised", "publisher": "Bloomberg", "link": "https://example.com/3", "providerPublishTime": 1724900002}
		]}`)
	})

	items, err := f.GetNews(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, items, 2, "untitled entries are dropped")
	assert.Equal(t, "Apple unveils new chip", items[0].Title)
	assert.Equal(t, "Reuters", items[0].Source)
	assert.False(t, items[0].PublishedAt.IsZero())
}

func TestGetNewsServerError(t *testing.T) {
	f := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := f.GetNews(context.Background(), "AAPL")
	assert.Error(t, err)
}

func TestSeenTracking(t *testing.T) {
	f := NewYahooNewsFetcher()
	items := []models.NewsItem{
		{Title: "first headline"},
		{Title: "second headline"},
	}

	assert.Equal(t, 2, f.NewCount(items, "AAPL"))

	f.MarkSeen(items[:1], "AAPL")
	assert.Equal(t, 1, f.NewCount(items, "AAPL"))

	// per-symbol tracking
	assert.Equal(t, 2, f.NewCount(items, "MSFT"))

	f.MarkSeen(items, "AAPL")
	assert.Equal(t, 0, f.NewCount(items, "AAPL"))
}
