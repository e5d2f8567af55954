package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/songzhibin97/stockflux/internal/models"
	"github.com/songzhibin97/stockflux/internal/utils/request"
)

// YahooNewsFetcher implements NewsFetcher using the Yahoo finance search API.
// It remembers which headlines were already surfaced per symbol so repeated
// cycles do not re-feed stale news into the analyzer.
type YahooNewsFetcher struct {
	baseURL    string
	httpClient *resty.Client

	mu   sync.Mutex
	seen map[string]map[string]struct{} // symbol -> headline set
}

func NewYahooNewsFetcher() *YahooNewsFetcher {
	return &YahooNewsFetcher{
		baseURL:    "https://query1.finance.yahoo.com",
		httpClient: request.Request,
		seen:       make(map[string]map[string]struct{}),
	}
}

// GetNews implements NewsFetcher interface
func (f *YahooNewsFetcher) GetNews(ctx context.Context, query string) ([]models.NewsItem, error) {
	u := fmt.Sprintf("%s/v1/finance/search?q=%s&newsCount=10&quotesCount=0",
		f.baseURL, url.QueryEscape(query))

	resp, err := f.httpClient.R().SetContext(ctx).Get(u)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	var result struct {
		News []struct {
			Title               string `json:"title"`
			Publisher           string `json:"publisher"`
			Link                string `json:"link"`
			ProviderPublishTime int64  `json:"providerPublishTime"`
		} `json:"news"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	items := make([]models.NewsItem, 0, len(result.News))
	for _, n := range result.News {
		if n.Title == "" {
			continue
		}
		items = append(items, models.NewsItem{
			Title:       n.Title,
			Source:      n.Publisher,
			URL:         n.Link,
			PublishedAt: time.Unix(n.ProviderPublishTime, 0),
		})
	}
	return items, nil
}

// NewCount returns how many of the items have not been surfaced for this
// symbol before.
func (f *YahooNewsFetcher) NewCount(items []models.NewsItem, symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	seen := f.seen[symbol]
	count := 0
	for _, item := range items {
		if _, ok := seen[item.Title]; !ok {
			count++
		}
	}
	return count
}

// MarkSeen records the items as surfaced for a symbol.
func (f *YahooNewsFetcher) MarkSeen(items []models.NewsItem, symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seen, ok := f.seen[symbol]
	if !ok {
		seen = make(map[string]struct{})
		f.seen[symbol] = seen
	}
	for _, item := range items {
		seen[item.Title] = struct{}{}
	}
}
