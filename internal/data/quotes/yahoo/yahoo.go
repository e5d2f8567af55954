package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/songzhibin97/stockflux/internal/models"
	"github.com/songzhibin97/stockflux/internal/utils/request"
)

type YahooQuoteSource struct {
	baseURL    string
	httpClient *resty.Client
}

func NewYahooQuoteSource() *YahooQuoteSource {
	return &YahooQuoteSource{
		baseURL:    "https://query1.finance.yahoo.com",
		httpClient: request.Request,
	}
}

func (y *YahooQuoteSource) Name() string {
	return "yahoo"
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"chartPreviousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *YahooQuoteSource) chart(ctx context.Context, symbol, rng, interval string) (*chartResponse, error) {
	url := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=%s", y.baseURL, symbol, rng, interval)

	resp, err := y.httpClient.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	var result chartResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Chart.Error != nil {
		return nil, fmt.Errorf("chart error: %s", result.Chart.Error.Description)
	}
	if len(result.Chart.Result) == 0 {
		return nil, fmt.Errorf("symbol not found: %s", symbol)
	}
	return &result, nil
}

// GetQuote implements QuoteSource interface
func (y *YahooQuoteSource) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	result, err := y.chart(ctx, symbol, "1d", "1d")
	if err != nil {
		return nil, err
	}

	meta := result.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return nil, fmt.Errorf("no market price for %s", symbol)
	}

	return &models.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(meta.RegularMarketPrice),
		PrevClose: decimal.NewFromFloat(meta.PreviousClose),
		Timestamp: time.Now(),
	}, nil
}

// GetHistory implements QuoteSource interface
func (y *YahooQuoteSource) GetHistory(ctx context.Context, symbol string, days int) ([]models.Bar, error) {
	rng := "3mo"
	if days > 250 {
		rng = "2y"
	} else if days > 120 {
		rng = "1y"
	} else if days > 60 {
		rng = "6mo"
	}

	result, err := y.chart(ctx, symbol, rng, "1d")
	if err != nil {
		return nil, err
	}

	chart := result.Chart.Result[0]
	if len(chart.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no history for %s", symbol)
	}
	q := chart.Indicators.Quote[0]

	bars := make([]models.Bar, 0, len(chart.Timestamp))
	for i, ts := range chart.Timestamp {
		if i >= len(q.Close) || q.Close[i] <= 0 {
			continue
		}
		bar := models.Bar{
			Date:  time.Unix(ts, 0),
			Close: decimal.NewFromFloat(q.Close[i]),
		}
		if i < len(q.Open) {
			bar.Open = decimal.NewFromFloat(q.Open[i])
		}
		if i < len(q.High) {
			bar.High = decimal.NewFromFloat(q.High[i])
		}
		if i < len(q.Low) {
			bar.Low = decimal.NewFromFloat(q.Low[i])
		}
		if i < len(q.Volume) {
			bar.Volume = q.Volume[i]
		}
		bars = append(bars, bar)
	}

	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}
