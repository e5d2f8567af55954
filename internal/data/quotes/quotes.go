package quotes

import (
	"context"
	"fmt"

	"github.com/songzhibin97/stockflux/internal/models"
)

// QuoteSource is one provider of quotes and history.
type QuoteSource interface {
	Name() string
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	GetHistory(ctx context.Context, symbol string, days int) ([]models.Bar, error)
}

type Logger interface {
	Error(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
}

// MultiSourceFetcher implements QuoteFetcher by trying each source in order
// until one answers.
type MultiSourceFetcher struct {
	sources []QuoteSource
	logger  Logger
}

func NewMultiSourceFetcher(sources []QuoteSource, logger Logger) *MultiSourceFetcher {
	return &MultiSourceFetcher{
		sources: sources,
		logger:  logger,
	}
}

// GetQuote implements QuoteFetcher interface
func (f *MultiSourceFetcher) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	for _, source := range f.sources {
		quote, err := source.GetQuote(ctx, symbol)
		if err == nil && quote != nil {
			return quote, nil
		}
		f.logger.Error("failed to fetch quote", "source", source.Name(), "symbol", symbol, "error", err)
	}
	return nil, fmt.Errorf("failed to fetch quote for %s from all sources", symbol)
}

// GetHistory implements QuoteFetcher interface
func (f *MultiSourceFetcher) GetHistory(ctx context.Context, symbol string, days int) ([]models.Bar, error) {
	for _, source := range f.sources {
		bars, err := source.GetHistory(ctx, symbol, days)
		if err == nil && len(bars) > 0 {
			return bars, nil
		}
		f.logger.Error("failed to fetch history", "source", source.Name(), "symbol", symbol, "error", err)
	}
	return nil, fmt.Errorf("failed to fetch history for %s from all sources", symbol)
}
