package data

import (
	"context"

	"github.com/songzhibin97/stockflux/internal/models"
)

// QuoteFetcher 负责获取实时报价和历史行情
type QuoteFetcher interface {
	// GetQuote retrieves the current price snapshot for a symbol
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)

	// GetHistory retrieves up to days of daily bars for a symbol
	GetHistory(ctx context.Context, symbol string, days int) ([]models.Bar, error)
}

// NewsFetcher 负责获取新闻标题
type NewsFetcher interface {
	// GetNews retrieves recent headlines for a query
	GetNews(ctx context.Context, query string) ([]models.NewsItem, error)
}

// Storage 处理交易与信号的持久化
type Storage interface {
	// SaveTrade stores an executed trade
	SaveTrade(ctx context.Context, trade *models.Trade) error

	// SaveSignal stores a generated signal
	SaveSignal(ctx context.Context, signal *models.SignalRecord) error

	// SaveDecisionLog stores the full AI decision audit record
	SaveDecisionLog(ctx context.Context, entry *models.DecisionLog) error

	// GetRecentTrades retrieves the most recent executed trades
	GetRecentTrades(ctx context.Context, limit int) ([]models.Trade, error)
}
