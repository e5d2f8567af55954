package ai

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/songzhibin97/stockflux/internal/models"
)

// Analyzer defines methods for AI trade analysis. The result is an untrusted
// suggestion: the risk manager's hard limits always win.
type Analyzer interface {
	// Analyze produces a trade signal for a symbol from price, technical and news context
	Analyze(ctx context.Context, req *AnalysisRequest) (*Signal, error)
}

// Decision AI给出的交易决策
type Decision string

const (
	DecisionBuy         Decision = "BUY"
	DecisionSell        Decision = "SELL"
	DecisionPartialSell Decision = "PARTIAL_SELL"
	DecisionHold        Decision = "HOLD"
)

// AnalysisRequest AI分析的输入上下文
type AnalysisRequest struct {
	Symbol   string              `json:"symbol"`
	Region   models.Region       `json:"region"`
	Price    decimal.Decimal     `json:"price"`
	Tech     *models.TechSummary `json:"tech,omitempty"`
	News     []models.NewsItem   `json:"news,omitempty"`
	Earnings string              `json:"earnings,omitempty"` // 财报日历摘要，可为空
}

// Signal AI分析结果
type Signal struct {
	Symbol        string          `json:"symbol"`
	Decision      Decision        `json:"decision"`
	Confidence    float64         `json:"confidence"` // 0-1
	Reasoning     string          `json:"reasoning"`
	StopLoss      decimal.Decimal `json:"stop_loss"`      // 零值表示未建议
	AllocationPct float64         `json:"allocation_pct"` // (0,1]，0表示未建议
}
