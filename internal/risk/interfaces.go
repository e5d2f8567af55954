package risk

import (
	"github.com/shopspring/decimal"

	"github.com/songzhibin97/stockflux/internal/models"
)

// Trade actions accepted by ValidateTrade / RecordTrade.
const (
	ActionBuy         = "buy"
	ActionSell        = "sell"
	ActionPartialSell = "partial_sell"
)

// RiskManager defines the capital and position lifecycle operations for one region.
// One instance per region (US, IN); all state mutation goes through RecordTrade,
// UpdateCapital and SyncFromBroker.
type RiskManager interface {
	// Region returns the region this manager's capital pool belongs to
	Region() models.Region

	// IsCircuitBreakerTriggered reports whether daily loss or trade-count limits are hit
	IsCircuitBreakerTriggered() bool

	// ValidateTrade checks a trade request against capital, allocation and risk limits
	ValidateTrade(req TradeRequest) bool

	// RecordTrade updates capital and positions after a confirmed fill
	RecordTrade(symbol, action string, quantity int, price decimal.Decimal) error

	// RecordPartialSell records a scale-out fill and advances the scale-out state
	RecordPartialSell(symbol string, quantity int, price decimal.Decimal) error

	// GetPosition returns a copy of the current position for a symbol
	GetPosition(symbol string) (PositionRecord, bool)

	// Positions returns a copy of all open positions keyed by symbol
	Positions() map[string]PositionRecord

	// UpdateTrailingStop ratchets the high watermark and trailing stop for a held symbol
	UpdateTrailingStop(symbol string, currentPrice decimal.Decimal) (decimal.Decimal, bool)

	// GetPartialSellQuantity returns how many shares to scale out now, 0 for none
	GetPartialSellQuantity(symbol string, currentPrice decimal.Decimal) int

	// UpdateCapital manually adjusts available capital (deposit/withdrawal)
	UpdateCapital(amount decimal.Decimal)

	// HasSufficientFunds checks available capital against an amount
	HasSufficientFunds(amount decimal.Decimal) bool

	// SyncFromBroker replaces capital and positions with the broker's authoritative view
	SyncFromBroker(positions map[string]BrokerPosition, balance decimal.Decimal)

	// ApplyPatch applies a runtime risk-parameter override between cycles
	ApplyPatch(patch Patch)

	CurrentCapital() decimal.Decimal
	MaxCapitalPerTrade() decimal.Decimal
	MaxRiskPerTrade() decimal.Decimal
	MinTradeValue() decimal.Decimal
}

// TradeRequest 待校验的交易请求
type TradeRequest struct {
	Symbol   string          `json:"symbol"`
	Action   string          `json:"action"` // buy 或 sell
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	StopLoss decimal.Decimal `json:"stop_loss"` // 零值表示未设置
}

// PositionRecord tracks a held position for a single symbol, including the
// trailing-stop and scale-out state derived locally (the broker never sees these).
type PositionRecord struct {
	Symbol          string          `json:"symbol"`
	Quantity        int             `json:"quantity"`
	AveragePrice    decimal.Decimal `json:"average_price"`
	HighWatermark   decimal.Decimal `json:"high_watermark"`
	TrailingStop    decimal.Decimal `json:"trailing_stop"`
	ScaleOuts       int             `json:"scale_outs"`
	MinUpsideTarget decimal.Decimal `json:"min_upside_target"`
}

// BrokerPosition 券商侧持仓快照，用于对账
type BrokerPosition struct {
	Quantity     int             `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// StyleProfile 交易风格档位，仅提供数值参数
type StyleProfile struct {
	Name                string          `json:"name"`
	MaxRiskPerTrade     decimal.Decimal `json:"max_risk_per_trade"`     // 单笔最大风险（资金占比）
	TrailingStopPct     decimal.Decimal `json:"trailing_stop_pct"`      // 跟踪止损宽度
	PartialSellPct      decimal.Decimal `json:"partial_sell_pct"`       // 每次分批卖出的比例
	MaxScaleOuts        int             `json:"max_scale_outs"`         // 最大分批卖出次数
	MinUpsideTargetPct  decimal.Decimal `json:"min_upside_target_pct"`  // 首次分批卖出所需涨幅
	MaxDailyLossPct     decimal.Decimal `json:"max_daily_loss_pct"`     // 日内最大亏损（初始资金占比）
	MaxDailyTrades      int             `json:"max_daily_trades"`       // 日内最大交易笔数
	ConfidenceThreshold float64         `json:"confidence_threshold"`   // AI信号最低置信度
}

// Config holds the construction-time inputs for one region's risk manager.
type Config struct {
	Region        models.Region   `json:"region"`
	Capital       decimal.Decimal `json:"capital"`
	MaxPerTrade   decimal.Decimal `json:"max_per_trade"`   // 零值默认为资金的20%
	MinTradeValue decimal.Decimal `json:"min_trade_value"` // 低于该金额的订单因手续费不划算被拒绝
	Style         StyleProfile    `json:"style"`
}

// Patch is an explicit runtime override of risk parameters, applied by the
// orchestration loop between cycles rather than through mutable globals.
type Patch struct {
	MaxRiskPerTrade  *decimal.Decimal `json:"max_risk_per_trade,omitempty"`
	MaxAllocationPct *decimal.Decimal `json:"max_allocation_pct,omitempty"` // 相对当前资金重新计算单笔上限
	MaxDailyTrades   *int             `json:"max_daily_trades,omitempty"`
}

type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
}
