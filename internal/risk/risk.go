package risk

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/songzhibin97/stockflux/internal/models"
)

var (
	defaultAllocationPct = decimal.RequireFromString("0.20")
	one                  = decimal.NewFromInt(1)
)

// RegionManager implements RiskManager for a single region's capital pool.
//
// It is an in-memory state machine for the lifetime of the process and is only
// mutated from the main trading cycle, so it carries no lock.
type RegionManager struct {
	region models.Region

	currentCapital     decimal.Decimal
	initialCapital     decimal.Decimal
	maxCapitalPerTrade decimal.Decimal
	maxRiskPerTrade    decimal.Decimal
	minTradeValue      decimal.Decimal

	trailingStopPct    decimal.Decimal
	partialSellPct     decimal.Decimal
	maxScaleOuts       int
	minUpsideTargetPct decimal.Decimal

	positions map[string]*PositionRecord

	// 日内熔断计数器，跨日自动清零
	dailyLoss       decimal.Decimal
	dailyTradeCount int
	currentDate     string
	maxDailyLoss    decimal.Decimal
	maxDailyTrades  int

	now    func() time.Time
	logger Logger
}

// NewRegionManager creates a risk manager for one region.
// MaxPerTrade defaults to 20% of starting capital when unset.
func NewRegionManager(cfg Config, logger Logger) *RegionManager {
	maxPerTrade := cfg.MaxPerTrade
	if maxPerTrade.Sign() <= 0 {
		maxPerTrade = cfg.Capital.Mul(defaultAllocationPct)
	}

	m := &RegionManager{
		region:             cfg.Region,
		currentCapital:     cfg.Capital,
		initialCapital:     cfg.Capital,
		maxCapitalPerTrade: maxPerTrade,
		maxRiskPerTrade:    cfg.Style.MaxRiskPerTrade,
		minTradeValue:      cfg.MinTradeValue,
		trailingStopPct:    cfg.Style.TrailingStopPct,
		partialSellPct:     cfg.Style.PartialSellPct,
		maxScaleOuts:       cfg.Style.MaxScaleOuts,
		minUpsideTargetPct: cfg.Style.MinUpsideTargetPct,
		positions:          make(map[string]*PositionRecord),
		dailyLoss:          decimal.Zero,
		maxDailyLoss:       cfg.Capital.Mul(cfg.Style.MaxDailyLossPct),
		maxDailyTrades:     cfg.Style.MaxDailyTrades,
		now:                time.Now,
		logger:             logger,
	}
	m.currentDate = m.today()

	m.logger.Info("risk manager initialized",
		"region", cfg.Region,
		"capital", m.currentCapital.String(),
		"max_per_trade", m.maxCapitalPerTrade.String(),
		"style", cfg.Style.Name)

	return m
}

func (m *RegionManager) today() string {
	return m.now().Format("2006-01-02")
}

// resetDailyCountersIfNewDay runs lazily before every read or write of daily
// state; there is no scheduled reset job.
func (m *RegionManager) resetDailyCountersIfNewDay() {
	today := m.today()
	if today == m.currentDate {
		return
	}
	m.logger.Info("daily counters reset",
		"region", m.region,
		"previous_date", m.currentDate,
		"daily_loss", m.dailyLoss.String(),
		"daily_trades", m.dailyTradeCount)
	m.dailyLoss = decimal.Zero
	m.dailyTradeCount = 0
	m.currentDate = today
}

// Region implements RiskManager.
func (m *RegionManager) Region() models.Region { return m.region }

// IsCircuitBreakerTriggered implements RiskManager. Once triggered, it stays
// active for the rest of the trading day and clears on date rollover.
func (m *RegionManager) IsCircuitBreakerTriggered() bool {
	m.resetDailyCountersIfNewDay()

	if m.dailyLoss.GreaterThanOrEqual(m.maxDailyLoss) {
		m.logger.Warn("circuit breaker active",
			"reason", "daily_loss_limit",
			"region", m.region,
			"daily_loss", m.dailyLoss.String(),
			"limit", m.maxDailyLoss.String())
		return true
	}

	if m.dailyTradeCount >= m.maxDailyTrades {
		m.logger.Warn("circuit breaker active",
			"reason", "daily_trade_limit",
			"region", m.region,
			"count", m.dailyTradeCount,
			"limit", m.maxDailyTrades)
		return true
	}

	return false
}

// ValidateTrade implements RiskManager. Rejections are expected control flow:
// they return false with a structured reason in the log, never an error.
func (m *RegionManager) ValidateTrade(req TradeRequest) bool {
	if m.IsCircuitBreakerTriggered() {
		return false
	}

	if req.Quantity <= 0 || req.Price.Sign() <= 0 {
		m.logger.Warn("trade rejected",
			"reason", "malformed_request",
			"region", m.region,
			"symbol", req.Symbol,
			"quantity", req.Quantity,
			"price", req.Price.String())
		return false
	}

	totalCost := req.Price.Mul(decimal.NewFromInt(int64(req.Quantity)))

	if isSellAction(req.Action) {
		// 不支持做空：只能卖出已持有的数量
		pos, ok := m.positions[req.Symbol]
		if !ok || pos.Quantity < req.Quantity {
			held := 0
			if ok {
				held = pos.Quantity
			}
			m.logger.Warn("trade rejected",
				"reason", "no_position",
				"region", m.region,
				"symbol", req.Symbol,
				"requested", req.Quantity,
				"held", held)
			return false
		}
		return true
	}

	// BUY checks

	if totalCost.GreaterThan(m.currentCapital) {
		m.logger.Warn("trade rejected",
			"reason", "insufficient_funds",
			"region", m.region,
			"symbol", req.Symbol,
			"cost", totalCost.String(),
			"capital", m.currentCapital.String())
		return false
	}

	if m.minTradeValue.Sign() > 0 && totalCost.LessThan(m.minTradeValue) {
		m.logger.Warn("trade rejected",
			"reason", "below_min_trade_value",
			"region", m.region,
			"symbol", req.Symbol,
			"cost", totalCost.String(),
			"min", m.minTradeValue.String())
		return false
	}

	// Total exposure cap counts the existing position at the current price,
	// so repeated buys cannot pyramid past the limit.
	projected := totalCost
	if pos, ok := m.positions[req.Symbol]; ok {
		projected = projected.Add(req.Price.Mul(decimal.NewFromInt(int64(pos.Quantity))))
	}
	if projected.GreaterThan(m.maxCapitalPerTrade) {
		m.logger.Warn("trade rejected",
			"reason", "max_allocation_exceeded",
			"region", m.region,
			"symbol", req.Symbol,
			"projected_exposure", projected.String(),
			"max_allowed", m.maxCapitalPerTrade.String())
		return false
	}

	if req.StopLoss.Sign() > 0 {
		riskAmount := req.Price.Sub(req.StopLoss).Mul(decimal.NewFromInt(int64(req.Quantity)))
		allowedRisk := m.currentCapital.Mul(m.maxRiskPerTrade)
		if riskAmount.GreaterThan(allowedRisk) {
			m.logger.Warn("trade rejected",
				"reason", "stop_loss_risk_exceeded",
				"region", m.region,
				"symbol", req.Symbol,
				"risk", riskAmount.String(),
				"allowed", allowedRisk.String())
			return false
		}
	}

	return true
}

// RecordTrade implements RiskManager. It is the single source of truth for
// capital and position mutation and must only be called after the broker
// confirms the order was placed.
func (m *RegionManager) RecordTrade(symbol, action string, quantity int, price decimal.Decimal) error {
	if quantity <= 0 {
		return fmt.Errorf("record trade: invalid quantity %d for %s", quantity, symbol)
	}
	if price.Sign() <= 0 {
		return fmt.Errorf("record trade: invalid price %s for %s", price, symbol)
	}

	m.resetDailyCountersIfNewDay()

	switch {
	case strings.EqualFold(action, ActionBuy):
		return m.recordBuy(symbol, quantity, price)
	case isSellAction(action):
		return m.recordSell(symbol, quantity, price)
	default:
		return fmt.Errorf("record trade: unknown action %q", action)
	}
}

func (m *RegionManager) recordBuy(symbol string, quantity int, price decimal.Decimal) error {
	qty := decimal.NewFromInt(int64(quantity))
	cost := price.Mul(qty)

	m.currentCapital = m.currentCapital.Sub(cost)

	if pos, ok := m.positions[symbol]; ok {
		totalQty := pos.Quantity + quantity
		// 加权平均成本
		pos.AveragePrice = pos.AveragePrice.
			Mul(decimal.NewFromInt(int64(pos.Quantity))).
			Add(cost).
			Div(decimal.NewFromInt(int64(totalQty)))
		pos.Quantity = totalQty
		pos.HighWatermark = maxDecimal(pos.HighWatermark, price)
	} else {
		m.positions[symbol] = &PositionRecord{
			Symbol:          symbol,
			Quantity:        quantity,
			AveragePrice:    price,
			HighWatermark:   price,
			MinUpsideTarget: m.minUpsideTargetPct,
		}
	}

	m.dailyTradeCount++
	m.logger.Info("trade recorded",
		"action", ActionBuy,
		"region", m.region,
		"symbol", symbol,
		"quantity", quantity,
		"price", price.String(),
		"remaining_capital", m.currentCapital.String())
	return nil
}

func (m *RegionManager) recordSell(symbol string, quantity int, price decimal.Decimal) error {
	pos, ok := m.positions[symbol]
	if !ok {
		return fmt.Errorf("record trade: sell for %s without a position", symbol)
	}

	if quantity > pos.Quantity {
		// Clamp rather than let the position go negative; the next broker
		// resync reconciles whatever really happened.
		m.logger.Warn("sell quantity clamped to held position",
			"region", m.region,
			"symbol", symbol,
			"requested", quantity,
			"held", pos.Quantity)
		quantity = pos.Quantity
	}

	qty := decimal.NewFromInt(int64(quantity))
	proceeds := price.Mul(qty)
	m.currentCapital = m.currentCapital.Add(proceeds)

	pnl := price.Sub(pos.AveragePrice).Mul(qty)
	pos.Quantity -= quantity
	if pos.Quantity <= 0 {
		delete(m.positions, symbol)
	}

	if pnl.Sign() < 0 {
		m.dailyLoss = m.dailyLoss.Add(pnl.Abs())
	}

	m.dailyTradeCount++
	m.logger.Info("trade recorded",
		"action", ActionSell,
		"region", m.region,
		"symbol", symbol,
		"quantity", quantity,
		"price", price.String(),
		"pnl", pnl.String(),
		"remaining_capital", m.currentCapital.String())
	return nil
}

// RecordPartialSell implements RiskManager. Each scale-out raises the bar for
// the next one before delegating the bookkeeping to RecordTrade.
func (m *RegionManager) RecordPartialSell(symbol string, quantity int, price decimal.Decimal) error {
	pos, ok := m.positions[symbol]
	if !ok {
		return fmt.Errorf("record partial sell: no position for %s", symbol)
	}

	pos.ScaleOuts++
	pos.MinUpsideTarget = pos.MinUpsideTarget.Add(m.minUpsideTargetPct)

	m.logger.Info("scale out recorded",
		"region", m.region,
		"symbol", symbol,
		"scale_outs", pos.ScaleOuts,
		"next_target", pos.MinUpsideTarget.String())

	return m.RecordTrade(symbol, ActionPartialSell, quantity, price)
}

// GetPosition implements RiskManager.
func (m *RegionManager) GetPosition(symbol string) (PositionRecord, bool) {
	pos, ok := m.positions[symbol]
	if !ok {
		return PositionRecord{}, false
	}
	return *pos, true
}

// Positions implements RiskManager.
func (m *RegionManager) Positions() map[string]PositionRecord {
	out := make(map[string]PositionRecord, len(m.positions))
	for symbol, pos := range m.positions {
		out[symbol] = *pos
	}
	return out
}

// UpdateTrailingStop implements RiskManager. The stop only ratchets upward:
// it follows new highs through the watermark and never moves down.
func (m *RegionManager) UpdateTrailingStop(symbol string, currentPrice decimal.Decimal) (decimal.Decimal, bool) {
	pos, ok := m.positions[symbol]
	if !ok {
		return decimal.Zero, false
	}

	pos.HighWatermark = maxDecimal(pos.HighWatermark, currentPrice)

	candidate := pos.HighWatermark.Mul(one.Sub(m.trailingStopPct))
	if candidate.GreaterThan(pos.TrailingStop) {
		pos.TrailingStop = candidate
	}

	return pos.TrailingStop, true
}

// GetPartialSellQuantity implements RiskManager. A zero result means no
// scale-out right now. The last share is never sold through this path; full
// liquidation is reserved for the hard and trailing stops.
func (m *RegionManager) GetPartialSellQuantity(symbol string, currentPrice decimal.Decimal) int {
	pos, ok := m.positions[symbol]
	if !ok {
		return 0
	}
	if pos.ScaleOuts >= m.maxScaleOuts {
		return 0
	}
	if pos.AveragePrice.Sign() <= 0 {
		return 0
	}

	pnlPct := currentPrice.Sub(pos.AveragePrice).Div(pos.AveragePrice)
	if pnlPct.LessThan(pos.MinUpsideTarget) {
		return 0
	}

	sellQty := int(decimal.NewFromInt(int64(pos.Quantity)).Mul(m.partialSellPct).IntPart())
	if sellQty < 1 {
		sellQty = 1
	}
	if sellQty > pos.Quantity-1 {
		sellQty = pos.Quantity - 1
	}
	if sellQty <= 0 {
		return 0
	}
	return sellQty
}

// UpdateCapital implements RiskManager.
func (m *RegionManager) UpdateCapital(amount decimal.Decimal) {
	m.currentCapital = m.currentCapital.Add(amount)
	m.logger.Info("capital updated",
		"region", m.region,
		"adjustment", amount.String(),
		"new_balance", m.currentCapital.String())
}

// HasSufficientFunds implements RiskManager.
func (m *RegionManager) HasSufficientFunds(amount decimal.Decimal) bool {
	return m.currentCapital.GreaterThanOrEqual(amount)
}

// SyncFromBroker implements RiskManager. The broker is authoritative for
// balance, quantity and average price, but the locally derived risk state
// (watermark, trailing stop, scale-outs) survives the resync for symbols that
// are still held.
func (m *RegionManager) SyncFromBroker(positions map[string]BrokerPosition, balance decimal.Decimal) {
	m.currentCapital = balance

	rebuilt := make(map[string]*PositionRecord, len(positions))
	for symbol, bp := range positions {
		if bp.Quantity <= 0 {
			continue
		}
		rec := &PositionRecord{
			Symbol:          symbol,
			Quantity:        bp.Quantity,
			AveragePrice:    bp.AveragePrice,
			HighWatermark:   bp.CurrentPrice,
			MinUpsideTarget: m.minUpsideTargetPct,
		}
		if old, ok := m.positions[symbol]; ok {
			rec.HighWatermark = maxDecimal(old.HighWatermark, bp.CurrentPrice)
			rec.TrailingStop = old.TrailingStop
			rec.ScaleOuts = old.ScaleOuts
			rec.MinUpsideTarget = old.MinUpsideTarget
		}
		rebuilt[symbol] = rec
	}
	m.positions = rebuilt

	m.logger.Info("synced from broker",
		"region", m.region,
		"balance", balance.String(),
		"positions", len(rebuilt))
}

// ApplyPatch implements RiskManager.
func (m *RegionManager) ApplyPatch(patch Patch) {
	if patch.MaxRiskPerTrade != nil {
		m.maxRiskPerTrade = *patch.MaxRiskPerTrade
		m.logger.Info("risk patch applied",
			"region", m.region, "max_risk_per_trade", m.maxRiskPerTrade.String())
	}
	if patch.MaxAllocationPct != nil {
		// 相对当前可用资金重新计算
		m.maxCapitalPerTrade = m.currentCapital.Mul(*patch.MaxAllocationPct)
		m.logger.Info("risk patch applied",
			"region", m.region, "max_capital_per_trade", m.maxCapitalPerTrade.String())
	}
	if patch.MaxDailyTrades != nil {
		m.maxDailyTrades = *patch.MaxDailyTrades
		m.logger.Info("risk patch applied",
			"region", m.region, "max_daily_trades", m.maxDailyTrades)
	}
}

func (m *RegionManager) CurrentCapital() decimal.Decimal     { return m.currentCapital }
func (m *RegionManager) MaxCapitalPerTrade() decimal.Decimal { return m.maxCapitalPerTrade }
func (m *RegionManager) MaxRiskPerTrade() decimal.Decimal    { return m.maxRiskPerTrade }
func (m *RegionManager) MinTradeValue() decimal.Decimal      { return m.minTradeValue }

func isSellAction(action string) bool {
	return strings.EqualFold(action, ActionSell) || strings.EqualFold(action, ActionPartialSell)
}

func maxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if b.GreaterThan(a) {
		return b
	}
	return a
}
