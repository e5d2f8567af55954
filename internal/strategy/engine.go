package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/songzhibin97/stockflux/internal/ai"
	"github.com/songzhibin97/stockflux/internal/data"
	"github.com/songzhibin97/stockflux/internal/metrics"
	"github.com/songzhibin97/stockflux/internal/models"
	"github.com/songzhibin97/stockflux/internal/risk"
)

const (
	historyDays          = 60
	forcedExitConfidence = 1.0
	partialConfidence    = 0.90
)

// TradeSignal 经过风控校验、可直接执行的交易信号
type TradeSignal struct {
	Symbol     string          `json:"symbol"`
	Region     models.Region   `json:"region"`
	Decision   ai.Decision     `json:"decision"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Confidence float64         `json:"confidence"`
	Reasoning  string          `json:"reasoning"`
	Forced     bool            `json:"forced"` // 止损/跟踪止损触发的强制退出
}

// Engine sequences the per-symbol trading cycle: circuit breaker, stop-loss
// and trailing-stop evaluation, partial-sell checks, AI analysis, sizing and
// risk validation. It produces validated TradeSignals; order placement and
// trade recording belong to the caller.
type Engine struct {
	quotes        data.QuoteFetcher
	news          data.NewsFetcher
	analyzer      ai.Analyzer
	storage       data.Storage // 可为nil，仅用于信号留痕
	managers      map[models.Region]risk.RiskManager
	minConfidence float64
	logger        *slog.Logger
}

func NewEngine(
	quotes data.QuoteFetcher,
	news data.NewsFetcher,
	analyzer ai.Analyzer,
	storage data.Storage,
	managers map[models.Region]risk.RiskManager,
	minConfidence float64,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		quotes:        quotes,
		news:          news,
		analyzer:      analyzer,
		storage:       storage,
		managers:      managers,
		minConfidence: minConfidence,
		logger:        logger,
	}
}

// AnalyzeSymbol runs one full decision cycle for a symbol. A nil signal with
// nil error means the symbol was skipped or produced no actionable trade.
func (e *Engine) AnalyzeSymbol(ctx context.Context, symbol string) (*TradeSignal, error) {
	region := models.DetectRegion(symbol)
	rm, ok := e.managers[region]
	if !ok {
		return nil, fmt.Errorf("no risk manager for region %s", region)
	}

	if rm.IsCircuitBreakerTriggered() {
		e.logger.Warn("circuit breaker active, skipping symbol", "symbol", symbol, "region", region)
		metrics.CircuitBreakerTrips.WithLabelValues(string(region)).Inc()
		return nil, nil
	}

	pos, held := rm.GetPosition(symbol)
	if !held {
		minValue := rm.MinTradeValue()
		if minValue.GreaterThan(decimal.Zero) && !rm.HasSufficientFunds(minValue) {
			e.logger.Info("capital below minimum trade value, skipping new entries",
				"symbol", symbol, "region", region, "capital", rm.CurrentCapital())
			return nil, nil
		}
	}

	quote, err := e.quotes.GetQuote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}
	price := quote.Price

	// Hard stop, trailing stop and partial-sell checks outrank the analyzer.
	if held {
		if sig := e.evaluateExits(rm, pos, price); sig != nil {
			return sig, nil
		}
	}

	var tech *models.TechSummary
	if bars, herr := e.quotes.GetHistory(ctx, symbol, historyDays); herr == nil {
		if summary, terr := ComputeTechSummary(bars); terr == nil {
			tech = summary
		}
	} else {
		e.logger.Info("history unavailable, analyzing without indicators", "symbol", symbol, "error", herr)
	}

	var headlines []models.NewsItem
	if e.news != nil {
		if items, nerr := e.news.GetNews(ctx, symbol); nerr == nil {
			headlines = items
		} else {
			e.logger.Info("news unavailable", "symbol", symbol, "error", nerr)
		}
	}

	signal, err := e.analyzer.Analyze(ctx, &ai.AnalysisRequest{
		Symbol: symbol,
		Region: region,
		Price:  price,
		Tech:   tech,
		News:   headlines,
	})
	if err != nil {
		return nil, fmt.Errorf("analysis failed for %s: %w", symbol, err)
	}

	e.saveSignal(ctx, signal)

	if signal.Decision == ai.DecisionHold {
		return nil, nil
	}
	if signal.Confidence < e.minConfidence {
		e.logger.Info("signal below confidence threshold",
			"symbol", symbol, "decision", signal.Decision, "confidence", signal.Confidence)
		return nil, nil
	}

	switch signal.Decision {
	case ai.DecisionBuy:
		quantity := PositionSize(rm.CurrentCapital(), rm.MaxCapitalPerTrade(), rm.MaxRiskPerTrade(),
			price, signal.StopLoss, signal.AllocationPct)
		if quantity <= 0 {
			return nil, nil
		}
		if !rm.ValidateTrade(risk.TradeRequest{
			Symbol:   symbol,
			Action:   risk.ActionBuy,
			Quantity: quantity,
			Price:    price,
			StopLoss: signal.StopLoss,
		}) {
			metrics.RejectionsTotal.WithLabelValues(string(region), "buy").Inc()
			return nil, nil
		}
		return &TradeSignal{
			Symbol:     symbol,
			Region:     region,
			Decision:   ai.DecisionBuy,
			Quantity:   quantity,
			Price:      price,
			Confidence: signal.Confidence,
			Reasoning:  signal.Reasoning,
		}, nil

	case ai.DecisionSell:
		if !held {
			e.logger.Info("sell signal without position, ignoring", "symbol", symbol)
			return nil, nil
		}
		if !rm.ValidateTrade(risk.TradeRequest{
			Symbol:   symbol,
			Action:   risk.ActionSell,
			Quantity: pos.Quantity,
			Price:    price,
		}) {
			metrics.RejectionsTotal.WithLabelValues(string(region), "sell").Inc()
			return nil, nil
		}
		return &TradeSignal{
			Symbol:     symbol,
			Region:     region,
			Decision:   ai.DecisionSell,
			Quantity:   pos.Quantity,
			Price:      price,
			Confidence: signal.Confidence,
			Reasoning:  signal.Reasoning,
		}, nil

	case ai.DecisionPartialSell:
		quantity := rm.GetPartialSellQuantity(symbol, price)
		if quantity <= 0 {
			return nil, nil
		}
		if !rm.ValidateTrade(risk.TradeRequest{
			Symbol:   symbol,
			Action:   risk.ActionSell,
			Quantity: quantity,
			Price:    price,
		}) {
			metrics.RejectionsTotal.WithLabelValues(string(region), "partial_sell").Inc()
			return nil, nil
		}
		return &TradeSignal{
			Symbol:     symbol,
			Region:     region,
			Decision:   ai.DecisionPartialSell,
			Quantity:   quantity,
			Price:      price,
			Confidence: signal.Confidence,
			Reasoning:  signal.Reasoning,
		}, nil
	}

	return nil, nil
}

// RunCycle analyzes the watchlist one symbol at a time and returns the
// validated signals. Per-symbol failures are logged and skipped.
func (e *Engine) RunCycle(ctx context.Context, symbols []string) []*TradeSignal {
	var signals []*TradeSignal
	for _, symbol := range symbols {
		signal, err := e.AnalyzeSymbol(ctx, symbol)
		if err != nil {
			e.logger.Warn("symbol analysis failed", "symbol", symbol, "error", err)
			continue
		}
		if signal != nil {
			signals = append(signals, signal)
		}
	}
	return signals
}

// CheckRisks evaluates stop-loss, trailing-stop and partial-sell conditions
// for every held position. Price fetches fan out concurrently; all results
// rejoin before any risk state is touched, so evaluation stays sequential.
func (e *Engine) CheckRisks(ctx context.Context) []*TradeSignal {
	var symbols []string
	for _, rm := range e.managers {
		for symbol := range rm.Positions() {
			symbols = append(symbols, symbol)
		}
	}
	if len(symbols) == 0 {
		return nil
	}

	type quoteResult struct {
		symbol string
		price  decimal.Decimal
		err    error
	}
	results := make(chan quoteResult, len(symbols))
	for _, symbol := range symbols {
		go func(symbol string) {
			quote, err := e.quotes.GetQuote(ctx, symbol)
			if err != nil {
				results <- quoteResult{symbol: symbol, err: err}
				return
			}
			results <- quoteResult{symbol: symbol, price: quote.Price}
		}(symbol)
	}

	prices := make(map[string]decimal.Decimal, len(symbols))
	for range symbols {
		r := <-results
		if r.err != nil {
			e.logger.Warn("risk check quote failed", "symbol", r.symbol, "error", r.err)
			continue
		}
		prices[r.symbol] = r.price
	}

	var signals []*TradeSignal
	for _, symbol := range symbols {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		rm, ok := e.managers[models.DetectRegion(symbol)]
		if !ok {
			continue
		}
		pos, held := rm.GetPosition(symbol)
		if !held {
			continue
		}
		if sig := e.evaluateExits(rm, pos, price); sig != nil {
			signals = append(signals, sig)
		}
	}
	return signals
}

// evaluateExits checks the three forced-exit conditions in priority order:
// hard stop-loss, trailing stop, then partial-sell opportunity.
func (e *Engine) evaluateExits(rm risk.RiskManager, pos risk.PositionRecord, price decimal.Decimal) *TradeSignal {
	region := rm.Region()

	if pos.AveragePrice.GreaterThan(decimal.Zero) {
		pnlPct := price.Sub(pos.AveragePrice).Div(pos.AveragePrice)
		if pnlPct.LessThan(rm.MaxRiskPerTrade().Neg()) {
			e.logger.Warn("hard stop loss triggered",
				"symbol", pos.Symbol, "region", region, "pnl_pct", pnlPct, "price", price)
			return &TradeSignal{
				Symbol:     pos.Symbol,
				Region:     region,
				Decision:   ai.DecisionSell,
				Quantity:   pos.Quantity,
				Price:      price,
				Confidence: forcedExitConfidence,
				Reasoning:  fmt.Sprintf("hard stop loss: pnl %s exceeds risk limit", pnlPct.StringFixed(4)),
				Forced:     true,
			}
		}
	}

	if stop, ok := rm.UpdateTrailingStop(pos.Symbol, price); ok && price.LessThan(stop) {
		e.logger.Warn("trailing stop triggered",
			"symbol", pos.Symbol, "region", region, "stop", stop, "price", price)
		return &TradeSignal{
			Symbol:     pos.Symbol,
			Region:     region,
			Decision:   ai.DecisionSell,
			Quantity:   pos.Quantity,
			Price:      price,
			Confidence: forcedExitConfidence,
			Reasoning:  fmt.Sprintf("trailing stop: price %s below stop %s", price, stop),
			Forced:     true,
		}
	}

	if quantity := rm.GetPartialSellQuantity(pos.Symbol, price); quantity > 0 {
		e.logger.Info("partial sell opportunity",
			"symbol", pos.Symbol, "region", region, "quantity", quantity, "price", price)
		return &TradeSignal{
			Symbol:     pos.Symbol,
			Region:     region,
			Decision:   ai.DecisionPartialSell,
			Quantity:   quantity,
			Price:      price,
			Confidence: partialConfidence,
			Reasoning:  "profit target reached, scaling out",
		}
	}

	return nil
}

func (e *Engine) saveSignal(ctx context.Context, signal *ai.Signal) {
	if e.storage == nil {
		return
	}
	record := &models.SignalRecord{
		Symbol:     signal.Symbol,
		Decision:   string(signal.Decision),
		Confidence: signal.Confidence,
		Reasoning:  signal.Reasoning,
	}
	if err := e.storage.SaveSignal(ctx, record); err != nil {
		e.logger.Warn("failed to save signal", "symbol", signal.Symbol, "error", err)
	}
}
