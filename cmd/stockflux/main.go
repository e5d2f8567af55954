package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/songzhibin97/stockflux/internal/ai"
	"github.com/songzhibin97/stockflux/internal/ai/deepseek"
	"github.com/songzhibin97/stockflux/internal/ai/openai"
	"github.com/songzhibin97/stockflux/internal/broker"
	"github.com/songzhibin97/stockflux/internal/broker/paper"
	"github.com/songzhibin97/stockflux/internal/broker/robinhood"
	"github.com/songzhibin97/stockflux/internal/broker/zerodha"
	"github.com/songzhibin97/stockflux/internal/configs"
	"github.com/songzhibin97/stockflux/internal/data"
	"github.com/songzhibin97/stockflux/internal/data/news"
	"github.com/songzhibin97/stockflux/internal/data/quotes"
	"github.com/songzhibin97/stockflux/internal/data/quotes/yahoo"
	"github.com/songzhibin97/stockflux/internal/data/storage"
	"github.com/songzhibin97/stockflux/internal/metrics"
	"github.com/songzhibin97/stockflux/internal/models"
	"github.com/songzhibin97/stockflux/internal/risk"
	"github.com/songzhibin97/stockflux/internal/strategy"
)

// TradingAgent wires the engine, brokers and storage into the main loop.
type TradingAgent struct {
	cfg       *configs.Config
	engine    *strategy.Engine
	router    *broker.Router
	managers  map[models.Region]risk.RiskManager
	storage   data.Storage
	watchlist []string
	patchPath string
	pausePath string
	logger    *slog.Logger

	cycle int
}

func main() {
	confPath := flag.String("conf", "config.json", "path to the JSON config file")
	patchPath := flag.String("patch", "risk_patch.json", "file checked between cycles for a runtime risk override")
	pausePath := flag.String("pause", "stockflux.paused", "kill-switch file; cycles are skipped while it exists")
	flag.Parse()

	// .env is optional; real deployments set env vars directly
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := configs.LoadConfig(*confPath)
	if err != nil {
		logger.Error("failed to load config", "path", *confPath, "error", err)
		os.Exit(1)
	}

	agent, err := buildAgent(cfg, *patchPath, *pausePath, logger)
	if err != nil {
		logger.Error("failed to build agent", "error", err)
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if merr := metrics.Serve(cfg.MetricsAddr); merr != nil {
				logger.Error("metrics server stopped", "error", merr)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("trading agent starting",
		"mode", cfg.TradingMode,
		"style", cfg.Style,
		"regions", len(cfg.Regions),
		"watchlist", len(agent.watchlist),
		"brokers", agent.router.Names())

	agent.Run(ctx)
	logger.Info("trading agent stopped")
}

func buildAgent(cfg *configs.Config, patchPath, pausePath string, logger *slog.Logger) (*TradingAgent, error) {
	style, err := configs.StyleProfile(cfg.Style)
	if err != nil {
		return nil, err
	}

	quoteFetcher := quotes.NewMultiSourceFetcher(
		[]quotes.QuoteSource{yahoo.NewYahooQuoteSource()}, logger)
	newsFetcher := news.NewYahooNewsFetcher()

	var analyzer ai.Analyzer
	switch cfg.AI.Provider {
	case "deepseek":
		analyzer = deepseek.NewDeepSeekAnalyzer(cfg.AI.APIKey, cfg.AI.Model)
	default:
		analyzer = openai.NewOpenAIAnalyzer(cfg.AI.APIKey, cfg.AI.Model)
	}

	var store data.Storage
	if cfg.Database.ConnStr != "" {
		pg, serr := storage.NewPostgresStorage(cfg.Database.ConnStr)
		if serr != nil {
			return nil, fmt.Errorf("storage init: %w", serr)
		}
		store = pg
	} else {
		logger.Warn("no database configured, trades will not be persisted")
	}

	managers := make(map[models.Region]risk.RiskManager, len(cfg.Regions))
	var watchlist []string
	for name, rc := range cfg.Regions {
		region := models.Region(name)
		managers[region] = risk.NewRegionManager(risk.Config{
			Region:        region,
			Capital:       rc.Capital,
			MaxPerTrade:   rc.MaxPerTrade,
			MinTradeValue: rc.MinTradeValue,
			Style:         style,
		}, logger)
		watchlist = append(watchlist, rc.Watchlist...)
	}

	router, err := buildRouter(cfg, quoteFetcher, logger)
	if err != nil {
		return nil, err
	}

	minConfidence := cfg.AI.MinConfidence
	if minConfidence <= 0 {
		minConfidence = style.ConfidenceThreshold
	}

	engine := strategy.NewEngine(quoteFetcher, newsFetcher, analyzer, store, managers, minConfidence, logger)

	return &TradingAgent{
		cfg:       cfg,
		engine:    engine,
		router:    router,
		managers:  managers,
		storage:   store,
		watchlist: watchlist,
		patchPath: patchPath,
		pausePath: pausePath,
		logger:    logger,
	}, nil
}

func buildRouter(cfg *configs.Config, quoteFetcher *quotes.MultiSourceFetcher, logger *slog.Logger) (*broker.Router, error) {
	router := broker.NewRouter(logger)

	if cfg.TradingMode == "live" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if cfg.Brokers.Robinhood.Token != "" {
			rb := robinhood.NewRobinhoodBroker(cfg.Brokers.Robinhood.Token)
			if err := rb.Authenticate(ctx); err != nil {
				logger.Warn("robinhood authentication failed, falling back to paper", "error", err)
			} else {
				router.Register("robinhood", rb, models.RegionUS)
			}
		}
		if cfg.Brokers.Zerodha.APIKey != "" {
			zb := zerodha.NewZerodhaBroker(cfg.Brokers.Zerodha.APIKey, cfg.Brokers.Zerodha.AccessToken)
			if err := zb.Authenticate(ctx); err != nil {
				logger.Warn("zerodha authentication failed, falling back to paper", "error", err)
			} else {
				router.Register("zerodha", zb, models.RegionIndia)
			}
		}
	}

	// Every configured region gets a paper broker; in live mode it only
	// serves as the fallback when a real broker is missing.
	for name, rc := range cfg.Regions {
		region := models.Region(name)
		if cfg.TradingMode == "live" && router.HasBroker(region) {
			continue
		}
		paperName := "paper-" + string(region)
		router.Register(paperName, paper.NewPaperBroker(paperName, rc.Capital, quoteFetcher), region)
	}

	router.SetPreferences("robinhood", "zerodha", "paper-IN")

	if !router.HasBroker(models.RegionUS) && !router.HasBroker(models.RegionIndia) {
		return nil, fmt.Errorf("no broker available for any region")
	}
	return router, nil
}

// Run executes trading cycles until the context is cancelled. The first cycle
// starts immediately.
func (a *TradingAgent) Run(ctx context.Context) {
	interval := time.Duration(a.cfg.RefreshInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runCycle(ctx)
		}
	}
}

func (a *TradingAgent) runCycle(ctx context.Context) {
	if _, err := os.Stat(a.pausePath); err == nil {
		a.logger.Warn("pause flag present, skipping cycle", "path", a.pausePath)
		return
	}

	start := time.Now()
	a.cycle++
	a.logger.Info("cycle started", "cycle", a.cycle)

	a.applyPendingPatch()

	// Forced exits run before new analysis so stop-losses beat fresh entries.
	for _, sig := range a.engine.CheckRisks(ctx) {
		a.execute(ctx, sig)
	}

	for _, sig := range a.engine.RunCycle(ctx, a.activeSymbols()) {
		a.execute(ctx, sig)
	}

	if a.cfg.SyncInterval > 0 && a.cycle%a.cfg.SyncInterval == 0 {
		a.syncPositions(ctx)
	}

	a.printPositions()
	metrics.CycleDuration.Observe(time.Since(start).Seconds())
	a.logger.Info("cycle finished", "cycle", a.cycle, "duration", time.Since(start).String())
}

// activeSymbols filters the watchlist down to regions whose market session is
// open right now, so new analysis is not wasted on stale quotes.
func (a *TradingAgent) activeSymbols() []string {
	now := time.Now()
	active := make([]string, 0, len(a.watchlist))
	for _, symbol := range a.watchlist {
		region := models.DetectRegion(symbol)
		if !models.MarketOpen(region, now) {
			continue
		}
		active = append(active, symbol)
	}
	if len(active) < len(a.watchlist) {
		a.logger.Info("symbols outside market hours skipped",
			"active", len(active), "total", len(a.watchlist))
	}
	return active
}

// applyPendingPatch loads a one-shot risk override file, applies it to every
// region and removes the file. This replaces any notion of mutable global
// settings: overrides are explicit and happen only between cycles.
func (a *TradingAgent) applyPendingPatch() {
	raw, err := os.ReadFile(a.patchPath)
	if err != nil {
		return
	}

	var patch risk.Patch
	if err := json.Unmarshal(raw, &patch); err != nil {
		a.logger.Warn("invalid risk patch file, ignoring", "path", a.patchPath, "error", err)
	} else {
		for _, rm := range a.managers {
			rm.ApplyPatch(patch)
		}
		a.logger.Info("risk patch applied", "path", a.patchPath)
	}

	if err := os.Remove(a.patchPath); err != nil {
		a.logger.Warn("failed to remove risk patch file", "path", a.patchPath, "error", err)
	}
}

func (a *TradingAgent) execute(ctx context.Context, sig *strategy.TradeSignal) {
	rm, ok := a.managers[sig.Region]
	if !ok {
		return
	}

	b, err := a.router.ForRegion(sig.Region)
	if err != nil {
		a.logger.Warn("no broker for signal", "symbol", sig.Symbol, "region", sig.Region, "error", err)
		return
	}

	side := broker.SideBuy
	action := risk.ActionBuy
	switch sig.Decision {
	case ai.DecisionSell:
		side, action = broker.SideSell, risk.ActionSell
	case ai.DecisionPartialSell:
		side, action = broker.SideSell, risk.ActionPartialSell
	}

	executed := false
	order, err := b.PlaceOrder(ctx, sig.Symbol, sig.Quantity, side)
	switch {
	case err != nil:
		// Outcome unknown: never record, let the next broker sync reconcile.
		a.logger.Error("order placement failed",
			"symbol", sig.Symbol, "side", side, "quantity", sig.Quantity, "error", err)
	case !order.Placed():
		a.logger.Warn("order not placed",
			"symbol", sig.Symbol, "side", side, "status", order.Status)
	default:
		fillPrice := order.Price
		if fillPrice.Sign() <= 0 {
			fillPrice = sig.Price
		}

		var recErr error
		if action == risk.ActionPartialSell {
			recErr = rm.RecordPartialSell(sig.Symbol, sig.Quantity, fillPrice)
		} else {
			recErr = rm.RecordTrade(sig.Symbol, action, sig.Quantity, fillPrice)
		}
		if recErr != nil {
			a.logger.Error("failed to record trade",
				"symbol", sig.Symbol, "action", action, "error", recErr)
		} else {
			executed = true
			metrics.TradesTotal.WithLabelValues(string(sig.Region), action).Inc()
			if sig.Forced {
				metrics.ForcedExitsTotal.WithLabelValues(string(sig.Region)).Inc()
			}
			a.saveTrade(ctx, sig, action, order, fillPrice)
		}
	}

	a.saveDecisionLog(ctx, sig, executed)
}

func (a *TradingAgent) saveTrade(ctx context.Context, sig *strategy.TradeSignal, action string, order *broker.Order, price decimal.Decimal) {
	if a.storage == nil {
		return
	}
	trade := &models.Trade{
		Symbol:   sig.Symbol,
		Region:   sig.Region,
		Action:   action,
		Quantity: sig.Quantity,
		Price:    price,
		Status:   order.Status,
		OrderID:  order.OrderID,
	}
	if err := a.storage.SaveTrade(ctx, trade); err != nil {
		a.logger.Warn("failed to save trade", "symbol", sig.Symbol, "error", err)
	}
}

func (a *TradingAgent) saveDecisionLog(ctx context.Context, sig *strategy.TradeSignal, executed bool) {
	if a.storage == nil {
		return
	}
	entry := &models.DecisionLog{
		Symbol:       sig.Symbol,
		Region:       sig.Region,
		Decision:     string(sig.Decision),
		Confidence:   sig.Confidence,
		Reasoning:    sig.Reasoning,
		CurrentPrice: sig.Price,
		WasExecuted:  executed,
	}
	if err := a.storage.SaveDecisionLog(ctx, entry); err != nil {
		a.logger.Warn("failed to save decision log", "symbol", sig.Symbol, "error", err)
	}
}

// syncPositions reconciles each region with its broker's authoritative view.
// A failed fetch skips the region entirely rather than syncing partial data.
func (a *TradingAgent) syncPositions(ctx context.Context) {
	for region, rm := range a.managers {
		b, err := a.router.ForRegion(region)
		if err != nil {
			continue
		}

		positions, err := b.GetPositions(ctx)
		if err != nil {
			a.logger.Warn("position sync failed", "region", region, "broker", b.Name(), "error", err)
			continue
		}
		balance, err := b.GetAccountBalance(ctx)
		if err != nil {
			a.logger.Warn("balance sync failed", "region", region, "broker", b.Name(), "error", err)
			continue
		}

		converted := make(map[string]risk.BrokerPosition, len(positions))
		for symbol, pos := range positions {
			converted[symbol] = risk.BrokerPosition{
				Quantity:     pos.Quantity,
				AveragePrice: pos.AveragePrice,
				CurrentPrice: pos.CurrentPrice,
			}
		}
		rm.SyncFromBroker(converted, balance)
	}
}

func (a *TradingAgent) printPositions() {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Region", "Symbol", "Qty", "Avg Price", "High", "Trailing Stop", "Scale-Outs"})

	rows := 0
	for region, rm := range a.managers {
		for _, pos := range rm.Positions() {
			t.AppendRow(table.Row{
				region,
				pos.Symbol,
				pos.Quantity,
				pos.AveragePrice.StringFixed(2),
				pos.HighWatermark.StringFixed(2),
				pos.TrailingStop.StringFixed(2),
				pos.ScaleOuts,
			})
			rows++
		}
		a.logger.Info("region capital", "region", region, "capital", rm.CurrentCapital().StringFixed(2))
	}
	if rows > 0 {
		t.Render()
	}
}
