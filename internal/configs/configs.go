package configs

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/songzhibin97/stockflux/internal/risk"
)

// Config 整个交易代理的配置
type Config struct {
	TradingMode     string                  `json:"trading_mode"`     // paper 或 live
	Style           string                  `json:"style"`            // conservative, balanced, aggressive
	RefreshInterval int                     `json:"refresh_interval"` // 交易周期间隔（秒）
	SyncInterval    int                     `json:"sync_interval"`    // 与券商对账间隔（周期数）
	MetricsAddr     string                  `json:"metrics_addr"`     // Prometheus监听地址，为空则不启动
	Regions         map[string]RegionConfig `json:"regions"`
	AI              AIConfig                `json:"ai"`
	Database        DatabaseConfig          `json:"database"`
	Brokers         BrokerConfig            `json:"brokers"`
}

// RegionConfig 单个区域的资金与风控配置
type RegionConfig struct {
	Capital       decimal.Decimal `json:"capital"`
	MaxPerTrade   decimal.Decimal `json:"max_per_trade"`   // 零值默认为资金的20%
	MinTradeValue decimal.Decimal `json:"min_trade_value"` // 低于该金额的订单被拒绝
	Watchlist     []string        `json:"watchlist"`
	Broker        string          `json:"broker"` // 首选券商名
}

// AIConfig AI分析器配置
type AIConfig struct {
	Provider      string  `json:"provider"` // openai 或 deepseek
	APIKey        string  `json:"api_key"`
	Model         string  `json:"model"`
	MinConfidence float64 `json:"min_confidence"`
}

type DatabaseConfig struct {
	ConnStr string `json:"conn_str"`
}

// BrokerConfig 券商凭证
type BrokerConfig struct {
	Zerodha   ZerodhaConfig   `json:"zerodha"`
	Robinhood RobinhoodConfig `json:"robinhood"`
}

type ZerodhaConfig struct {
	APIKey      string `json:"api_key"`
	AccessToken string `json:"access_token"`
}

type RobinhoodConfig struct {
	Token string `json:"token"`
}

// LoadConfig reads a JSON config file and applies environment overrides for
// secrets, so keys can stay out of the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{
		TradingMode:     "paper",
		Style:           "balanced",
		RefreshInterval: 300,
		SyncInterval:    5,
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.ConnStr = v
	}
	if v := os.Getenv("ZERODHA_API_KEY"); v != "" {
		c.Brokers.Zerodha.APIKey = v
	}
	if v := os.Getenv("ZERODHA_ACCESS_TOKEN"); v != "" {
		c.Brokers.Zerodha.AccessToken = v
	}
	if v := os.Getenv("ROBINHOOD_TOKEN"); v != "" {
		c.Brokers.Robinhood.Token = v
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.TradingMode != "paper" && c.TradingMode != "live" {
		return fmt.Errorf("invalid trading_mode %q, want paper or live", c.TradingMode)
	}
	if len(c.Regions) == 0 {
		return fmt.Errorf("at least one region must be configured")
	}
	for name, region := range c.Regions {
		if name != "US" && name != "IN" {
			return fmt.Errorf("unknown region %q, want US or IN", name)
		}
		if region.Capital.Sign() <= 0 {
			return fmt.Errorf("region %s: capital must be positive", name)
		}
		if len(region.Watchlist) == 0 {
			return fmt.Errorf("region %s: watchlist is empty", name)
		}
	}
	if c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required (or set AI_API_KEY)")
	}
	if _, err := StyleProfile(c.Style); err != nil {
		return err
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be positive")
	}
	return nil
}

// StyleProfile returns the numeric risk parameters for a named trading style.
func StyleProfile(name string) (risk.StyleProfile, error) {
	switch name {
	case "conservative":
		return risk.StyleProfile{
			Name:                "conservative",
			MaxRiskPerTrade:     decimal.RequireFromString("0.01"),
			TrailingStopPct:     decimal.RequireFromString("0.05"),
			PartialSellPct:      decimal.RequireFromString("0.3"),
			MaxScaleOuts:        3,
			MinUpsideTargetPct:  decimal.RequireFromString("0.04"),
			MaxDailyLossPct:     decimal.RequireFromString("0.03"),
			MaxDailyTrades:      20,
			ConfidenceThreshold: 0.75,
		}, nil
	case "balanced":
		return risk.StyleProfile{
			Name:                "balanced",
			MaxRiskPerTrade:     decimal.RequireFromString("0.02"),
			TrailingStopPct:     decimal.RequireFromString("0.08"),
			PartialSellPct:      decimal.RequireFromString("0.5"),
			MaxScaleOuts:        2,
			MinUpsideTargetPct:  decimal.RequireFromString("0.05"),
			MaxDailyLossPct:     decimal.RequireFromString("0.05"),
			MaxDailyTrades:      50,
			ConfidenceThreshold: 0.70,
		}, nil
	case "aggressive":
		return risk.StyleProfile{
			Name:                "aggressive",
			MaxRiskPerTrade:     decimal.RequireFromString("0.04"),
			TrailingStopPct:     decimal.RequireFromString("0.12"),
			PartialSellPct:      decimal.RequireFromString("0.5"),
			MaxScaleOuts:        2,
			MinUpsideTargetPct:  decimal.RequireFromString("0.08"),
			MaxDailyLossPct:     decimal.RequireFromString("0.08"),
			MaxDailyTrades:      100,
			ConfidenceThreshold: 0.60,
		}, nil
	default:
		return risk.StyleProfile{}, fmt.Errorf("unknown trading style %q", name)
	}
}
