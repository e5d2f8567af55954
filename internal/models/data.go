package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Region 独立的资金池和风控域
type Region string

const (
	RegionUS    Region = "US"
	RegionIndia Region = "IN"
)

// DetectRegion determines the market region from a symbol string.
// Symbols ending with .NS (NSE) or .BO (BSE) belong to the India region,
// everything else is treated as a US listing.
func DetectRegion(symbol string) Region {
	upper := strings.ToUpper(symbol)
	if strings.HasSuffix(upper, ".NS") || strings.HasSuffix(upper, ".BO") {
		return RegionIndia
	}
	return RegionUS
}

// Quote 实时报价快照
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	PrevClose decimal.Decimal `json:"prev_close"`
	Volume    int64           `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// Bar 日线历史数据
type Bar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// NewsItem 新闻条目
type NewsItem struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// TechSummary 技术指标摘要，作为AI分析的输入
type TechSummary struct {
	SMA20      decimal.Decimal `json:"sma_20"`
	SMA50      decimal.Decimal `json:"sma_50"`
	RSI14      float64         `json:"rsi_14"`
	MACD       float64         `json:"macd"`
	MACDSignal float64         `json:"macd_signal"`
	Trend      string          `json:"trend"` // bullish, bearish, neutral
}
