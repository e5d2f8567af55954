package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade 已执行订单的持久化记录
type Trade struct {
	ID        int64           `json:"id"`
	Symbol    string          `json:"symbol"`
	Region    Region          `json:"region"`
	Action    string          `json:"action"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Status    string          `json:"status"`
	OrderID   string          `json:"order_id"`
	CreatedAt time.Time       `json:"created_at"`
}

// SignalRecord 策略信号的持久化记录
type SignalRecord struct {
	ID         int64     `json:"id"`
	Symbol     string    `json:"symbol"`
	Decision   string    `json:"decision"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	CreatedAt  time.Time `json:"created_at"`
}

// DecisionLog AI决策的完整审计记录
type DecisionLog struct {
	ID           int64           `json:"id"`
	Symbol       string          `json:"symbol"`
	Region       Region          `json:"region"`
	Decision     string          `json:"decision"`
	Confidence   float64         `json:"confidence"`
	Reasoning    string          `json:"reasoning"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	WasExecuted  bool            `json:"was_executed"`
	CreatedAt    time.Time       `json:"created_at"`
}
