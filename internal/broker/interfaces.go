package broker

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order sides accepted by PlaceOrder.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order placement outcomes. Anything not in the failed set counts as placed,
// and only placed orders may be recorded into the risk manager.
const (
	StatusFilled    = "filled"
	StatusSubmitted = "submitted"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
)

// Broker defines the per-region execution capabilities the agent depends on.
// Region-specific implementations live behind this interface and are selected
// by the Router, never by runtime type probing.
type Broker interface {
	// Name returns the broker's config name, e.g. "zerodha"
	Name() string

	// Authenticate establishes or validates the broker session
	Authenticate(ctx context.Context) error

	// GetQuote fetches the current price of a symbol
	GetQuote(ctx context.Context, symbol string) (decimal.Decimal, error)

	// PlaceOrder places a market order and reports its placement status
	PlaceOrder(ctx context.Context, symbol string, quantity int, side string) (*Order, error)

	// GetPositions returns current holdings keyed by canonical symbol
	GetPositions(ctx context.Context) (map[string]Position, error)

	// GetAccountBalance returns the available cash balance
	GetAccountBalance(ctx context.Context) (decimal.Decimal, error)
}

// Order 订单回执
type Order struct {
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
}

// Placed reports whether the order reached the broker. A false result means
// the fill must not be recorded.
func (o *Order) Placed() bool {
	switch strings.ToLower(o.Status) {
	case StatusRejected, StatusFailed, "error", "cancelled":
		return false
	}
	return true
}

// Position 券商侧持仓
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     int             `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}
