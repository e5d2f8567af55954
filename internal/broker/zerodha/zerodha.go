// Package zerodha implements the Broker interface on top of the Kite Connect
// REST API for the India region.
package zerodha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/songzhibin97/stockflux/internal/broker"
	"github.com/songzhibin97/stockflux/internal/utils/request"
)

const defaultBaseURL = "https://api.kite.trade"

type ZerodhaBroker struct {
	baseURL     string
	apiKey      string
	accessToken string
	httpClient  *resty.Client
}

func NewZerodhaBroker(apiKey, accessToken string) *ZerodhaBroker {
	return &ZerodhaBroker{
		baseURL:     defaultBaseURL,
		apiKey:      apiKey,
		accessToken: accessToken,
		httpClient:  request.Request,
	}
}

// Name implements broker.Broker.
func (z *ZerodhaBroker) Name() string { return "zerodha" }

func (z *ZerodhaBroker) authHeader() string {
	return fmt.Sprintf("token %s:%s", z.apiKey, z.accessToken)
}

// exchangeSymbol converts a canonical symbol (RELIANCE.NS, TATASTEEL.BO) into
// the Kite instrument key, e.g. NSE:RELIANCE.
func exchangeSymbol(symbol string) string {
	upper := strings.ToUpper(symbol)
	switch {
	case strings.HasSuffix(upper, ".NS"):
		return "NSE:" + strings.TrimSuffix(upper, ".NS")
	case strings.HasSuffix(upper, ".BO"):
		return "BSE:" + strings.TrimSuffix(upper, ".BO")
	default:
		return "NSE:" + upper
	}
}

// canonicalSymbol is the inverse mapping for broker-reported holdings.
func canonicalSymbol(tradingSymbol, exchange string) string {
	if strings.EqualFold(exchange, "BSE") {
		return tradingSymbol + ".BO"
	}
	return tradingSymbol + ".NS"
}

func (z *ZerodhaBroker) get(ctx context.Context, path string, out interface{}) error {
	resp, err := z.httpClient.R().
		SetContext(ctx).
		SetHeader("X-Kite-Version", "3").
		SetHeader("Authorization", z.authHeader()).
		Get(z.baseURL + path)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), resp.String())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Authenticate implements broker.Broker by validating the session token.
func (z *ZerodhaBroker) Authenticate(ctx context.Context) error {
	var result struct {
		Status string `json:"status"`
	}
	if err := z.get(ctx, "/user/profile", &result); err != nil {
		return fmt.Errorf("zerodha authenticate: %w", err)
	}
	if result.Status != "success" {
		return fmt.Errorf("zerodha authenticate: status %q", result.Status)
	}
	return nil
}

// GetQuote implements broker.Broker.
func (z *ZerodhaBroker) GetQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := exchangeSymbol(symbol)

	var result struct {
		Data map[string]struct {
			LastPrice float64 `json:"last_price"`
		} `json:"data"`
	}
	if err := z.get(ctx, "/quote/ltp?i="+key, &result); err != nil {
		return decimal.Zero, fmt.Errorf("zerodha quote %s: %w", symbol, err)
	}

	entry, ok := result.Data[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("zerodha quote %s: instrument not found", symbol)
	}
	return decimal.NewFromFloat(entry.LastPrice), nil
}

// PlaceOrder implements broker.Broker. Orders go through the regular variety
// as CNC (delivery) market orders.
func (z *ZerodhaBroker) PlaceOrder(ctx context.Context, symbol string, quantity int, side string) (*broker.Order, error) {
	key := exchangeSymbol(symbol)
	parts := strings.SplitN(key, ":", 2)

	transactionType := "BUY"
	if side == broker.SideSell {
		transactionType = "SELL"
	}

	resp, err := z.httpClient.R().
		SetContext(ctx).
		SetHeader("X-Kite-Version", "3").
		SetHeader("Authorization", z.authHeader()).
		SetFormData(map[string]string{
			"exchange":         parts[0],
			"tradingsymbol":    parts[1],
			"transaction_type": transactionType,
			"order_type":       "MARKET",
			"quantity":         fmt.Sprintf("%d", quantity),
			"product":          "CNC",
			"validity":         "DAY",
		}).
		Post(z.baseURL + "/orders/regular")
	if err != nil {
		return nil, fmt.Errorf("zerodha place order %s: %w", symbol, err)
	}

	order := &broker.Order{
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Timestamp: time.Now(),
	}

	if resp.StatusCode() != http.StatusOK {
		order.Status = broker.StatusFailed
		return order, fmt.Errorf("zerodha place order %s: status %d, body: %s",
			symbol, resp.StatusCode(), resp.String())
	}

	var result struct {
		Data struct {
			OrderID string `json:"order_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		order.Status = broker.StatusFailed
		return order, fmt.Errorf("zerodha place order %s: decode: %w", symbol, err)
	}

	order.OrderID = result.Data.OrderID
	order.Status = broker.StatusSubmitted
	return order, nil
}

// GetPositions implements broker.Broker using the holdings endpoint, which
// covers delivery positions.
func (z *ZerodhaBroker) GetPositions(ctx context.Context) (map[string]broker.Position, error) {
	var result struct {
		Data []struct {
			TradingSymbol string  `json:"tradingsymbol"`
			Exchange      string  `json:"exchange"`
			Quantity      int     `json:"quantity"`
			AveragePrice  float64 `json:"average_price"`
			LastPrice     float64 `json:"last_price"`
		} `json:"data"`
	}
	if err := z.get(ctx, "/portfolio/holdings", &result); err != nil {
		return nil, fmt.Errorf("zerodha positions: %w", err)
	}

	out := make(map[string]broker.Position, len(result.Data))
	for _, h := range result.Data {
		if h.Quantity <= 0 {
			continue
		}
		symbol := canonicalSymbol(h.TradingSymbol, h.Exchange)
		out[symbol] = broker.Position{
			Symbol:       symbol,
			Quantity:     h.Quantity,
			AveragePrice: decimal.NewFromFloat(h.AveragePrice),
			CurrentPrice: decimal.NewFromFloat(h.LastPrice),
		}
	}
	return out, nil
}

// GetAccountBalance implements broker.Broker.
func (z *ZerodhaBroker) GetAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	var result struct {
		Data struct {
			Available struct {
				Cash float64 `json:"cash"`
			} `json:"available"`
		} `json:"data"`
	}
	if err := z.get(ctx, "/user/margins/equity", &result); err != nil {
		return decimal.Zero, fmt.Errorf("zerodha balance: %w", err)
	}
	return decimal.NewFromFloat(result.Data.Available.Cash), nil
}
