// Package robinhood implements the Broker interface for the US region.
package robinhood

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

const defaultBaseURL = "https://api.robinhood.com"

type RobinhoodBroker struct {
	baseURL    string
	token      string
	httpClient *resty.Client
}

func NewRobinhoodBroker(token string) *RobinhoodBroker {
	return &RobinhoodBroker{
		baseURL:    defaultBaseURL,
		token:      token,
		httpClient: request.Request,
	}
}

// Name implements broker.Broker.
func (r *RobinhoodBroker) Name() string { return "robinhood" }

func (r *RobinhoodBroker) get(ctx context.Context, path string, out interface{}) error {
	resp, err := r.httpClient.R().
		SetContext(ctx).
		SetAuthToken(r.token).
		Get(r.baseURL + path)
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

// Authenticate implements broker.Broker by checking the token against the
// accounts endpoint.
func (r *RobinhoodBroker) Authenticate(ctx context.Context) error {
	var result struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := r.get(ctx, "/accounts/", &result); err != nil {
		return fmt.Errorf("robinhood authenticate: %w", err)
	}
	if len(result.Results) == 0 {
		return fmt.Errorf("robinhood authenticate: no accounts for token")
	}
	return nil
}

// GetQuote implements broker.Broker.
func (r *RobinhoodBroker) GetQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var result struct {
		LastTradePrice string `json:"last_trade_price"`
	}
	if err := r.get(ctx, fmt.Sprintf("/quotes/%s/", strings.ToUpper(symbol)), &result); err != nil {
		return decimal.Zero, fmt.Errorf("robinhood quote %s: %w", symbol, err)
	}

	price, err := decimal.NewFromString(result.LastTradePrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("robinhood quote %s: bad price %q: %w", symbol, result.LastTradePrice, err)
	}
	return price, nil
}

// PlaceOrder implements broker.Broker.
func (r *RobinhoodBroker) PlaceOrder(ctx context.Context, symbol string, quantity int, side string) (*broker.Order, error) {
	resp, err := r.httpClient.R().
		SetContext(ctx).
		SetAuthToken(r.token).
		SetBody(map[string]interface{}{
			"symbol":        strings.ToUpper(symbol),
			"quantity":      quantity,
			"side":          side,
			"type":          "market",
			"time_in_force": "gfd",
		}).
		Post(r.baseURL + "/orders/")
	if err != nil {
		return nil, fmt.Errorf("robinhood place order %s: %w", symbol, err)
	}

	order := &broker.Order{
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Timestamp: time.Now(),
	}

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		order.Status = broker.StatusFailed
		return order, fmt.Errorf("robinhood place order %s: status %d, body: %s",
			symbol, resp.StatusCode(), resp.String())
	}

	var result struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		order.Status = broker.StatusFailed
		return order, fmt.Errorf("robinhood place order %s: decode: %w", symbol, err)
	}

	order.OrderID = result.ID
	order.Status = result.State
	if order.Status == "" {
		order.Status = broker.StatusSubmitted
	}
	return order, nil
}

// GetPositions implements broker.Broker.
func (r *RobinhoodBroker) GetPositions(ctx context.Context) (map[string]broker.Position, error) {
	var result struct {
		Results []struct {
			Symbol          string `json:"symbol"`
			Quantity        string `json:"quantity"`
			AverageBuyPrice string `json:"average_buy_price"`
			LastTradePrice  string `json:"last_trade_price"`
		} `json:"results"`
	}
	if err := r.get(ctx, "/positions/?nonzero=true", &result); err != nil {
		return nil, fmt.Errorf("robinhood positions: %w", err)
	}

	out := make(map[string]broker.Position, len(result.Results))
	for _, p := range result.Results {
		qty, err := decimal.NewFromString(p.Quantity)
		if err != nil || qty.Sign() <= 0 {
			continue
		}
		avg, err := decimal.NewFromString(p.AverageBuyPrice)
		if err != nil {
			continue
		}
		current := avg
		if last, err := decimal.NewFromString(p.LastTradePrice); err == nil && last.Sign() > 0 {
			current = last
		}
		out[p.Symbol] = broker.Position{
			Symbol:       p.Symbol,
			Quantity:     int(qty.IntPart()),
			AveragePrice: avg,
			CurrentPrice: current,
		}
	}
	return out, nil
}

// GetAccountBalance implements broker.Broker.
func (r *RobinhoodBroker) GetAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	var result struct {
		Results []struct {
			BuyingPower string `json:"buying_power"`
		} `json:"results"`
	}
	if err := r.get(ctx, "/accounts/", &result); err != nil {
		return decimal.Zero, fmt.Errorf("robinhood balance: %w", err)
	}
	if len(result.Results) == 0 {
		return decimal.Zero, fmt.Errorf("robinhood balance: no accounts")
	}

	balance, err := decimal.NewFromString(result.Results[0].BuyingPower)
	if err != nil {
		return decimal.Zero, fmt.Errorf("robinhood balance: bad amount %q: %w", result.Results[0].BuyingPower, err)
	}
	return balance, nil
}
