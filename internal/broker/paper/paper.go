// Package paper provides an in-memory simulated broker used when no live
// broker credentials are configured. Orders always fill at the quoted price.
package paper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/songzhibin97/stockflux/internal/broker"
	"github.com/songzhibin97/stockflux/internal/models"
)

// QuoteSource supplies fill prices for simulated orders.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

type position struct {
	quantity     int
	averagePrice decimal.Decimal
}

// PaperBroker simulates fills against real quotes. It is only mutated from
// the trading cycle, like every other per-region component.
type PaperBroker struct {
	name      string
	balance   decimal.Decimal
	positions map[string]*position
	quotes    QuoteSource
}

func NewPaperBroker(name string, startingBalance decimal.Decimal, quotes QuoteSource) *PaperBroker {
	return &PaperBroker{
		name:      name,
		balance:   startingBalance,
		positions: make(map[string]*position),
		quotes:    quotes,
	}
}

// Name implements broker.Broker.
func (p *PaperBroker) Name() string { return p.name }

// Authenticate implements broker.Broker. Paper trading has no session.
func (p *PaperBroker) Authenticate(ctx context.Context) error { return nil }

// GetQuote implements broker.Broker.
func (p *PaperBroker) GetQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	quote, err := p.quotes.GetQuote(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("paper quote for %s: %w", symbol, err)
	}
	return quote.Price, nil
}

// PlaceOrder implements broker.Broker. Market orders fill immediately at the
// current quote.
func (p *PaperBroker) PlaceOrder(ctx context.Context, symbol string, quantity int, side string) (*broker.Order, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("paper order: invalid quantity %d", quantity)
	}

	price, err := p.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	order := &broker.Order{
		OrderID:   uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		Status:    broker.StatusFilled,
		Timestamp: time.Now(),
	}

	cost := price.Mul(decimal.NewFromInt(int64(quantity)))

	switch side {
	case broker.SideBuy:
		if cost.GreaterThan(p.balance) {
			order.Status = broker.StatusRejected
			return order, nil
		}
		p.balance = p.balance.Sub(cost)
		if pos, ok := p.positions[symbol]; ok {
			totalQty := pos.quantity + quantity
			pos.averagePrice = pos.averagePrice.
				Mul(decimal.NewFromInt(int64(pos.quantity))).
				Add(cost).
				Div(decimal.NewFromInt(int64(totalQty)))
			pos.quantity = totalQty
		} else {
			p.positions[symbol] = &position{quantity: quantity, averagePrice: price}
		}

	case broker.SideSell:
		pos, ok := p.positions[symbol]
		if !ok || pos.quantity < quantity {
			order.Status = broker.StatusRejected
			return order, nil
		}
		p.balance = p.balance.Add(cost)
		pos.quantity -= quantity
		if pos.quantity == 0 {
			delete(p.positions, symbol)
		}

	default:
		return nil, fmt.Errorf("paper order: invalid side %q", side)
	}

	return order, nil
}

// GetPositions implements broker.Broker.
func (p *PaperBroker) GetPositions(ctx context.Context) (map[string]broker.Position, error) {
	out := make(map[string]broker.Position, len(p.positions))
	for symbol, pos := range p.positions {
		current := pos.averagePrice
		if quote, err := p.quotes.GetQuote(ctx, symbol); err == nil {
			current = quote.Price
		}
		out[symbol] = broker.Position{
			Symbol:       symbol,
			Quantity:     pos.quantity,
			AveragePrice: pos.averagePrice,
			CurrentPrice: current,
		}
	}
	return out, nil
}

// GetAccountBalance implements broker.Broker.
func (p *PaperBroker) GetAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	return p.balance, nil
}
