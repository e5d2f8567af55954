package broker

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/stockflux/internal/models"
)

type stubBroker struct {
	name string
}

func (s *stubBroker) Name() string                          { return s.name }
func (s *stubBroker) Authenticate(context.Context) error    { return nil }
func (s *stubBroker) GetQuote(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (s *stubBroker) PlaceOrder(context.Context, string, int, string) (*Order, error) {
	return &Order{Status: StatusFilled}, nil
}
func (s *stubBroker) GetPositions(context.Context) (map[string]Position, error) {
	return nil, nil
}
func (s *stubBroker) GetAccountBalance(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func newTestRouter() *Router {
	return NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRouterPreferredBroker(t *testing.T) {
	r := newTestRouter()
	r.Register("robinhood", &stubBroker{name: "robinhood"}, models.RegionUS)
	r.Register("paper-US", &stubBroker{name: "paper-US"}, models.RegionUS)
	r.SetPreferences("robinhood", "", "")

	b, err := r.ForSymbol("AAPL")
	require.NoError(t, err)
	assert.Equal(t, "robinhood", b.Name())
}

func TestRouterIndiaFallback(t *testing.T) {
	r := newTestRouter()
	r.Register("paper-IN", &stubBroker{name: "paper-IN"}, models.RegionIndia)
	r.SetPreferences("robinhood", "zerodha", "paper-IN")

	b, err := r.ForSymbol("RELIANCE.NS")
	require.NoError(t, err)
	assert.Equal(t, "paper-IN", b.Name())
}

func TestRouterAnyBrokerWhenNoPreference(t *testing.T) {
	r := newTestRouter()
	r.Register("only", &stubBroker{name: "only"}, models.RegionUS)

	b, err := r.ForRegion(models.RegionUS)
	require.NoError(t, err)
	assert.Equal(t, "only", b.Name())
}

func TestRouterNoBroker(t *testing.T) {
	r := newTestRouter()

	_, err := r.ForRegion(models.RegionIndia)
	assert.Error(t, err)
	assert.False(t, r.HasBroker(models.RegionIndia))
}

func TestRouterRoutesByRegion(t *testing.T) {
	r := newTestRouter()
	r.Register("us", &stubBroker{name: "us"}, models.RegionUS)
	r.Register("in", &stubBroker{name: "in"}, models.RegionIndia)
	r.SetPreferences("us", "in", "")

	b, err := r.ForSymbol("TATASTEEL.BO")
	require.NoError(t, err)
	assert.Equal(t, "in", b.Name())

	b, err = r.ForSymbol("MSFT")
	require.NoError(t, err)
	assert.Equal(t, "us", b.Name())
}

func TestOrderPlaced(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusFilled, true},
		{StatusSubmitted, true},
		{StatusRejected, false},
		{StatusFailed, false},
		{"REJECTED", false},
		{"cancelled", false},
		{"error", false},
	}
	for _, tt := range tests {
		order := &Order{Status: tt.status}
		assert.Equal(t, tt.want, order.Placed(), "status %q", tt.status)
	}
}
