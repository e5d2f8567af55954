package risk

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songzhibin97/stockflux/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testStyle() StyleProfile {
	return StyleProfile{
		Name:               "balanced",
		MaxRiskPerTrade:    dec("0.02"),
		TrailingStopPct:    dec("0.08"),
		PartialSellPct:     dec("0.5"),
		MaxScaleOuts:       2,
		MinUpsideTargetPct: dec("0.05"),
		MaxDailyLossPct:    dec("0.05"),
		MaxDailyTrades:     50,
	}
}

func newTestManager(t *testing.T, capital string, mutate func(*Config)) *RegionManager {
	t.Helper()

	cfg := Config{
		Region:  models.RegionUS,
		Capital: dec(capital),
		Style:   testStyle(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRegionManager(cfg, logger)
}

func TestRegionManager_ValidateTrade(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(m *RegionManager)
		mutate  func(cfg *Config)
		req     TradeRequest
		want    bool
	}{
		{
			name: "valid buy",
			req:  TradeRequest{Symbol: "AAPL", Action: ActionBuy, Quantity: 1, Price: dec("100")},
			want: true,
		},
		{
			name: "insufficient funds",
			req:  TradeRequest{Symbol: "AAPL", Action: ActionBuy, Quantity: 20, Price: dec("100")},
			want: false,
		},
		{
			name: "below min trade value",
			mutate: func(cfg *Config) {
				cfg.MinTradeValue = dec("50")
			},
			req:  TradeRequest{Symbol: "AAPL", Action: ActionBuy, Quantity: 1, Price: dec("10")},
			want: false,
		},
		{
			name: "allocation cap blocks oversized buy with existing exposure",
			mutate: func(cfg *Config) {
				cfg.MaxPerTrade = dec("200")
			},
			prepare: func(m *RegionManager) {
				require.NoError(t, m.RecordTrade("AAPL", ActionBuy, 1, dec("50")))
			},
			// projected exposure = 1*50 + 10*50 = 550 > 200
			req:  TradeRequest{Symbol: "AAPL", Action: ActionBuy, Quantity: 10, Price: dec("50")},
			want: false,
		},
		{
			name: "stop loss risk exceeds budget",
			mutate: func(cfg *Config) {
				cfg.MaxPerTrade = dec("1000")
			},
			// risk = (100-80)*5 = 100 > 1000*0.02 = 20
			req:  TradeRequest{Symbol: "AAPL", Action: ActionBuy, Quantity: 5, Price: dec("100"), StopLoss: dec("80")},
			want: false,
		},
		{
			name: "stop loss risk within budget",
			mutate: func(cfg *Config) {
				cfg.MaxPerTrade = dec("1000")
			},
			// risk = (100-96)*5 = 20 <= 20
			req:  TradeRequest{Symbol: "AAPL", Action: ActionBuy, Quantity: 5, Price: dec("100"), StopLoss: dec("96")},
			want: true,
		},
		{
			name: "sell without position",
			req:  TradeRequest{Symbol: "AAPL", Action: ActionSell, Quantity: 1, Price: dec("100")},
			want: false,
		},
		{
			name: "sell more than held",
			prepare: func(m *RegionManager) {
				require.NoError(t, m.RecordTrade("AAPL", ActionBuy, 2, dec("50")))
			},
			req:  TradeRequest{Symbol: "AAPL", Action: ActionSell, Quantity: 3, Price: dec("50")},
			want: false,
		},
		{
			name: "sell within held quantity",
			prepare: func(m *RegionManager) {
				require.NoError(t, m.RecordTrade("AAPL", ActionBuy, 3, dec("50")))
			},
			req:  TradeRequest{Symbol: "AAPL", Action: ActionPartialSell, Quantity: 2, Price: dec("55")},
			want: true,
		},
		{
			name: "malformed quantity",
			req:  TradeRequest{Symbol: "AAPL", Action: ActionBuy, Quantity: 0, Price: dec("100")},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, "1000", tt.mutate)
			if tt.prepare != nil {
				tt.prepare(m)
			}
			assert.Equal(t, tt.want, m.ValidateTrade(tt.req))
		})
	}
}

func TestRegionManager_CircuitBreaker(t *testing.T) {
	t.Run("daily loss limit halts validation until date rollover", func(t *testing.T) {
		m := newTestManager(t, "1000", nil)

		require.NoError(t, m.RecordTrade("AAPL", ActionBuy, 5, dec("100")))
		// realize a 60 loss, above the 50 (5% of 1000) daily limit
		require.NoError(t, m.RecordTrade("AAPL", ActionSell, 5, dec("88")))

		assert.True(t, m.IsCircuitBreakerTriggered())
		assert.False(t, m.ValidateTrade(TradeRequest{
			Symbol: "TSLA", Action: ActionBuy, Quantity: 1, Price: dec("100"),
		}))

		// advance the clock one day, counters reset lazily
		m.now = func() time.Time { return time.Now().AddDate(0, 0, 1) }

		assert.False(t, m.IsCircuitBreakerTriggered())
		assert.True(t, m.dailyLoss.IsZero())
		assert.Zero(t, m.dailyTradeCount)
		assert.True(t, m.ValidateTrade(TradeRequest{
			Symbol: "TSLA", Action: ActionBuy, Quantity: 1, Price: dec("100"),
		}))
	})

	t.Run("daily trade count limit", func(t *testing.T) {
		m := newTestManager(t, "100000", func(cfg *Config) {
			cfg.Style.MaxDailyTrades = 3
			cfg.MaxPerTrade = dec("100000")
		})

		for i := 0; i < 3; i++ {
			require.NoError(t, m.RecordTrade("AAPL", ActionBuy, 1, dec("10")))
		}

		assert.True(t, m.IsCircuitBreakerTriggered())
		assert.False(t, m.ValidateTrade(TradeRequest{
			Symbol: "AAPL", Action: ActionBuy, Quantity: 1, Price: dec("10"),
		}))
	})
}

func TestRegionManager_RecordTrade(t *testing.T) {
	t.Run("volume weighted average price", func(t *testing.T) {
		m := newTestManager(t, "10000", func(cfg *Config) {
			cfg.MaxPerTrade = dec("10000")
		})

		require.NoError(t, m.RecordTrade("AAPL", ActionBuy, 10, dec("100")))
		require.NoError(t, m.RecordTrade("AAPL", ActionBuy, 10, dec("200")))

		pos, ok := m.GetPosition("AAPL")
		require.True(t, ok)
		assert.Equal(t, 20, pos.Quantity)
		assert.True(t, pos.AveragePrice.Equal(dec("150")), "got %s", pos.AveragePrice)
	})

	t.Run("capital conservation over a trade sequence", func(t *testing.T) {
		m := newTestManager(t, "10000", func(cfg *Config) {
			cfg.MaxPerTrade = dec("10000")
		})

		require.NoError(t, m.RecordTrade("AAPL", ActionBuy, 10, dec("100")))  // -1000
		require.NoError(t, m.RecordTrade("TSLA", ActionBuy, 5, dec("200")))   // -1000
		require.NoError(t, m.RecordTrade("AAPL", ActionSell, 4, dec("110")))  // +440
		require.NoError(t, m.RecordTrade("TSLA", ActionSell, 5, dec("190")))  // +950

		want := dec("10000").Sub(dec("2000")).Add(dec("1390"))
		assert.True(t, m.CurrentCapital().Equal(want), "got %s want %s", m.CurrentCapital(), want)
	})

	t.Run("position deleted when quantity reaches zero", func(t *testing.T) {
		m := newTestManager(t, "1000", nil)

		require.NoError(t, m.RecordTrade("AAPL", ActionBuy, 3, dec("50")))
		require.NoError(t, m.RecordTrade("AAPL", ActionSell, 3, dec("55")))

		_, ok := m.GetPosition("AAPL")
		assert.False(t, ok)
		assert.Empty(t, m.Positions())
	})

	t.Run("only losses accumulate into daily loss", func(t *testing.T) {
		m := newTestManager(t, "10000", func(cfg *Config) {
			cfg.MaxPerTrade = dec("10000")
		})

		require.NoError(t, m.RecordTrade("AAPL", ActionBuy, 10, dec("100")))
		require.NoError(t, m.RecordTrade("AAPL", ActionSell, 5, dec("110"))) // profit
		assert.True(t, m.dailyLoss.IsZero())

		require.NoError(t, m.RecordTrade("AAPL", ActionSell, 5, dec("90"))) // -50
		assert.True(t, m.dailyLoss.Equal(dec("50")), "got %s", m.dailyLoss)
	})

	t.Run("oversell is clamped to held quantity", func(t *testing.T) {
		m := newTestManager(t, "1000", nil)

		require.NoError(t, m.RecordTrade("AAPL", ActionBuy, 3, dec("50")))
		require.NoError(t, m.RecordTrade("AAPL", ActionSell, 10, dec("60")))

		_, ok := m.GetPosition("AAPL")
		assert.False(t, ok)
		// only 3 shares of proceeds credited
		want := dec("1000").Sub(dec("150")).Add(dec("180"))
		assert.True(t, m.CurrentCapital().Equal(want), "got %s", m.CurrentCapital())
	})

	t.Run("invalid input is an error", func(t *testing.T) {
		m := newTestManager(t, "1000", nil)

		assert.Error(t, m.RecordTrade("AAPL", ActionBuy, 0, dec("100")))
		assert.Error(t, m.RecordTrade("AAPL", ActionBuy, 1, decimal.Zero))
		assert.Error(t, m.RecordTrade("AAPL", "short", 1, dec("100")))
		assert.Error(t, m.RecordTrade("AAPL", ActionSell, 1, dec("100")))
	})
}

func TestRegionManager_UpdateTrailingStop(t *testing.T) {
	t.Run("no position", func(t *testing.T) {
		m := newTestManager(t, "1000", nil)
		_, ok := m.UpdateTrailingStop("AAPL", dec("100"))
		assert.False(t, ok)
	})

	t.Run("stop ratchets up and never retreats", func(t *testing.T) {
		m := newTestManager(t, "1000", nil)
		require.NoError(t, m.RecordTrade("AAPL", ActionBuy, 2, dec("100")))

		prices := []string{"100", "105", "98", "110", "90", "104", "120", "95"}
		prev := decimal.Zero
		high := decimal.Zero
		oneMinusPct := dec("1").Sub(dec("0.08"))

		for _, p := range prices {
			price := dec(p)
			if price.GreaterThan(high) {
				high = price
			}

			stop, ok := m.UpdateTrailingStop("AAPL", price)
			require.True(t, ok)

			assert.True(t, stop.GreaterThanOrEqual(prev),
				"stop moved down at price %s: %s < %s", p, stop, prev)
			assert.True(t, stop.LessThanOrEqual(high.Mul(oneMinusPct)),
				"stop above watermark bound at price %s", p)

			pos, _ := m.GetPosition("AAPL")
			assert.True(t, pos.TrailingStop.LessThanOrEqual(pos.HighWatermark))
			prev = stop
		}

		pos, _ := m.GetPosition("AAPL")
		assert.True(t, pos.HighWatermark.Equal(dec("120")))
		assert.True(t, pos.TrailingStop.Equal(dec("120").Mul(oneMinusPct)))
	})
}

func TestRegionManager_PartialSellLifecycle(t *testing.T) {
	m := newTestManager(t, "10000", func(cfg *Config) {
		cfg.MaxPerTrade = dec("10000")
	})

	require.NoError(t, m.RecordTrade("AAPL", ActionBuy, 10, dec("100")))

	// below the 5% upside target, nothing to do
	assert.Zero(t, m.GetPartialSellQuantity("AAPL", dec("104")))

	// +6% clears the first target: floor(10*0.5) = 5
	qty := m.GetPartialSellQuantity("AAPL", dec("106"))
	require.Equal(t, 5, qty)
	require.NoError(t, m.RecordPartialSell("AAPL", qty, dec("106")))

	pos, ok := m.GetPosition("AAPL")
	require.True(t, ok)
	assert.Equal(t, 5, pos.Quantity)
	assert.Equal(t, 1, pos.ScaleOuts)
	assert.True(t, pos.MinUpsideTarget.Equal(dec("0.10")), "got %s", pos.MinUpsideTarget)

	// +6% no longer clears the raised 10% target
	assert.Zero(t, m.GetPartialSellQuantity("AAPL", dec("106")))

	// +11% clears it: floor(5*0.5) = 2
	qty = m.GetPartialSellQuantity("AAPL", dec("111"))
	require.Equal(t, 2, qty)
	require.NoError(t, m.RecordPartialSell("AAPL", qty, dec("111")))

	pos, _ = m.GetPosition("AAPL")
	assert.Equal(t, 3, pos.Quantity)
	assert.Equal(t, 2, pos.ScaleOuts)

	// scale-out budget exhausted, any price returns zero
	for _, p := range []string{"150", "200", "1000"} {
		assert.Zero(t, m.GetPartialSellQuantity("AAPL", dec(p)))
	}
}

func TestRegionManager_PartialSellEdgeCases(t *testing.T) {
	t.Run("no position", func(t *testing.T) {
		m := newTestManager(t, "1000", nil)
		assert.Zero(t, m.GetPartialSellQuantity("AAPL", dec("100")))
	})

	t.Run("single share never partially sold", func(t *testing.T) {
		m := newTestManager(t, "1000", nil)
		require.NoError(t, m.RecordTrade("AAPL", ActionBuy, 1, dec("100")))
		assert.Zero(t, m.GetPartialSellQuantity("AAPL", dec("200")))
	})

	t.Run("last share reserved for stop path", func(t *testing.T) {
		m := newTestManager(t, "1000", func(cfg *Config) {
			cfg.Style.PartialSellPct = dec("0.99")
		})
		require.NoError(t, m.RecordTrade("AAPL", ActionBuy, 4, dec("100")))
		// floor(4*0.99) = 3, capped at 4-1 = 3
		assert.Equal(t, 3, m.GetPartialSellQuantity("AAPL", dec("120")))
	})
}

func TestRegionManager_SyncFromBroker(t *testing.T) {
	m := newTestManager(t, "10000", func(cfg *Config) {
		cfg.MaxPerTrade = dec("10000")
	})

	require.NoError(t, m.RecordTrade("AAPL", ActionBuy, 10, dec("100")))
	require.NoError(t, m.RecordTrade("TSLA", ActionBuy, 5, dec("200")))

	// build up derived risk state on AAPL
	m.UpdateTrailingStop("AAPL", dec("120"))
	require.NoError(t, m.RecordPartialSell("AAPL", 3, dec("120")))
	before, _ := m.GetPosition("AAPL")

	m.SyncFromBroker(map[string]BrokerPosition{
		"AAPL": {Quantity: 7, AveragePrice: dec("100"), CurrentPrice: dec("115")},
		"MSFT": {Quantity: 2, AveragePrice: dec("300"), CurrentPrice: dec("310")},
		"NOOP": {Quantity: 0, AveragePrice: dec("10"), CurrentPrice: dec("10")},
	}, dec("8800"))

	assert.True(t, m.CurrentCapital().Equal(dec("8800")))

	// TSLA vanished broker-side, NOOP has zero quantity
	_, ok := m.GetPosition("TSLA")
	assert.False(t, ok)
	_, ok = m.GetPosition("NOOP")
	assert.False(t, ok)

	// surviving symbol keeps its derived risk state
	aapl, ok := m.GetPosition("AAPL")
	require.True(t, ok)
	assert.Equal(t, 7, aapl.Quantity)
	assert.True(t, aapl.HighWatermark.Equal(before.HighWatermark))
	assert.True(t, aapl.TrailingStop.Equal(before.TrailingStop))
	assert.Equal(t, before.ScaleOuts, aapl.ScaleOuts)
	assert.True(t, aapl.MinUpsideTarget.Equal(before.MinUpsideTarget))

	// new symbol starts with fresh derived state
	msft, ok := m.GetPosition("MSFT")
	require.True(t, ok)
	assert.True(t, msft.HighWatermark.Equal(dec("310")))
	assert.True(t, msft.TrailingStop.IsZero())
	assert.Zero(t, msft.ScaleOuts)
}

func TestRegionManager_ApplyPatch(t *testing.T) {
	m := newTestManager(t, "1000", nil)

	risk := dec("0.05")
	alloc := dec("0.5")
	trades := 10
	m.ApplyPatch(Patch{
		MaxRiskPerTrade:  &risk,
		MaxAllocationPct: &alloc,
		MaxDailyTrades:   &trades,
	})

	assert.True(t, m.MaxRiskPerTrade().Equal(risk))
	assert.True(t, m.MaxCapitalPerTrade().Equal(dec("500")))
	assert.Equal(t, 10, m.maxDailyTrades)
}

func TestRegionManager_Defaults(t *testing.T) {
	m := newTestManager(t, "1000", nil)

	// MaxPerTrade defaults to 20% of starting capital
	assert.True(t, m.MaxCapitalPerTrade().Equal(dec("200")))
	assert.True(t, m.HasSufficientFunds(dec("1000")))
	assert.False(t, m.HasSufficientFunds(dec("1000.01")))
	assert.Equal(t, models.RegionUS, m.Region())

	m.UpdateCapital(dec("-100"))
	assert.True(t, m.CurrentCapital().Equal(dec("900")))
}
