package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPositionSize(t *testing.T) {
	dec := decimal.RequireFromString

	tests := []struct {
		name          string
		capital       string
		maxPerTrade   string
		maxRisk       string
		price         string
		stopLoss      string
		allocationPct float64
		want          int
	}{
		{
			name:        "allocation ceiling only",
			capital:     "1000",
			maxPerTrade: "200",
			maxRisk:     "0.02",
			price:       "50",
			stopLoss:    "0",
			want:        4,
		},
		{
			name:        "allocation tighter than risk",
			capital:     "1000",
			maxPerTrade: "200",
			maxRisk:     "0.02",
			price:       "100",
			stopLoss:    "95",
			want:        2,
		},
		{
			name:        "risk tighter than allocation",
			capital:     "1000",
			maxPerTrade: "10000",
			maxRisk:     "0.02",
			price:       "100",
			stopLoss:    "95",
			want:        4,
		},
		{
			name:          "allocation suggestion shrinks size",
			capital:       "1000",
			maxPerTrade:   "10000",
			maxRisk:       "0.02",
			price:         "100",
			stopLoss:      "95",
			allocationPct: 0.1,
			want:          1,
		},
		{
			name:          "allocation suggestion cannot grow past risk ceiling",
			capital:       "1000",
			maxPerTrade:   "200",
			maxRisk:       "0.02",
			price:         "100",
			stopLoss:      "95",
			allocationPct: 0.9,
			want:          2,
		},
		{
			name:        "price above per-trade cap floors at one share",
			capital:     "1000",
			maxPerTrade: "200",
			maxRisk:     "0.02",
			price:       "500",
			stopLoss:    "0",
			want:        1,
		},
		{
			name:        "stop above price is ignored",
			capital:     "1000",
			maxPerTrade: "200",
			maxRisk:     "0.02",
			price:       "100",
			stopLoss:    "105",
			want:        2,
		},
		{
			name:        "zero price yields zero",
			capital:     "1000",
			maxPerTrade: "200",
			maxRisk:     "0.02",
			price:       "0",
			stopLoss:    "0",
			want:        0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PositionSize(dec(tt.capital), dec(tt.maxPerTrade), dec(tt.maxRisk),
				dec(tt.price), dec(tt.stopLoss), tt.allocationPct)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPositionSizeIsPure(t *testing.T) {
	capital := decimal.RequireFromString("1000")
	price := decimal.RequireFromString("100")

	first := PositionSize(capital, decimal.RequireFromString("200"), decimal.RequireFromString("0.02"),
		price, decimal.Zero, 0)
	second := PositionSize(capital, decimal.RequireFromString("200"), decimal.RequireFromString("0.02"),
		price, decimal.Zero, 0)

	assert.Equal(t, first, second)
	assert.True(t, capital.Equal(decimal.RequireFromString("1000")))
}
