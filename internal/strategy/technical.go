package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/songzhibin97/stockflux/internal/models"
)

const (
	smaShortPeriod = 20
	smaLongPeriod  = 50
	rsiPeriod      = 14
	macdFast       = 12
	macdSlow       = 26
	macdSignal     = 9
)

// ComputeTechSummary derives the indicator snapshot fed into the analyzer
// from daily bars, oldest first. Needs at least 50 bars.
func ComputeTechSummary(bars []models.Bar) (*models.TechSummary, error) {
	if len(bars) < smaLongPeriod {
		return nil, fmt.Errorf("not enough bars for indicators: got %d, need %d", len(bars), smaLongPeriod)
	}

	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i], _ = bar.Close.Float64()
	}

	sma20 := sma(bars, smaShortPeriod)
	sma50 := sma(bars, smaLongPeriod)
	macdLine, signalLine := macd(closes)

	summary := &models.TechSummary{
		SMA20:      sma20,
		SMA50:      sma50,
		RSI14:      rsi(closes, rsiPeriod),
		MACD:       macdLine,
		MACDSignal: signalLine,
	}

	last := bars[len(bars)-1].Close
	switch {
	case sma20.GreaterThan(sma50) && last.GreaterThan(sma20):
		summary.Trend = "bullish"
	case sma20.LessThan(sma50) && last.LessThan(sma20):
		summary.Trend = "bearish"
	default:
		summary.Trend = "neutral"
	}

	return summary, nil
}

func sma(bars []models.Bar, period int) decimal.Decimal {
	sum := decimal.Zero
	for _, bar := range bars[len(bars)-period:] {
		sum = sum.Add(bar.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

// rsi uses Wilder smoothing over the whole series.
func rsi(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 50
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func macd(closes []float64) (line, signal float64) {
	fast := emaSeries(closes, macdFast)
	slow := emaSeries(closes, macdSlow)

	diff := make([]float64, len(closes))
	for i := range closes {
		diff[i] = fast[i] - slow[i]
	}

	signalSeries := emaSeries(diff, macdSignal)
	return diff[len(diff)-1], signalSeries[len(signalSeries)-1]
}

func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	k := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}
