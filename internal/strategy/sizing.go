package strategy

import (
	"github.com/shopspring/decimal"
)

// PositionSize converts a candidate buy into a concrete share quantity under
// the region's risk limits. It is pure: validation independently re-enforces
// the same ceilings, so a bug in one cannot bypass the other.
//
// The allocation suggestion can only shrink the result, never grow it past
// the risk and per-trade ceilings.
func PositionSize(capital, maxPerTrade, maxRiskPerTrade, price, stopLoss decimal.Decimal, allocationPct float64) int {
	if price.LessThanOrEqual(decimal.Zero) {
		return 0
	}

	maxSharesByAllocation := maxPerTrade.Div(price).IntPart()

	size := maxSharesByAllocation
	if stopLoss.GreaterThan(decimal.Zero) && stopLoss.LessThan(price) {
		riskPerShare := price.Sub(stopLoss)
		allowedRisk := capital.Mul(maxRiskPerTrade)
		maxSharesByRisk := allowedRisk.Div(riskPerShare).IntPart()
		if maxSharesByRisk < size {
			size = maxSharesByRisk
		}
	}
	if size < 1 {
		size = 1
	}

	if allocationPct > 0 && allocationPct <= 1 {
		alloc := decimal.NewFromFloat(allocationPct)
		allocShares := capital.Mul(alloc).Div(price).IntPart()
		if allocShares < size {
			size = allocShares
		}
		if size < 1 {
			size = 1
		}
	}

	return int(size)
}
