// Package guardrail holds the pure price arithmetic used to bound and assess
// nightly-rate changes. Nothing here performs I/O or returns errors; the only
// special cases are explicit zero guards.
package guardrail

import (
	"sort"

	"github.com/shopspring/decimal"

	"rateguard/internal/domain/shared/money"
)

// DefaultMaxChangePct is the largest change, in percent, considered safe.
const DefaultMaxChangePct = 30

var (
	hundred        = decimal.NewFromInt(100)
	aboveThreshold = decimal.RequireFromString("1.05")
	belowThreshold = decimal.RequireFromString("0.95")
)

// ClampPrice bounds price into [floor, ceiling]. Callers must ensure floor <= ceiling.
func ClampPrice(price, floor, ceiling decimal.Decimal) decimal.Decimal {
	if price.LessThan(floor) {
		return floor
	}
	if price.GreaterThan(ceiling) {
		return ceiling
	}
	return price
}

// PercentageChange returns round(100*(next-prev)/prev), or 0 when prev is zero.
func PercentageChange(prev, next decimal.Decimal) int {
	if prev.IsZero() {
		return 0
	}
	pct := next.Sub(prev).Mul(hundred).Div(prev)
	return int(money.RoundHalfUp(pct).IntPart())
}

func IsSafePriceChange(prev, next decimal.Decimal, maxPct int) bool {
	return abs(PercentageChange(prev, next)) <= maxPct
}

// ApplyMultipliers returns base times the product of multipliers, rounded to a whole amount.
func ApplyMultipliers(base decimal.Decimal, multipliers ...decimal.Decimal) decimal.Decimal {
	out := base
	for _, m := range multipliers {
		out = out.Mul(m)
	}
	return money.RoundHalfUp(out)
}

// IsValidPrice is an inclusive range check.
func IsValidPrice(price, floor, ceiling decimal.Decimal) bool {
	return !price.LessThan(floor) && !price.GreaterThan(ceiling)
}

type Position string

const (
	PositionAbove Position = "above"
	PositionAt    Position = "at"
	PositionBelow Position = "below"
)

// PricePosition compares price with a market reference with a 5% band either side.
func PricePosition(price, market decimal.Decimal) Position {
	if market.IsZero() {
		if price.IsPositive() {
			return PositionAbove
		}
		return PositionAt
	}
	ratio := price.Div(market)
	switch {
	case ratio.GreaterThan(aboveThreshold):
		return PositionAbove
	case ratio.LessThan(belowThreshold):
		return PositionBelow
	default:
		return PositionAt
	}
}

// RecommendAdjustment passes target through when it is within maxPct of current,
// otherwise it stops at the maxPct boundary in the direction of target.
func RecommendAdjustment(current, target decimal.Decimal, maxPct int) decimal.Decimal {
	maxDelta := current.Mul(decimal.NewFromInt(int64(maxPct))).Div(hundred)
	delta := target.Sub(current)
	if delta.Abs().LessThanOrEqual(maxDelta) {
		return target
	}
	if delta.IsPositive() {
		return current.Add(maxDelta)
	}
	return current.Sub(maxDelta)
}

type Impact struct {
	BookedDays       int             `json:"booked_days"`
	BaseRevenue      decimal.Decimal `json:"base_revenue"`
	ProjectedRevenue decimal.Decimal `json:"projected_revenue"`
	Impact           decimal.Decimal `json:"impact"`
}

// RevenueImpact estimates revenue over days at occupancyRate percent for both prices.
func RevenueImpact(base, proposed, occupancyRate decimal.Decimal, days int) Impact {
	booked := money.RoundHalfUp(decimal.NewFromInt(int64(days)).Mul(occupancyRate).Div(hundred))
	bookedDays := booked.IntPart()
	baseRevenue := base.Mul(booked)
	projected := proposed.Mul(booked)
	return Impact{
		BookedDays:       int(bookedDays),
		BaseRevenue:      baseRevenue,
		ProjectedRevenue: projected,
		Impact:           projected.Sub(baseRevenue),
	}
}

type Tier struct {
	Price decimal.Decimal `json:"tier"`
	Index int             `json:"index"`
}

// TierPrice picks the first ascending tier >= price, or the largest tier when
// price exceeds all of them. ok is false only for an empty tier list.
func TierPrice(price decimal.Decimal, tiers []decimal.Decimal) (Tier, bool) {
	if len(tiers) == 0 {
		return Tier{}, false
	}
	sorted := append([]decimal.Decimal(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	for i, t := range sorted {
		if t.GreaterThanOrEqual(price) {
			return Tier{Price: t, Index: i}, true
		}
	}
	last := len(sorted) - 1
	return Tier{Price: sorted[last], Index: last}, true
}

// Elasticity is demandChangePct / priceChangePct, or 0 when the price did not move.
func Elasticity(priceChangePct, demandChangePct decimal.Decimal) decimal.Decimal {
	if priceChangePct.IsZero() {
		return decimal.Zero
	}
	return demandChangePct.Div(priceChangePct)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
