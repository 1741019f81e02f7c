package guardrail

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvertedBounds = errors.New("guardrail: floor must not exceed ceiling")

// Bounds is an absolute nightly-price window. A zero Ceiling means unbounded above.
type Bounds struct {
	Floor   decimal.Decimal `json:"floor" yaml:"floor"`
	Ceiling decimal.Decimal `json:"ceiling" yaml:"ceiling"`
}

func (b Bounds) Validate() error {
	if b.Floor.IsNegative() || b.Ceiling.IsNegative() {
		return ErrInvertedBounds
	}
	if b.bounded() && b.Floor.GreaterThan(b.Ceiling) {
		return ErrInvertedBounds
	}
	return nil
}

func (b Bounds) bounded() bool {
	return b.Ceiling.IsPositive()
}

// Guard combines the relative change limit with absolute bounds.
type Guard struct {
	MaxChangePct int
	Bounds       Bounds
}

// Outcome describes how a requested price was bounded.
type Outcome struct {
	Requested   decimal.Decimal
	Final       decimal.Decimal
	ChangeLimit bool
	BoundsLimit bool
}

func (o Outcome) Clamped() bool {
	return o.ChangeLimit || o.BoundsLimit
}

// Apply clips requested to MaxChangePct around current and then into Bounds.
// Absolute bounds are applied last and win over the relative limit.
func (g Guard) Apply(current, requested decimal.Decimal) Outcome {
	maxPct := g.MaxChangePct
	if maxPct <= 0 {
		maxPct = DefaultMaxChangePct
	}
	out := Outcome{Requested: requested, Final: requested}
	if current.IsPositive() {
		adjusted := RecommendAdjustment(current, requested, maxPct)
		if !adjusted.Equal(requested) {
			out.ChangeLimit = true
			out.Final = adjusted
		}
	}
	if g.Bounds.bounded() {
		clamped := ClampPrice(out.Final, g.Bounds.Floor, g.Bounds.Ceiling)
		if !clamped.Equal(out.Final) {
			out.BoundsLimit = true
			out.Final = clamped
		}
	} else if out.Final.LessThan(g.Bounds.Floor) {
		out.BoundsLimit = true
		out.Final = g.Bounds.Floor
	}
	return out
}
