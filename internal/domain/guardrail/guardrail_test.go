package guardrail

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func TestPercentageChange(t *testing.T) {
	cases := []struct {
		name       string
		prev, next string
		want       int
	}{
		{"up 30", "100", "130", 30},
		{"down 10", "500", "450", -10},
		{"rounds to nearest", "300", "301", 0},
		{"rounds half up", "200", "201", 1},
		{"negative half rounds toward zero", "200", "199", 0},
		{"zero guard", "0", "130", 0},
		{"fractional", "500", "560", 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PercentageChange(d(tc.prev), d(tc.next)))
		})
	}
}

func TestClampPrice(t *testing.T) {
	floor, ceiling := d("80"), d("200")
	assertDecimal(t, "80", ClampPrice(d("10"), floor, ceiling))
	assertDecimal(t, "200", ClampPrice(d("999"), floor, ceiling))
	assertDecimal(t, "150", ClampPrice(d("150"), floor, ceiling))

	for _, p := range []string{"0", "79.99", "80", "120", "200", "200.01", "5000"} {
		once := ClampPrice(d(p), floor, ceiling)
		assertDecimal(t, once.String(), ClampPrice(once, floor, ceiling))
		assert.True(t, IsValidPrice(once, floor, ceiling))
	}
}

func TestIsSafePriceChange(t *testing.T) {
	assert.True(t, IsSafePriceChange(d("100"), d("130"), DefaultMaxChangePct))
	assert.False(t, IsSafePriceChange(d("100"), d("131"), DefaultMaxChangePct))
	assert.True(t, IsSafePriceChange(d("100"), d("70"), DefaultMaxChangePct))
	assert.False(t, IsSafePriceChange(d("100"), d("69"), DefaultMaxChangePct))
	assert.True(t, IsSafePriceChange(d("0"), d("1000"), DefaultMaxChangePct))
}

func TestApplyMultipliers(t *testing.T) {
	assertDecimal(t, "132", ApplyMultipliers(d("100"), d("1.2"), d("1.1")))
	assertDecimal(t, "100", ApplyMultipliers(d("100")))
	assertDecimal(t, "83", ApplyMultipliers(d("99.5"), d("0.83")))
}

func TestIsValidPrice(t *testing.T) {
	assert.True(t, IsValidPrice(d("80"), d("80"), d("200")))
	assert.True(t, IsValidPrice(d("200"), d("80"), d("200")))
	assert.False(t, IsValidPrice(d("200.01"), d("80"), d("200")))
}

func TestPricePosition(t *testing.T) {
	assert.Equal(t, PositionAbove, PricePosition(d("106"), d("100")))
	assert.Equal(t, PositionAt, PricePosition(d("105"), d("100")))
	assert.Equal(t, PositionAt, PricePosition(d("95"), d("100")))
	assert.Equal(t, PositionBelow, PricePosition(d("94"), d("100")))
	assert.Equal(t, PositionAbove, PricePosition(d("10"), d("0")))
	assert.Equal(t, PositionAt, PricePosition(d("0"), d("0")))
}

func TestRecommendAdjustment(t *testing.T) {
	assertDecimal(t, "130", RecommendAdjustment(d("100"), d("200"), 30))
	assertDecimal(t, "110", RecommendAdjustment(d("100"), d("110"), 30))
	assertDecimal(t, "70", RecommendAdjustment(d("100"), d("10"), 30))
	assertDecimal(t, "130", RecommendAdjustment(d("100"), d("130"), 30))

	current := d("250")
	for _, target := range []string{"0", "100", "249", "400", "10000"} {
		got := RecommendAdjustment(current, d(target), 20)
		assert.True(t, got.Sub(current).Abs().LessThanOrEqual(d("50")), target)
	}
}

func TestRevenueImpact(t *testing.T) {
	impact := RevenueImpact(d("100"), d("120"), d("70"), 30)
	assert.Equal(t, 21, impact.BookedDays)
	assertDecimal(t, "2100", impact.BaseRevenue)
	assertDecimal(t, "2520", impact.ProjectedRevenue)
	assertDecimal(t, "420", impact.Impact)

	none := RevenueImpact(d("100"), d("80"), d("0"), 30)
	assert.Equal(t, 0, none.BookedDays)
	assertDecimal(t, "0", none.Impact)
}

func TestTierPrice(t *testing.T) {
	tier, ok := TierPrice(d("275"), []decimal.Decimal{d("500"), d("100"), d("300"), d("200")})
	require.True(t, ok)
	assertDecimal(t, "300", tier.Price)
	assert.Equal(t, 2, tier.Index)

	tier, ok = TierPrice(d("600"), []decimal.Decimal{d("100"), d("200"), d("300")})
	require.True(t, ok)
	assertDecimal(t, "300", tier.Price)
	assert.Equal(t, 2, tier.Index)

	tier, ok = TierPrice(d("200"), []decimal.Decimal{d("100"), d("200"), d("300")})
	require.True(t, ok)
	assert.Equal(t, 1, tier.Index)

	_, ok = TierPrice(d("1"), nil)
	assert.False(t, ok)
}

func TestElasticity(t *testing.T) {
	assertDecimal(t, "-2", Elasticity(d("10"), d("-20")))
	assertDecimal(t, "0", Elasticity(d("0"), d("15")))
}

func TestGuardApply(t *testing.T) {
	t.Run("within limits", func(t *testing.T) {
		out := Guard{MaxChangePct: 30}.Apply(d("100"), d("120"))
		assertDecimal(t, "120", out.Final)
		assert.False(t, out.Clamped())
	})
	t.Run("change limit", func(t *testing.T) {
		out := Guard{MaxChangePct: 30}.Apply(d("100"), d("200"))
		assertDecimal(t, "130", out.Final)
		assert.True(t, out.ChangeLimit)
		assert.False(t, out.BoundsLimit)
	})
	t.Run("absolute ceiling wins", func(t *testing.T) {
		g := Guard{MaxChangePct: 30, Bounds: Bounds{Floor: d("50"), Ceiling: d("125")}}
		out := g.Apply(d("100"), d("200"))
		assertDecimal(t, "125", out.Final)
		assert.True(t, out.ChangeLimit)
		assert.True(t, out.BoundsLimit)
	})
	t.Run("floor without ceiling", func(t *testing.T) {
		g := Guard{Bounds: Bounds{Floor: d("90")}}
		out := g.Apply(d("100"), d("80"))
		assertDecimal(t, "90", out.Final)
		assert.True(t, out.BoundsLimit)
	})
	t.Run("zero current skips relative limit", func(t *testing.T) {
		out := Guard{}.Apply(d("0"), d("150"))
		assertDecimal(t, "150", out.Final)
		assert.False(t, out.Clamped())
	})
}

func TestBoundsValidate(t *testing.T) {
	assert.NoError(t, Bounds{Floor: d("10"), Ceiling: d("20")}.Validate())
	assert.NoError(t, Bounds{Floor: d("10")}.Validate())
	assert.ErrorIs(t, Bounds{Floor: d("30"), Ceiling: d("20")}.Validate(), ErrInvertedBounds)
}
