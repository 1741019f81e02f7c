package proposal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	policy := DefaultRiskPolicy()
	cases := map[int]RiskLevel{
		0:   RiskLow,
		10:  RiskLow,
		-10: RiskLow,
		11:  RiskMedium,
		-25: RiskMedium,
		26:  RiskHigh,
		-80: RiskHigh,
	}
	for pct, want := range cases {
		assert.Equal(t, want, policy.Classify(pct), "pct=%d", pct)
	}

	custom := RiskPolicy{LowMaxPct: 5, MediumMaxPct: 15}
	require.NoError(t, custom.Validate())
	assert.Equal(t, RiskMedium, custom.Classify(10))
	assert.Equal(t, RiskHigh, custom.Classify(16))
}

func TestApprovalPolicyDecide(t *testing.T) {
	lowRisk := func() *Proposal {
		p := newPending(t, "100", "105")
		p.Confidence = intPtr(90)
		return p
	}

	t.Run("disabled by default", func(t *testing.T) {
		d := ApprovalPolicy{}.Decide(lowRisk())
		assert.False(t, d.Auto)
	})

	t.Run("eligible", func(t *testing.T) {
		d := ApprovalPolicy{AutoApproveLowRisk: true}.Decide(lowRisk())
		assert.True(t, d.Auto)
	})

	t.Run("missing confidence", func(t *testing.T) {
		p := lowRisk()
		p.Confidence = nil
		assert.False(t, ApprovalPolicy{AutoApproveLowRisk: true}.Decide(p).Auto)
	})

	t.Run("low confidence", func(t *testing.T) {
		p := lowRisk()
		p.Confidence = intPtr(60)
		assert.False(t, ApprovalPolicy{AutoApproveLowRisk: true}.Decide(p).Auto)
		assert.True(t, ApprovalPolicy{AutoApproveLowRisk: true, MinConfidence: 50}.Decide(p).Auto)
	})

	t.Run("zero current price", func(t *testing.T) {
		p := newPending(t, "0", "10000")
		p.Confidence = intPtr(95)
		d := ApprovalPolicy{AutoApproveLowRisk: true}.Decide(p)
		assert.False(t, d.Auto)
		assert.Equal(t, "no current price to compare against", d.Reason)
	})

	t.Run("medium risk", func(t *testing.T) {
		p := newPending(t, "100", "120")
		p.Confidence = intPtr(99)
		d := ApprovalPolicy{AutoApproveLowRisk: true}.Decide(p)
		assert.False(t, d.Auto)
		assert.Equal(t, "risk is medium", d.Reason)
	})

	t.Run("auto approve marks proposal", func(t *testing.T) {
		p := lowRisk()
		require.NoError(t, p.AutoApprove(now))
		assert.True(t, p.AutoApproved)
		assert.Equal(t, SystemReviewer, p.ReviewedBy)
		assert.Equal(t, StatusApproved, p.Status)
	})
}
