package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rateguard/internal/domain/guardrail"
	domainproposal "rateguard/internal/domain/proposal"
)

const samplePolicy = `
max_change_pct: 20
min_confidence: 90
risk:
  low_max_pct: 5
  medium_max_pct: 15
defaults:
  floor: 50
listings:
  lst-1:
    floor: "80"
    ceiling: "400.50"
`

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy([]byte(samplePolicy))
	require.NoError(t, err)

	assert.Equal(t, 20, policy.MaxChangePct)
	assert.Equal(t, 90, policy.MinConfidence)
	assert.Equal(t, domainproposal.RiskPolicy{LowMaxPct: 5, MediumMaxPct: 15}, policy.Risk)

	guard := policy.GuardFor("lst-1")
	assert.Equal(t, 20, guard.MaxChangePct)
	assert.True(t, guard.Bounds.Floor.Equal(decimal.NewFromInt(80)))
	assert.True(t, guard.Bounds.Ceiling.Equal(decimal.RequireFromString("400.50")))

	fallback := policy.GuardFor("unknown")
	assert.True(t, fallback.Bounds.Floor.Equal(decimal.NewFromInt(50)))
	assert.True(t, fallback.Bounds.Ceiling.IsZero())
}

func TestParsePolicyAcceptsJSON(t *testing.T) {
	policy, err := ParsePolicy([]byte(`{"max_change_pct": 15, "listings": {"a": {"floor": "10", "ceiling": "20"}}}`))
	require.NoError(t, err)
	assert.Equal(t, 15, policy.MaxChangePct)
	assert.Contains(t, policy.Listings, "a")
	assert.Equal(t, domainproposal.DefaultRiskPolicy(), policy.Risk)
}

func TestParsePolicyRejectsInvalidInput(t *testing.T) {
	cases := map[string]string{
		"inverted bounds": "listings:\n  a:\n    floor: 300\n    ceiling: 100\n",
		"bad risk":        "risk:\n  low_max_pct: 30\n  medium_max_pct: 10\n",
		"bad pct":         "max_change_pct: 0\n",
		"bad amount":      "defaults:\n  floor: cheap\n",
		"not yaml":        ":::",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestLoadPolicyFallsBackToDefaults(t *testing.T) {
	assert.Equal(t, DefaultPolicy(), LoadPolicy("", "", nil))
	assert.Equal(t, DefaultPolicy(), LoadPolicy("", "max_change_pct: -4", nil))
	assert.Equal(t, DefaultPolicy(), LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"), "", nil))
}

func TestLoadPolicyPrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePolicy), 0o600))

	policy := LoadPolicy(path, "max_change_pct: 40", nil)
	assert.Equal(t, 20, policy.MaxChangePct)
	assert.Equal(t, guardrail.DefaultMaxChangePct, DefaultPolicy().MaxChangePct)
}
