package pricing

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"rateguard/internal/domain/guardrail"
	domainproposal "rateguard/internal/domain/proposal"
	"rateguard/internal/domain/shared/money"
)

// BoundsSpec is a nightly-price window as written in the policy file.
type BoundsSpec struct {
	Floor   string `yaml:"floor" json:"floor"`
	Ceiling string `yaml:"ceiling" json:"ceiling"`
}

type policyFile struct {
	MaxChangePct  *int                       `yaml:"max_change_pct"`
	MinConfidence *int                       `yaml:"min_confidence"`
	Risk          *domainproposal.RiskPolicy `yaml:"risk"`
	Defaults      *BoundsSpec                `yaml:"defaults"`
	Listings      map[string]BoundsSpec      `yaml:"listings"`
}

// Policy is the operator-tunable guardrail configuration.
type Policy struct {
	MaxChangePct  int
	MinConfidence int
	Risk          domainproposal.RiskPolicy
	Defaults      guardrail.Bounds
	Listings      map[string]guardrail.Bounds
}

func DefaultPolicy() Policy {
	return Policy{
		MaxChangePct:  guardrail.DefaultMaxChangePct,
		MinConfidence: domainproposal.DefaultMinConfidence,
		Risk:          domainproposal.DefaultRiskPolicy(),
		Listings:      map[string]guardrail.Bounds{},
	}
}

// GuardFor returns the guard for a listing, falling back to the default bounds.
func (p Policy) GuardFor(listingID string) guardrail.Guard {
	bounds, ok := p.Listings[strings.TrimSpace(listingID)]
	if !ok {
		bounds = p.Defaults
	}
	return guardrail.Guard{MaxChangePct: p.MaxChangePct, Bounds: bounds}
}

func (p Policy) Approval(autoApprove bool) domainproposal.ApprovalPolicy {
	return domainproposal.ApprovalPolicy{AutoApproveLowRisk: autoApprove, MinConfidence: p.MinConfidence}
}

// ParsePolicy decodes a YAML (or JSON) policy document. Omitted sections keep defaults.
func ParsePolicy(raw []byte) (Policy, error) {
	policy := DefaultPolicy()
	var doc policyFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return policy, fmt.Errorf("pricing: decode policy: %w", err)
	}
	if doc.MaxChangePct != nil {
		if *doc.MaxChangePct <= 0 || *doc.MaxChangePct > 100 {
			return policy, fmt.Errorf("pricing: max_change_pct %d out of range", *doc.MaxChangePct)
		}
		policy.MaxChangePct = *doc.MaxChangePct
	}
	if doc.MinConfidence != nil {
		if *doc.MinConfidence < 0 || *doc.MinConfidence > 100 {
			return policy, fmt.Errorf("pricing: min_confidence %d out of range", *doc.MinConfidence)
		}
		policy.MinConfidence = *doc.MinConfidence
	}
	if doc.Risk != nil {
		if err := doc.Risk.Validate(); err != nil {
			return policy, err
		}
		policy.Risk = *doc.Risk
	}
	if doc.Defaults != nil {
		b, err := doc.Defaults.bounds()
		if err != nil {
			return policy, fmt.Errorf("pricing: defaults: %w", err)
		}
		policy.Defaults = b
	}
	for listingID, entry := range doc.Listings {
		key := strings.TrimSpace(listingID)
		if key == "" {
			continue
		}
		b, err := entry.bounds()
		if err != nil {
			return policy, fmt.Errorf("pricing: listing %s: %w", key, err)
		}
		policy.Listings[key] = b
	}
	return policy, nil
}

func (s BoundsSpec) bounds() (guardrail.Bounds, error) {
	var b guardrail.Bounds
	var err error
	if b.Floor, err = parseOptional(s.Floor); err != nil {
		return b, err
	}
	if b.Ceiling, err = parseOptional(s.Ceiling); err != nil {
		return b, err
	}
	return b, b.Validate()
}

func parseOptional(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	return money.Parse(raw)
}

// LoadPolicy reads the policy from path, or from inline when path is empty.
// Invalid input is logged and replaced by the defaults.
func LoadPolicy(path, inline string, logger *slog.Logger) Policy {
	raw := []byte(inline)
	source := "PRICING_POLICY"
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if logger != nil {
				logger.Warn("pricing policy file unreadable, using defaults", "path", path, "error", err)
			}
			return DefaultPolicy()
		}
		raw = data
		source = path
	}
	if strings.TrimSpace(string(raw)) == "" {
		return DefaultPolicy()
	}
	policy, err := ParsePolicy(raw)
	if err != nil {
		if logger != nil {
			logger.Warn("invalid pricing policy, using defaults", "source", source, "error", err)
		}
		return DefaultPolicy()
	}
	return policy
}
