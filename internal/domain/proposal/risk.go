package proposal

import (
	"errors"
	"fmt"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

const (
	DefaultLowMaxPct    = 10
	DefaultMediumMaxPct = 25
)

var ErrInvalidRiskPolicy = errors.New("proposal: invalid risk policy")

// RiskPolicy maps an absolute percentage change onto a risk tier.
type RiskPolicy struct {
	LowMaxPct    int `json:"low_max_pct" yaml:"low_max_pct"`
	MediumMaxPct int `json:"medium_max_pct" yaml:"medium_max_pct"`
}

func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{LowMaxPct: DefaultLowMaxPct, MediumMaxPct: DefaultMediumMaxPct}
}

func (p RiskPolicy) Validate() error {
	if p.LowMaxPct < 0 || p.MediumMaxPct < p.LowMaxPct {
		return fmt.Errorf("%w: low=%d medium=%d", ErrInvalidRiskPolicy, p.LowMaxPct, p.MediumMaxPct)
	}
	return nil
}

func (p RiskPolicy) Classify(changePct int) RiskLevel {
	if changePct < 0 {
		changePct = -changePct
	}
	switch {
	case changePct <= p.LowMaxPct:
		return RiskLow
	case changePct <= p.MediumMaxPct:
		return RiskMedium
	default:
		return RiskHigh
	}
}
