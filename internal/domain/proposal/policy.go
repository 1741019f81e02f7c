package proposal

const DefaultMinConfidence = 80

// ApprovalPolicy decides whether a freshly submitted proposal may skip manual review.
// AutoApproveLowRisk is an explicit operator setting and defaults to off.
type ApprovalPolicy struct {
	AutoApproveLowRisk bool `json:"auto_approve_low_risk" yaml:"auto_approve_low_risk"`
	MinConfidence      int  `json:"min_confidence" yaml:"min_confidence"`
}

type Decision struct {
	Auto   bool
	Reason string
}

func (p ApprovalPolicy) minConfidence() int {
	if p.MinConfidence <= 0 {
		return DefaultMinConfidence
	}
	return p.MinConfidence
}

func (p ApprovalPolicy) Decide(prop *Proposal) Decision {
	switch {
	case !p.AutoApproveLowRisk:
		return Decision{Reason: "auto-approval disabled"}
	case prop == nil || !prop.Actionable():
		return Decision{Reason: "proposal has no proposed price"}
	case !prop.CurrentPrice.IsPositive():
		return Decision{Reason: "no current price to compare against"}
	case prop.Status != StatusPending:
		return Decision{Reason: "proposal is not pending"}
	case prop.Risk != RiskLow:
		return Decision{Reason: "risk is " + string(prop.Risk)}
	case prop.Confidence == nil:
		return Decision{Reason: "no confidence score"}
	case *prop.Confidence < p.minConfidence():
		return Decision{Reason: "confidence below threshold"}
	}
	return Decision{Auto: true, Reason: "low risk, high confidence"}
}
