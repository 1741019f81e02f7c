package dto

import (
	"time"

	"github.com/shopspring/decimal"

	domainproposal "rateguard/internal/domain/proposal"
	"rateguard/internal/domain/shared/daterange"
)

type ExecutionSummary struct {
	At          time.Time `json:"at"`
	Success     bool      `json:"success"`
	UpdatedDays int       `json:"updatedDays"`
	TotalDays   int       `json:"totalDays"`
	Verified    bool      `json:"verified"`
	Error       string    `json:"error,omitempty"`
}

type Proposal struct {
	ID                string              `json:"id"`
	ListingID         string              `json:"listingId"`
	StartDate         string              `json:"startDate"`
	EndDate           string              `json:"endDate"`
	Nights            int                 `json:"nights"`
	CurrentPrice      decimal.Decimal     `json:"currentPrice"`
	ProposedPrice     decimal.NullDecimal `json:"proposedPrice"`
	RequestedPrice    decimal.NullDecimal `json:"requestedPrice"`
	Clamped           bool                `json:"clamped"`
	ChangePct         int                 `json:"changePct"`
	Risk              string              `json:"risk"`
	Confidence        *int                `json:"confidence,omitempty"`
	Reason            string              `json:"reason,omitempty"`
	Status            string              `json:"status"`
	AutoApproved      bool                `json:"autoApproved"`
	ReviewedBy        string              `json:"reviewedBy,omitempty"`
	ReviewedAt        *time.Time          `json:"reviewedAt,omitempty"`
	RejectionNote     string              `json:"rejectionNote,omitempty"`
	ExecutionAttempts int                 `json:"executionAttempts"`
	LastExecution     *ExecutionSummary   `json:"lastExecution,omitempty"`
	ExecutedAt        *time.Time          `json:"executedAt,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
	UpdatedAt         time.Time           `json:"updatedAt"`
	Version           int64               `json:"version"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t
	return &v
}

func MapProposal(p *domainproposal.Proposal) Proposal {
	if p == nil {
		return Proposal{}
	}
	out := Proposal{
		ID:                string(p.ID),
		ListingID:         p.ListingID,
		StartDate:         daterange.Key(p.Range.Start),
		EndDate:           daterange.Key(p.Range.End),
		Nights:            p.Range.Days(),
		CurrentPrice:      p.CurrentPrice,
		ProposedPrice:     p.ProposedPrice,
		RequestedPrice:    p.RequestedPrice,
		Clamped:           p.Clamped,
		ChangePct:         p.ChangePct,
		Risk:              string(p.Risk),
		Confidence:        p.Confidence,
		Reason:            p.Reason,
		Status:            string(p.Status),
		AutoApproved:      p.AutoApproved,
		ReviewedBy:        p.ReviewedBy,
		ReviewedAt:        optionalTime(p.ReviewedAt),
		RejectionNote:     p.RejectionNote,
		ExecutionAttempts: p.ExecutionAttempts,
		ExecutedAt:        optionalTime(p.ExecutedAt),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
		Version:           p.Version,
	}
	if last := p.LastExecution; last != nil {
		out.LastExecution = &ExecutionSummary{
			At:          last.At,
			Success:     last.Success,
			UpdatedDays: last.UpdatedDays,
			TotalDays:   last.TotalDays,
			Verified:    last.Verified,
			Error:       last.Error,
		}
	}
	return out
}

func MapProposals(items []*domainproposal.Proposal) []Proposal {
	out := make([]Proposal, 0, len(items))
	for _, p := range items {
		out = append(out, MapProposal(p))
	}
	return out
}

// SubmitResult is returned by proposal intake.
type SubmitResult struct {
	Proposal Proposal `json:"proposal"`
	Decision string   `json:"decision"`
}

type BulkResult struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

type Impact struct {
	ProposalID       string          `json:"proposalId"`
	BookedDays       int             `json:"bookedDays"`
	BaseRevenue      decimal.Decimal `json:"baseRevenue"`
	ProjectedRevenue decimal.Decimal `json:"projectedRevenue"`
	Impact           decimal.Decimal `json:"impact"`
	Position         string          `json:"position,omitempty"`
	SafeChange       bool            `json:"safeChange"`
}
