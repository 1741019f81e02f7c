// Package proposal models a nightly-rate change proposal and its review lifecycle:
// pending → approved | rejected, approved → executed, and approved → pending when
// pushing the price to the PMS fails.
package proposal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rateguard/internal/domain/guardrail"
	"rateguard/internal/domain/shared/daterange"
	"rateguard/internal/domain/shared/events"
	"rateguard/internal/domain/shared/money"
)

var (
	ErrProposalNotFound  = errors.New("proposal: not found")
	ErrInvalidTransition = errors.New("proposal: invalid status transition")
	ErrNotActionable     = errors.New("proposal: proposed price missing")
	ErrConcurrentUpdate  = errors.New("proposal: concurrent update detected")

	ErrIDRequired      = errors.New("proposal: id required")
	ErrListingRequired = errors.New("proposal: listing id required")
	ErrNegativePrice   = errors.New("proposal: prices cannot be negative")
	ErrConfidenceRange = errors.New("proposal: confidence must be within 0..100")
	ErrUnknownStatus   = errors.New("proposal: unknown status")
)

type ID string

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExecuted Status = "executed"
)

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusApproved, StatusRejected, StatusExecuted:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
}

func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusExecuted
}

// TransitionError reports a refused status change together with the status the
// proposal actually holds, so callers can explain the refusal.
type TransitionError struct {
	ID      ID
	Current Status
	Target  Status
}

func (e *TransitionError) Error() string {
	if e.Current == e.Target {
		return fmt.Sprintf("proposal %s: already %s", e.ID, e.Current)
	}
	return fmt.Sprintf("proposal %s: cannot move from %s to %s", e.ID, e.Current, e.Target)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ExecutionSummary is the last PMS push outcome stored on the proposal.
type ExecutionSummary struct {
	At          time.Time
	Success     bool
	UpdatedDays int
	TotalDays   int
	Verified    bool
	Error       string
}

type Proposal struct {
	ID             ID
	ListingID      string
	Range          daterange.CalendarRange
	CurrentPrice   decimal.Decimal
	ProposedPrice  decimal.NullDecimal
	RequestedPrice decimal.NullDecimal
	Clamped        bool
	ChangePct      int
	Risk           RiskLevel
	Confidence     *int
	Reason         string
	Status         Status
	AutoApproved   bool
	ReviewedBy     string
	ReviewedAt     time.Time
	RejectionNote  string

	ExecutionAttempts int
	LastExecution     *ExecutionSummary
	ExecutedAt        time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
	events.EventRecorder
}

type ListFilter struct {
	ListingID string
	Statuses  []Status
	Overlaps  *daterange.CalendarRange
	Limit     int
}

func (f ListFilter) Matches(p *Proposal) bool {
	if f.ListingID != "" && p.ListingID != f.ListingID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if p.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Overlaps != nil && !p.Range.Overlaps(*f.Overlaps) {
		return false
	}
	return true
}

// Repository persists proposals. Save is a compare-and-set on Version and returns
// ErrConcurrentUpdate when the stored version moved on; on success Version is bumped.
type Repository interface {
	ByID(ctx context.Context, id ID) (*Proposal, error)
	Save(ctx context.Context, p *Proposal) error
	List(ctx context.Context, filter ListFilter) ([]*Proposal, error)
}

type CreateParams struct {
	ID             ID
	ListingID      string
	Range          daterange.CalendarRange
	CurrentPrice   decimal.Decimal
	RequestedPrice decimal.NullDecimal
	Confidence     *int
	Reason         string
	Guard          guardrail.Guard
	Risk           RiskPolicy
	Now            time.Time
}

// New validates the input, bounds the requested price with the guard and derives
// ChangePct and Risk. The result is pending.
func New(params CreateParams) (*Proposal, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, ErrIDRequired
	}
	if strings.TrimSpace(params.ListingID) == "" {
		return nil, ErrListingRequired
	}
	if err := params.Range.Validate(); err != nil {
		return nil, err
	}
	if !money.NonNegative(params.CurrentPrice) || (params.RequestedPrice.Valid && params.RequestedPrice.Decimal.IsNegative()) {
		return nil, ErrNegativePrice
	}
	if c := params.Confidence; c != nil && (*c < 0 || *c > 100) {
		return nil, ErrConfidenceRange
	}
	if err := params.Risk.Validate(); err != nil {
		return nil, err
	}

	now := params.Now.UTC()
	p := &Proposal{
		ID:             params.ID,
		ListingID:      strings.TrimSpace(params.ListingID),
		Range:          params.Range,
		CurrentPrice:   money.Cents(params.CurrentPrice),
		RequestedPrice: params.RequestedPrice,
		Confidence:     params.Confidence,
		Reason:         strings.TrimSpace(params.Reason),
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if params.RequestedPrice.Valid {
		outcome := params.Guard.Apply(p.CurrentPrice, params.RequestedPrice.Decimal)
		p.ProposedPrice = decimal.NewNullDecimal(money.Cents(outcome.Final))
		p.Clamped = outcome.Clamped()
	}
	p.derive(params.Risk)
	p.Record(Submitted{ProposalID: p.ID, ListingID: p.ListingID, Range: p.Range, ChangePct: p.ChangePct, Risk: p.Risk, Clamped: p.Clamped, At: now})
	return p, nil
}

func (p *Proposal) derive(policy RiskPolicy) {
	if !p.ProposedPrice.Valid {
		p.ChangePct = 0
		p.Risk = policy.Classify(0)
		return
	}
	p.ChangePct = guardrail.PercentageChange(p.CurrentPrice, p.ProposedPrice.Decimal)
	p.Risk = policy.Classify(p.ChangePct)
}

func (p *Proposal) Actionable() bool {
	return p.ProposedPrice.Valid
}

func (p *Proposal) guard(target Status) error {
	if p.Status != StatusPending {
		return &TransitionError{ID: p.ID, Current: p.Status, Target: target}
	}
	return nil
}

func (p *Proposal) Approve(reviewer string, now time.Time) error {
	if err := p.guard(StatusApproved); err != nil {
		return err
	}
	if !p.Actionable() {
		return ErrNotActionable
	}
	p.Status = StatusApproved
	p.ReviewedBy = reviewer
	p.ReviewedAt = now.UTC()
	p.UpdatedAt = p.ReviewedAt
	p.Record(Approved{ProposalID: p.ID, ListingID: p.ListingID, Reviewer: reviewer, Auto: p.AutoApproved, At: p.UpdatedAt})
	return nil
}

// AutoApprove approves on behalf of the system reviewer.
func (p *Proposal) AutoApprove(now time.Time) error {
	p.AutoApproved = true
	if err := p.Approve(SystemReviewer, now); err != nil {
		p.AutoApproved = false
		return err
	}
	return nil
}

// SystemReviewer is recorded as the reviewer of auto-approved proposals.
const SystemReviewer = "system:auto-approval"

func (p *Proposal) Reject(reviewer, note string, now time.Time) error {
	if err := p.guard(StatusRejected); err != nil {
		return err
	}
	p.Status = StatusRejected
	p.ReviewedBy = reviewer
	p.RejectionNote = strings.TrimSpace(note)
	p.ReviewedAt = now.UTC()
	p.UpdatedAt = p.ReviewedAt
	p.Record(Rejected{ProposalID: p.ID, ListingID: p.ListingID, Reviewer: reviewer, Note: p.RejectionNote, At: p.UpdatedAt})
	return nil
}

func (p *Proposal) requireApproved(target Status) error {
	if p.Status != StatusApproved {
		return &TransitionError{ID: p.ID, Current: p.Status, Target: target}
	}
	return nil
}

// MarkExecuted finalizes a successful PMS push.
func (p *Proposal) MarkExecuted(summary ExecutionSummary, now time.Time) error {
	if err := p.requireApproved(StatusExecuted); err != nil {
		return err
	}
	p.recordAttempt(summary)
	p.Status = StatusExecuted
	p.ExecutedAt = now.UTC()
	p.UpdatedAt = p.ExecutedAt
	p.Record(Executed{ProposalID: p.ID, ListingID: p.ListingID, Range: p.Range, Price: p.ProposedPrice.Decimal, UpdatedDays: summary.UpdatedDays, Verified: summary.Verified, At: p.UpdatedAt})
	return nil
}

// Revert returns an approved proposal to pending after a failed PMS push.
// Prices are left untouched.
func (p *Proposal) Revert(summary ExecutionSummary, now time.Time) error {
	if err := p.requireApproved(StatusPending); err != nil {
		return err
	}
	p.recordAttempt(summary)
	p.Status = StatusPending
	p.AutoApproved = false
	p.UpdatedAt = now.UTC()
	p.Record(Reverted{ProposalID: p.ID, ListingID: p.ListingID, UpdatedDays: summary.UpdatedDays, TotalDays: summary.TotalDays, Error: summary.Error, At: p.UpdatedAt})
	return nil
}

func (p *Proposal) recordAttempt(summary ExecutionSummary) {
	s := summary
	p.ExecutionAttempts++
	p.LastExecution = &s
}

// Clone returns a detached copy without pending events.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	c := *p
	c.EventRecorder = events.EventRecorder{}
	if p.Confidence != nil {
		v := *p.Confidence
		c.Confidence = &v
	}
	if p.LastExecution != nil {
		s := *p.LastExecution
		c.LastExecution = &s
	}
	return &c
}

// IsValidation reports whether err stems from invalid proposal input.
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrIDRequired),
		errors.Is(err, ErrListingRequired),
		errors.Is(err, ErrNegativePrice),
		errors.Is(err, ErrConfidenceRange),
		errors.Is(err, ErrUnknownStatus),
		errors.Is(err, ErrNotActionable),
		errors.Is(err, ErrInvalidRiskPolicy),
		errors.Is(err, daterange.ErrInvalidRange),
		errors.Is(err, daterange.ErrRangeTooLong),
		errors.Is(err, daterange.ErrInvalidDate),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrNegativeAmount):
		return true
	}
	return false
}
