// Package proposals holds the command and query handlers of the proposal
// review pipeline: intake, review, bulk review, execution and read views.
package proposals

import (
	"github.com/shopspring/decimal"

	"rateguard/internal/app/dto"
)

const (
	submitKey      = "proposal.submit"
	approveKey     = "proposal.approve"
	rejectKey      = "proposal.reject"
	executeKey     = "proposal.execute"
	bulkApproveKey = "proposal.bulk_approve"
	bulkRejectKey  = "proposal.bulk_reject"

	getKey      = "proposal.get"
	listKey     = "proposal.list"
	calendarKey = "proposal.calendar"
	impactKey   = "proposal.impact"
)

// SubmitProposalCommand takes a generated proposal into review.
type SubmitProposalCommand struct {
	ProposalID      string              `json:"id" validate:"omitempty,max=64"`
	ListingID       string              `json:"listingId" validate:"required,max=64"`
	StartDate       string              `json:"startDate" validate:"required"`
	EndDate         string              `json:"endDate" validate:"required"`
	CurrentPrice    decimal.NullDecimal `json:"currentPrice" validate:"required"`
	ProposedPrice   decimal.NullDecimal `json:"proposedPrice"`
	Confidence      *int                `json:"confidence" validate:"omitempty,min=0,max=100"`
	Reason          string              `json:"reason" validate:"max=2000"`
	IdempotencyKeyV string              `json:"-"`
}

func (SubmitProposalCommand) Key() string { return submitKey }

func (c SubmitProposalCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (SubmitProposalCommand) ResultPrototype() any { return &dto.SubmitResult{} }

type ApproveProposalCommand struct {
	ProposalID string `json:"id" validate:"required"`
	Reviewer   string `json:"reviewer" validate:"max=128"`
}

func (ApproveProposalCommand) Key() string { return approveKey }

type RejectProposalCommand struct {
	ProposalID string `json:"id" validate:"required"`
	Reviewer   string `json:"reviewer" validate:"max=128"`
	Note       string `json:"note" validate:"max=2000"`
}

func (RejectProposalCommand) Key() string { return rejectKey }

// ExecuteProposalCommand pushes an approved proposal to the PMS. Its handler
// manages its own units of work so that PMS I/O runs outside a transaction.
type ExecuteProposalCommand struct {
	ProposalID string `json:"id" validate:"required"`
}

func (ExecuteProposalCommand) Key() string { return executeKey }

func (ExecuteProposalCommand) SelfManagedTransaction() {}

type BulkApproveCommand struct {
	ProposalIDs []string `json:"proposalIds" validate:"required,min=1,dive,required"`
	Reviewer    string   `json:"reviewer" validate:"max=128"`
}

func (BulkApproveCommand) Key() string { return bulkApproveKey }

type BulkRejectCommand struct {
	ProposalIDs []string `json:"proposalIds" validate:"required,min=1,dive,required"`
	Reviewer    string   `json:"reviewer" validate:"max=128"`
	Note        string   `json:"note" validate:"max=2000"`
}

func (BulkRejectCommand) Key() string { return bulkRejectKey }

type GetProposalQuery struct {
	ProposalID string `json:"id" validate:"required"`
}

func (GetProposalQuery) Key() string { return getKey }

type ListProposalsQuery struct {
	ListingID string   `json:"listingId"`
	Statuses  []string `json:"status" validate:"dive,oneof=pending approved rejected executed"`
	Limit     int      `json:"limit" validate:"min=0,max=500"`
}

func (ListProposalsQuery) Key() string { return listKey }

// CalendarQuery projects a listing's proposals onto calendar rows.
type CalendarQuery struct {
	ListingID string `json:"listingId" validate:"required"`
	From      string `json:"from" validate:"required"`
	To        string `json:"to" validate:"required"`
}

func (CalendarQuery) Key() string { return calendarKey }

// ImpactQuery estimates the revenue effect of a proposal.
type ImpactQuery struct {
	ProposalID   string              `json:"id" validate:"required"`
	OccupancyPct decimal.Decimal     `json:"occupancy"`
	MarketPrice  decimal.NullDecimal `json:"marketPrice"`
}

func (ImpactQuery) Key() string { return impactKey }
