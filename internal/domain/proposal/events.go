package proposal

import (
	"time"

	"github.com/shopspring/decimal"

	"rateguard/internal/domain/shared/daterange"
)

type Submitted struct {
	ProposalID ID
	ListingID  string
	Range      daterange.CalendarRange
	ChangePct  int
	Risk       RiskLevel
	Clamped    bool
	At         time.Time
}

func (e Submitted) EventName() string     { return "proposal.submitted" }
func (e Submitted) AggregateID() string   { return string(e.ProposalID) }
func (e Submitted) OccurredAt() time.Time { return e.At }

type Approved struct {
	ProposalID ID
	ListingID  string
	Reviewer   string
	Auto       bool
	At         time.Time
}

func (e Approved) EventName() string     { return "proposal.approved" }
func (e Approved) AggregateID() string   { return string(e.ProposalID) }
func (e Approved) OccurredAt() time.Time { return e.At }

type Rejected struct {
	ProposalID ID
	ListingID  string
	Reviewer   string
	Note       string
	At         time.Time
}

func (e Rejected) EventName() string     { return "proposal.rejected" }
func (e Rejected) AggregateID() string   { return string(e.ProposalID) }
func (e Rejected) OccurredAt() time.Time { return e.At }

type Executed struct {
	ProposalID  ID
	ListingID   string
	Range       daterange.CalendarRange
	Price       decimal.Decimal
	UpdatedDays int
	Verified    bool
	At          time.Time
}

func (e Executed) EventName() string     { return "proposal.executed" }
func (e Executed) AggregateID() string   { return string(e.ProposalID) }
func (e Executed) OccurredAt() time.Time { return e.At }

type Reverted struct {
	ProposalID  ID
	ListingID   string
	UpdatedDays int
	TotalDays   int
	Error       string
	At          time.Time
}

func (e Reverted) EventName() string     { return "proposal.reverted" }
func (e Reverted) AggregateID() string   { return string(e.ProposalID) }
func (e Reverted) OccurredAt() time.Time { return e.At }
