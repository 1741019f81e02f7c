// Package calendar projects proposals onto per-date calendar rows. Rows are a
// read view only; the proposal remains the single source of truth.
package calendar

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"rateguard/internal/domain/proposal"
	"rateguard/internal/domain/shared/daterange"
)

// Day is what a calendar row shows for one listing date.
type Day struct {
	Date           time.Time
	ListingID      string
	CurrentPrice   decimal.Decimal
	ProposedPrice  decimal.NullDecimal
	ChangePct      *int
	ProposalID     proposal.ID
	ProposalStatus proposal.Status
	Risk           proposal.RiskLevel
}

// Project builds one row per date in window that at least one proposal covers.
// When several proposals cover a date the most recently updated one wins.
func Project(listingID string, window daterange.CalendarRange, proposals []*proposal.Proposal) []Day {
	candidates := make([]*proposal.Proposal, 0, len(proposals))
	for _, p := range proposals {
		if p == nil || p.ListingID != listingID || !p.Range.Overlaps(window) {
			continue
		}
		candidates = append(candidates, p)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	days := make([]Day, 0, window.Days())
	for _, date := range window.Dates() {
		for _, p := range candidates {
			if !p.Range.Contains(date) {
				continue
			}
			days = append(days, row(date, p))
			break
		}
	}
	return days
}

func row(date time.Time, p *proposal.Proposal) Day {
	d := Day{
		Date:           date,
		ListingID:      p.ListingID,
		CurrentPrice:   p.CurrentPrice,
		ProposalID:     p.ID,
		ProposalStatus: p.Status,
		Risk:           p.Risk,
	}
	switch p.Status {
	case proposal.StatusApproved, proposal.StatusExecuted:
		if p.ProposedPrice.Valid {
			d.CurrentPrice = p.ProposedPrice.Decimal
		}
	case proposal.StatusPending:
		d.ProposedPrice = p.ProposedPrice
		if p.ProposedPrice.Valid {
			pct := p.ChangePct
			d.ChangePct = &pct
		}
	}
	return d
}
