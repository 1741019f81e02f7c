package dto

import (
	"github.com/shopspring/decimal"

	"rateguard/internal/domain/calendar"
	"rateguard/internal/domain/shared/daterange"
)

type CalendarDay struct {
	Date           string              `json:"date"`
	ListingID      string              `json:"listingId"`
	CurrentPrice   decimal.Decimal     `json:"currentPrice"`
	ProposedPrice  decimal.NullDecimal `json:"proposedPrice"`
	ChangePct      *int                `json:"changePct"`
	ProposalID     string              `json:"proposalId,omitempty"`
	ProposalStatus string              `json:"proposalStatus,omitempty"`
	Risk           string              `json:"risk,omitempty"`
}

type Calendar struct {
	ListingID string        `json:"listingId"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Days      []CalendarDay `json:"days"`
}

func MapCalendar(listingID string, window daterange.CalendarRange, days []calendar.Day) Calendar {
	out := Calendar{
		ListingID: listingID,
		From:      daterange.Key(window.Start),
		To:        daterange.Key(window.End),
		Days:      make([]CalendarDay, 0, len(days)),
	}
	for _, d := range days {
		out.Days = append(out.Days, CalendarDay{
			Date:           daterange.Key(d.Date),
			ListingID:      d.ListingID,
			CurrentPrice:   d.CurrentPrice,
			ProposedPrice:  d.ProposedPrice,
			ChangePct:      d.ChangePct,
			ProposalID:     string(d.ProposalID),
			ProposalStatus: string(d.ProposalStatus),
			Risk:           string(d.Risk),
		})
	}
	return out
}
