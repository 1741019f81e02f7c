package proposals

import (
	"context"

	"github.com/shopspring/decimal"

	"rateguard/internal/app/dto"
	"rateguard/internal/app/queries"
	"rateguard/internal/app/uow"
	"rateguard/internal/app/validation"
	"rateguard/internal/domain/calendar"
	"rateguard/internal/domain/guardrail"
	domainproposal "rateguard/internal/domain/proposal"
	"rateguard/internal/domain/shared/daterange"
)

type GetHandler struct {
	Units uow.UoWFactory
}

func (h *GetHandler) Handle(ctx context.Context, q GetProposalQuery) (dto.Proposal, error) {
	var out dto.Proposal
	err := uow.Run(ctx, h.Units, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		p, err := load(ctx, unit, q.ProposalID)
		if err != nil {
			return err
		}
		out = dto.MapProposal(p)
		return nil
	})
	return out, err
}

type ListHandler struct {
	Units uow.UoWFactory
}

func (h *ListHandler) Handle(ctx context.Context, q ListProposalsQuery) ([]dto.Proposal, error) {
	filter := domainproposal.ListFilter{ListingID: q.ListingID, Limit: q.Limit}
	for _, raw := range q.Statuses {
		status, err := domainproposal.ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	var out []dto.Proposal
	err := uow.Run(ctx, h.Units, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		items, err := unit.Proposals().List(ctx, filter)
		if err != nil {
			return err
		}
		out = dto.MapProposals(items)
		return nil
	})
	return out, err
}

type CalendarHandler struct {
	Units uow.UoWFactory
}

func (h *CalendarHandler) Handle(ctx context.Context, q CalendarQuery) (dto.Calendar, error) {
	window, err := daterange.Parse(q.From, q.To)
	if err != nil {
		return dto.Calendar{}, err
	}
	var out dto.Calendar
	err = uow.Run(ctx, h.Units, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		items, err := unit.Proposals().List(ctx, domainproposal.ListFilter{ListingID: q.ListingID, Overlaps: &window})
		if err != nil {
			return err
		}
		out = dto.MapCalendar(q.ListingID, window, calendar.Project(q.ListingID, window, items))
		return nil
	})
	return out, err
}

// ImpactHandler estimates revenue at the proposed price for the proposal's
// nights and, given a market price, where the proposal sits against it.
type ImpactHandler struct {
	Units  uow.UoWFactory
	Guards GuardPolicy
}

func (h *ImpactHandler) Handle(ctx context.Context, q ImpactQuery) (dto.Impact, error) {
	if q.OccupancyPct.IsNegative() || q.OccupancyPct.GreaterThan(decimal.NewFromInt(100)) {
		return dto.Impact{}, validation.Invalid("occupancy", "range")
	}
	if q.MarketPrice.Valid && q.MarketPrice.Decimal.IsNegative() {
		return dto.Impact{}, validation.Invalid("marketPrice", "min")
	}
	var out dto.Impact
	err := uow.Run(ctx, h.Units, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		p, err := load(ctx, unit, q.ProposalID)
		if err != nil {
			return err
		}
		if !p.Actionable() {
			return domainproposal.ErrNotActionable
		}
		proposed := p.ProposedPrice.Decimal
		impact := guardrail.RevenueImpact(p.CurrentPrice, proposed, q.OccupancyPct, p.Range.Days())
		maxPct := guardrail.DefaultMaxChangePct
		if h.Guards != nil {
			if g := h.Guards.GuardFor(p.ListingID); g.MaxChangePct > 0 {
				maxPct = g.MaxChangePct
			}
		}
		out = dto.Impact{
			ProposalID:       string(p.ID),
			BookedDays:       impact.BookedDays,
			BaseRevenue:      impact.BaseRevenue,
			ProjectedRevenue: impact.ProjectedRevenue,
			Impact:           impact.Impact,
			SafeChange:       guardrail.IsSafePriceChange(p.CurrentPrice, proposed, maxPct),
		}
		if q.MarketPrice.Valid {
			out.Position = string(guardrail.PricePosition(proposed, q.MarketPrice.Decimal))
		}
		return nil
	})
	return out, err
}

var (
	_ queries.Handler[GetProposalQuery, dto.Proposal]     = (*GetHandler)(nil)
	_ queries.Handler[ListProposalsQuery, []dto.Proposal] = (*ListHandler)(nil)
	_ queries.Handler[CalendarQuery, dto.Calendar]        = (*CalendarHandler)(nil)
	_ queries.Handler[ImpactQuery, dto.Impact]            = (*ImpactHandler)(nil)
)
