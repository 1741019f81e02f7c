package proposals

import (
	"context"

	"rateguard/internal/app/commands"
	"rateguard/internal/app/dto"
	"rateguard/internal/app/uow"
	domainproposal "rateguard/internal/domain/proposal"
)

type ApproveHandler struct {
	Units  uow.UoWFactory
	Events Events
	Now    Clock
}

func (h *ApproveHandler) Handle(ctx context.Context, cmd ApproveProposalCommand) (dto.Proposal, error) {
	return transition(ctx, h.Units, h.Events, cmd.ProposalID, func(p *domainproposal.Proposal) error {
		return p.Approve(reviewer(cmd.Reviewer), h.Now.now())
	})
}

type RejectHandler struct {
	Units  uow.UoWFactory
	Events Events
	Now    Clock
}

func (h *RejectHandler) Handle(ctx context.Context, cmd RejectProposalCommand) (dto.Proposal, error) {
	return transition(ctx, h.Units, h.Events, cmd.ProposalID, func(p *domainproposal.Proposal) error {
		return p.Reject(reviewer(cmd.Reviewer), cmd.Note, h.Now.now())
	})
}

func transition(ctx context.Context, units uow.UoWFactory, events Events, id string, apply func(*domainproposal.Proposal) error) (dto.Proposal, error) {
	var out dto.Proposal
	err := uow.Run(ctx, units, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		p, err := load(ctx, unit, id)
		if err != nil {
			return err
		}
		if err := apply(p); err != nil {
			return err
		}
		if err := unit.Proposals().Save(ctx, p); err != nil {
			return err
		}
		if err := events.record(ctx, p); err != nil {
			return err
		}
		out = dto.MapProposal(p)
		return nil
	})
	return out, err
}

var _ commands.Handler[ApproveProposalCommand, dto.Proposal] = (*ApproveHandler)(nil)
var _ commands.Handler[RejectProposalCommand, dto.Proposal] = (*RejectHandler)(nil)
