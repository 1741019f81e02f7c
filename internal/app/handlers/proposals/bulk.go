package proposals

import (
	"context"
	"strings"

	"rateguard/internal/app/commands"
	"rateguard/internal/app/dto"
	"rateguard/internal/app/uow"
	"rateguard/internal/app/validation"
	domainproposal "rateguard/internal/domain/proposal"
)

// BulkHandler applies one review decision to many proposals. Either every
// proposal transitions or none does.
type BulkHandler struct {
	Units  uow.UoWFactory
	Events Events
	Now    Clock
}

type bulkApprove struct{ *BulkHandler }

type bulkReject struct{ *BulkHandler }

func (h *BulkHandler) Approve() commands.Handler[BulkApproveCommand, dto.BulkResult] {
	return bulkApprove{h}
}

func (h *BulkHandler) Reject() commands.Handler[BulkRejectCommand, dto.BulkResult] {
	return bulkReject{h}
}

func (h bulkApprove) Handle(ctx context.Context, cmd BulkApproveCommand) (dto.BulkResult, error) {
	name := reviewer(cmd.Reviewer)
	return h.apply(ctx, cmd.ProposalIDs, func(p *domainproposal.Proposal) error {
		return p.Approve(name, h.Now.now())
	})
}

func (h bulkReject) Handle(ctx context.Context, cmd BulkRejectCommand) (dto.BulkResult, error) {
	name := reviewer(cmd.Reviewer)
	return h.apply(ctx, cmd.ProposalIDs, func(p *domainproposal.Proposal) error {
		return p.Reject(name, cmd.Note, h.Now.now())
	})
}

func (h *BulkHandler) apply(ctx context.Context, ids []string, fn func(*domainproposal.Proposal) error) (dto.BulkResult, error) {
	unique, ok := dedupe(ids)
	if !ok {
		return dto.BulkResult{}, validation.Invalid("proposalIds", "required")
	}
	err := uow.Run(ctx, h.Units, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		touched := make([]*domainproposal.Proposal, 0, len(unique))
		for _, id := range unique {
			p, err := load(ctx, unit, id)
			if err != nil {
				return err
			}
			if err := fn(p); err != nil {
				return err
			}
			if err := unit.Proposals().Save(ctx, p); err != nil {
				return err
			}
			touched = append(touched, p)
		}
		for _, p := range touched {
			if err := h.Events.record(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return dto.BulkResult{}, err
	}
	return dto.BulkResult{Success: true, Count: len(unique)}, nil
}

// dedupe keeps the first occurrence of each id. It reports false for an empty
// list or a blank id.
func dedupe(ids []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, false
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, len(out) > 0
}
