package proposals

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"rateguard/internal/app/commands"
	"rateguard/internal/app/dto"
	"rateguard/internal/app/middleware"
	"rateguard/internal/app/uow"
	domainproposal "rateguard/internal/domain/proposal"
	"rateguard/internal/domain/shared/daterange"
)

// SubmitHandler bounds the requested price, classifies the proposal and stores
// it as pending, approving it right away when the approval policy allows.
type SubmitHandler struct {
	Units    uow.UoWFactory
	Guards   GuardPolicy
	Risk     domainproposal.RiskPolicy
	Approval domainproposal.ApprovalPolicy
	Events   Events
	Logger   *slog.Logger
	Now      Clock
	NewID    func() string
}

func (h *SubmitHandler) Handle(ctx context.Context, cmd SubmitProposalCommand) (dto.SubmitResult, error) {
	cr, err := daterange.Parse(cmd.StartDate, cmd.EndDate)
	if err != nil {
		return dto.SubmitResult{}, err
	}
	id := cmd.ProposalID
	if id == "" {
		id = h.newID()
	}
	risk := h.Risk
	if risk == (domainproposal.RiskPolicy{}) {
		risk = domainproposal.DefaultRiskPolicy()
	}
	params := domainproposal.CreateParams{
		ID:             domainproposal.ID(id),
		ListingID:      cmd.ListingID,
		Range:          cr,
		CurrentPrice:   cmd.CurrentPrice.Decimal,
		RequestedPrice: cmd.ProposedPrice,
		Confidence:     cmd.Confidence,
		Reason:         cmd.Reason,
		Risk:           risk,
		Now:            h.Now.now(),
	}
	if h.Guards != nil {
		params.Guard = h.Guards.GuardFor(cmd.ListingID)
	}

	var result dto.SubmitResult
	err = uow.Run(ctx, h.Units, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		p, err := domainproposal.New(params)
		if err != nil {
			return err
		}
		decision := h.Approval.Decide(p)
		if decision.Auto {
			if err := p.AutoApprove(params.Now); err != nil {
				return err
			}
		}
		if err := unit.Proposals().Save(ctx, p); err != nil {
			return err
		}
		if err := h.Events.record(ctx, p); err != nil {
			return err
		}
		h.logger().InfoContext(ctx, "proposal submitted",
			"proposal_id", p.ID,
			"listing_id", p.ListingID,
			"change_pct", p.ChangePct,
			"risk", p.Risk,
			"clamped", p.Clamped,
			"auto_approved", decision.Auto,
			"decision", decision.Reason,
		)
		result = dto.SubmitResult{Proposal: dto.MapProposal(p), Decision: decision.Reason}
		return nil
	})
	if err != nil {
		return dto.SubmitResult{}, err
	}
	return result, nil
}

func (h *SubmitHandler) newID() string {
	if h.NewID != nil {
		return h.NewID()
	}
	return uuid.NewString()
}

func (h *SubmitHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ commands.Handler[SubmitProposalCommand, dto.SubmitResult] = (*SubmitHandler)(nil)
var _ middleware.IdempotentCommand = SubmitProposalCommand{}
