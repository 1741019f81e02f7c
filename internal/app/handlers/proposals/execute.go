package proposals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"rateguard/internal/app/commands"
	"rateguard/internal/app/dto"
	"rateguard/internal/app/execution"
	"rateguard/internal/app/policies"
	"rateguard/internal/app/uow"
	domainproposal "rateguard/internal/domain/proposal"
)

const defaultLockTTL = 2 * time.Minute

// ExecuteHandler runs the execution engine for one proposal under a
// per-proposal lock and then applies the outcome: executed on success, back to
// pending on failure.
type ExecuteHandler struct {
	Units    uow.UoWFactory
	Engine   *execution.Engine
	Locker   policies.ExecutionLocker
	LockTTL  time.Duration
	Receipts policies.ReceiptArchive
	Events   Events
	Logger   *slog.Logger
	Now      Clock
}

func lockKey(id string) string {
	return "proposal-execution:" + id
}

func (h *ExecuteHandler) Handle(ctx context.Context, cmd ExecuteProposalCommand) (dto.ExecutionResult, error) {
	id := domainproposal.ID(cmd.ProposalID)
	if h.Engine == nil {
		return dto.ExecutionResult{}, execution.ErrNotConfigured
	}
	if h.Locker != nil {
		ttl := h.LockTTL
		if ttl <= 0 {
			ttl = defaultLockTTL
		}
		unlock, err := h.Locker.TryLock(ctx, lockKey(cmd.ProposalID), ttl)
		if errors.Is(err, policies.ErrLocked) {
			return dto.MapExecutionResult(execution.Failure(id, execution.ErrInProgress, h.Now.now())), nil
		}
		if err != nil {
			return dto.ExecutionResult{}, err
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				h.logger().WarnContext(ctx, "execution unlock failed", "proposal_id", id, "error", err)
			}
		}()
	}

	res := h.Engine.Execute(ctx, id)
	out := dto.MapExecutionResult(res)
	if res.Status != domainproposal.StatusApproved {
		return out, nil
	}

	// Finalization must happen even when the caller gave up waiting.
	finalCtx := context.WithoutCancel(ctx)
	final, err := h.finalize(finalCtx, id, res)
	if err != nil {
		h.logger().ErrorContext(ctx, "execution finalize failed", "proposal_id", id, "success", res.Success, "error", err)
		return out, fmt.Errorf("execution: finalize %s: %w", id, err)
	}
	out.Status = string(final.Status)
	out.ReceiptKey = h.archive(finalCtx, final, out)
	return out, nil
}

func (h *ExecuteHandler) finalize(ctx context.Context, id domainproposal.ID, res execution.Result) (*domainproposal.Proposal, error) {
	var final *domainproposal.Proposal
	err := uow.Run(ctx, h.Units, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		p, err := unit.Proposals().ByID(ctx, id)
		if err != nil {
			return err
		}
		summary := res.Summary()
		now := h.Now.now()
		if res.Success {
			err = p.MarkExecuted(summary, now)
		} else {
			err = p.Revert(summary, now)
		}
		if err != nil {
			return err
		}
		if err := unit.Proposals().Save(ctx, p); err != nil {
			return err
		}
		if err := h.Events.record(ctx, p); err != nil {
			return err
		}
		final = p
		return nil
	})
	return final, err
}

func (h *ExecuteHandler) archive(ctx context.Context, p *domainproposal.Proposal, out dto.ExecutionResult) string {
	if h.Receipts == nil {
		return ""
	}
	payload, err := json.Marshal(out)
	if err != nil {
		h.logger().WarnContext(ctx, "execution receipt encode failed", "proposal_id", p.ID, "error", err)
		return ""
	}
	key, err := h.Receipts.Store(ctx, policies.Receipt{
		ProposalID:  string(p.ID),
		ListingID:   p.ListingID,
		Attempt:     p.ExecutionAttempts,
		Payload:     payload,
		ContentType: "application/json",
		At:          out.FinishedAt,
	})
	if err != nil {
		h.logger().WarnContext(ctx, "execution receipt upload failed", "proposal_id", p.ID, "error", err)
		return ""
	}
	return key
}

func (h *ExecuteHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ commands.Handler[ExecuteProposalCommand, dto.ExecutionResult] = (*ExecuteHandler)(nil)
