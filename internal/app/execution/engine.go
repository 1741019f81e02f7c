// Package execution pushes approved proposals to the PMS one night at a time and
// verifies the outcome by reading the calendar back.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"rateguard/internal/app/policies"
	"rateguard/internal/app/uow"
	domainproposal "rateguard/internal/domain/proposal"
	"rateguard/internal/domain/shared/daterange"
)

var (
	ErrNotApproved   = errors.New("execution: proposal is not approved")
	ErrNoPrice       = errors.New("execution: proposal has no proposed price")
	ErrInProgress    = errors.New("execution: already in progress")
	ErrNotConfigured = errors.New("execution: engine not configured")
)

type DateMismatch struct {
	Date     string
	Expected decimal.Decimal
	Actual   decimal.NullDecimal
}

// Result reports a single execution. Error is set iff Success is false.
// Status is the proposal status as loaded, empty when it was not found.
type Result struct {
	ProposalID  string
	Status      domainproposal.Status
	Success     bool
	UpdatedDays int
	TotalDays   int
	Verified    bool
	Error       string
	Mismatches  []DateMismatch
	StartedAt   time.Time
	FinishedAt  time.Time
}

func (r Result) Summary() domainproposal.ExecutionSummary {
	return domainproposal.ExecutionSummary{
		At:          r.FinishedAt,
		Success:     r.Success,
		UpdatedDays: r.UpdatedDays,
		TotalDays:   r.TotalDays,
		Verified:    r.Verified,
		Error:       r.Error,
	}
}

// Failure builds an unsuccessful result that never reached the PMS.
func Failure(id domainproposal.ID, err error, at time.Time) Result {
	return Result{ProposalID: string(id), Error: err.Error(), StartedAt: at, FinishedAt: at}
}

type Engine struct {
	Units     uow.UoWFactory
	PMS       policies.PMS
	BatchSize int
	Logger    *slog.Logger
	Now       func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Execute loads the proposal and pushes it. It never changes the proposal status.
// Load failures come back as failed results.
func (e *Engine) Execute(ctx context.Context, id domainproposal.ID) Result {
	if e == nil || e.Units == nil {
		return Failure(id, ErrNotConfigured, time.Now().UTC())
	}
	started := e.now()
	var snapshot *domainproposal.Proposal
	err := uow.Run(ctx, e.Units, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		p, err := unit.Proposals().ByID(ctx, id)
		if err != nil {
			return err
		}
		snapshot = p
		return nil
	})
	if err != nil {
		if errors.Is(err, domainproposal.ErrProposalNotFound) {
			return Failure(id, fmt.Errorf("proposal not found"), started)
		}
		return Failure(id, err, started)
	}
	res := e.run(ctx, snapshot)
	res.Status = snapshot.Status
	return res
}

func (e *Engine) run(ctx context.Context, p *domainproposal.Proposal) Result {
	started := e.now()
	if p == nil {
		return Failure("", fmt.Errorf("proposal not found"), started)
	}
	if e.PMS == nil {
		return Failure(p.ID, ErrNotConfigured, started)
	}
	if p.Status != domainproposal.StatusApproved {
		return Failure(p.ID, fmt.Errorf("proposal is %s, expected approved", p.Status), started)
	}
	if !p.Actionable() {
		return Failure(p.ID, ErrNoPrice, started)
	}

	price := p.ProposedPrice.Decimal
	dates := p.Range.Dates()
	res := Result{ProposalID: string(p.ID), TotalDays: len(dates), StartedAt: started}
	log := e.logger().With("proposal_id", p.ID, "listing_id", p.ListingID)

	updated, pushErr := e.push(ctx, p.ListingID, dates, price)
	res.UpdatedDays = updated
	res.Success = pushErr == nil && updated == res.TotalDays
	if !res.Success {
		if pushErr == nil {
			pushErr = fmt.Errorf("updated %d of %d days", updated, res.TotalDays)
		}
		res.Error = pushErr.Error()
	}

	if updated > 0 {
		res.Verified, res.Mismatches = e.verify(ctx, p.ListingID, p.Range, dates, price)
	}
	res.FinishedAt = e.now()

	switch {
	case !res.Success:
		log.WarnContext(ctx, "pms push failed", "updated_days", res.UpdatedDays, "total_days", res.TotalDays, "error", res.Error)
	case !res.Verified:
		log.WarnContext(ctx, "pms read-back mismatch", "updated_days", res.UpdatedDays, "mismatches", len(res.Mismatches))
	default:
		log.InfoContext(ctx, "pms push verified", "updated_days", res.UpdatedDays)
	}
	return res
}

// push sets the price for every date in batches. A batch is sent concurrently;
// once a batch reports a failure no later batch is started.
func (e *Engine) push(ctx context.Context, listingID string, dates []time.Time, price decimal.Decimal) (int, error) {
	size := e.BatchSize
	if size <= 0 {
		size = 1
	}
	var updated atomic.Int64
	for start := 0; start < len(dates); start += size {
		if err := ctx.Err(); err != nil {
			return int(updated.Load()), err
		}
		end := min(start+size, len(dates))
		var g errgroup.Group
		for _, date := range dates[start:end] {
			g.Go(func() error {
				if err := e.PMS.SetNightlyPrice(ctx, listingID, date, price); err != nil {
					return fmt.Errorf("set price for %s: %w", daterange.Key(date), err)
				}
				updated.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return int(updated.Load()), err
		}
	}
	return int(updated.Load()), nil
}

func (e *Engine) verify(ctx context.Context, listingID string, cr daterange.CalendarRange, dates []time.Time, price decimal.Decimal) (bool, []DateMismatch) {
	stored, err := e.PMS.NightlyPrices(ctx, listingID, cr)
	if err != nil {
		e.logger().WarnContext(ctx, "pms read-back failed", "listing_id", listingID, "error", err)
		return false, nil
	}
	var mismatches []DateMismatch
	for _, date := range dates {
		key := daterange.Key(date)
		actual, ok := stored[key]
		if ok && actual.Equal(price) {
			continue
		}
		m := DateMismatch{Date: key, Expected: price}
		if ok {
			m.Actual = decimal.NewNullDecimal(actual)
		}
		mismatches = append(mismatches, m)
	}
	return len(mismatches) == 0, mismatches
}
