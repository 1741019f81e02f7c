package proposals

import (
	"context"
	"errors"
	"strings"
	"time"

	"rateguard/internal/app/outbox"
	"rateguard/internal/app/uow"
	"rateguard/internal/app/validation"
	"rateguard/internal/domain/guardrail"
	domainproposal "rateguard/internal/domain/proposal"
)

const defaultReviewer = "reviewer"

// GuardPolicy supplies the price guard configured for a listing.
type GuardPolicy interface {
	GuardFor(listingID string) guardrail.Guard
}

// Clock returns the current time; nil means time.Now in UTC.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// Events records aggregate events into an outbox.
type Events struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
}

func (e Events) record(ctx context.Context, p *domainproposal.Proposal) error {
	evs := p.PullEvents()
	if e.Outbox == nil {
		return nil
	}
	return outbox.RecordDomainEvents(ctx, e.Outbox, e.Encoder, evs)
}

func reviewer(name string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return defaultReviewer
}

func load(ctx context.Context, unit uow.UnitOfWork, id string) (*domainproposal.Proposal, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domainproposal.ErrIDRequired
	}
	return unit.Proposals().ByID(ctx, domainproposal.ID(strings.TrimSpace(id)))
}

// IsValidation reports whether err was caused by bad input rather than state.
func IsValidation(err error) bool {
	return errors.Is(err, validation.ErrValidation) || domainproposal.IsValidation(err)
}
