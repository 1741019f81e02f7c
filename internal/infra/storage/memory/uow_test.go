package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "rateguard/internal/app/outbox"
	"rateguard/internal/app/uow"
	domainproposal "rateguard/internal/domain/proposal"
	"rateguard/internal/domain/shared/daterange"
)

func newProposal(t *testing.T, id string) *domainproposal.Proposal {
	t.Helper()
	cr, err := daterange.Parse("2026-01-01", "2026-01-05")
	require.NoError(t, err)
	p, err := domainproposal.New(domainproposal.CreateParams{
		ID:             domainproposal.ID(id),
		ListingID:      "listing-1",
		Range:          cr,
		CurrentPrice:   decimal.NewFromInt(500),
		RequestedPrice: decimal.NewNullDecimal(decimal.NewFromInt(560)),
		Risk:           domainproposal.DefaultRiskPolicy(),
		Now:            time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return p
}

func TestUnitCommitMakesWritesVisible(t *testing.T) {
	ctx := context.Background()
	store := NewProposalStore()
	factory := Factory{Proposals: store}

	unit, err := factory.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)
	p := newProposal(t, "p1")
	require.NoError(t, unit.Proposals().Save(ctx, p))
	assert.Equal(t, int64(1), p.Version)
	assert.Equal(t, 0, store.Len(), "staged writes are invisible before commit")

	staged, err := unit.Proposals().ByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domainproposal.StatusPending, staged.Status)

	require.NoError(t, unit.Commit(ctx))
	assert.Equal(t, 1, store.Len())
}

func TestUnitRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store := NewProposalStore()
	factory := Factory{Proposals: store}

	err := uow.Run(ctx, factory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		require.NoError(t, unit.Proposals().Save(ctx, newProposal(t, "p1")))
		return domainproposal.ErrNotActionable
	})
	require.ErrorIs(t, err, domainproposal.ErrNotActionable)
	assert.Equal(t, 0, store.Len())
}

func TestSaveRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	factory := Factory{Proposals: NewProposalStore()}
	require.NoError(t, uow.Run(ctx, factory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		return unit.Proposals().Save(ctx, newProposal(t, "p1"))
	}))

	first, err := factory.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)
	second, err := factory.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)

	a, err := first.Proposals().ByID(ctx, "p1")
	require.NoError(t, err)
	b, err := second.Proposals().ByID(ctx, "p1")
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, a.Approve("alice", now))
	require.NoError(t, b.Reject("bob", "too high", now))

	require.NoError(t, first.Proposals().Save(ctx, a))
	require.NoError(t, second.Proposals().Save(ctx, b))
	require.NoError(t, first.Commit(ctx))
	require.ErrorIs(t, second.Commit(ctx), domainproposal.ErrConcurrentUpdate)

	var stored *domainproposal.Proposal
	require.NoError(t, uow.Run(ctx, factory, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		stored, err = unit.Proposals().ByID(ctx, "p1")
		return err
	}))
	assert.Equal(t, domainproposal.StatusApproved, stored.Status)
	assert.Equal(t, int64(2), stored.Version)

	stale := stored.Clone()
	stale.Version = 1
	require.ErrorIs(t, uow.Run(ctx, factory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		return unit.Proposals().Save(ctx, stale)
	}), domainproposal.ErrConcurrentUpdate)
}

func TestReadOnlyUnitRefusesWrites(t *testing.T) {
	ctx := context.Background()
	factory := Factory{Proposals: NewProposalStore()}
	unit, err := factory.Begin(ctx, uow.TxOptions{ReadOnly: true})
	require.NoError(t, err)
	require.ErrorIs(t, unit.Proposals().Save(ctx, newProposal(t, "p1")), ErrReadOnlyUnit)
}

func TestListFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	factory := Factory{Proposals: NewProposalStore()}
	require.NoError(t, uow.Run(ctx, factory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		for i, id := range []string{"b", "a", "c"} {
			p := newProposal(t, id)
			p.CreatedAt = p.CreatedAt.Add(time.Duration(i) * time.Minute)
			if id == "c" {
				p.ListingID = "listing-2"
			}
			if err := unit.Proposals().Save(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}))

	var got []*domainproposal.Proposal
	require.NoError(t, uow.Run(ctx, factory, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		got, err = unit.Proposals().List(ctx, domainproposal.ListFilter{ListingID: "listing-1"})
		return err
	}))
	require.Len(t, got, 2)
	assert.Equal(t, domainproposal.ID("b"), got[0].ID)
	assert.Equal(t, domainproposal.ID("a"), got[1].ID)
}

func TestOutboxReleasesRecordsOnlyAfterCommit(t *testing.T) {
	ctx := context.Background()
	box := NewOutbox()
	factory := Factory{Proposals: NewProposalStore(), Outbox: box}

	_ = uow.Run(ctx, factory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		require.NoError(t, box.Add(ctx, appoutbox.EventRecord{ID: "e1", Name: "proposal.approved"}))
		return domainproposal.ErrConcurrentUpdate
	})
	require.NoError(t, box.Flush(ctx))
	assert.Empty(t, box.Delivered())

	require.NoError(t, uow.Run(ctx, factory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		return box.Add(ctx, appoutbox.EventRecord{ID: "e2", Name: "proposal.approved"})
	}))
	require.NoError(t, box.Flush(ctx))
	delivered := box.Delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, "e2", delivered[0].ID)
}

func TestOutboxFlushKeepsRefusedRecords(t *testing.T) {
	ctx := context.Background()
	box := NewOutbox()
	down := true
	box.Sink = func(_ context.Context, rec appoutbox.EventRecord) error {
		if down && rec.Name == "proposal.approved" {
			return errors.New("kafka down")
		}
		return nil
	}
	require.NoError(t, box.Add(ctx, appoutbox.EventRecord{ID: "e1", Name: "proposal.submitted"}))
	require.NoError(t, box.Add(ctx, appoutbox.EventRecord{ID: "e2", Name: "proposal.approved"}))

	require.EqualError(t, box.Flush(ctx), "kafka down")
	assert.Equal(t, 1, box.Pending())
	require.Len(t, box.Delivered(), 1)

	down = false
	require.NoError(t, box.Flush(ctx))
	assert.Zero(t, box.Pending())
	delivered := box.Delivered()
	require.Len(t, delivered, 2)
	assert.Equal(t, "e2", delivered[1].ID)
}
