package memory

import (
	"context"
	"errors"

	appoutbox "rateguard/internal/app/outbox"
	"rateguard/internal/app/uow"
	domainproposal "rateguard/internal/domain/proposal"
)

var (
	// ErrFactoryMisconfigured indicates a missing proposal store.
	ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")
	ErrReadOnlyUnit         = errors.New("memory: write attempted in read-only unit of work")
	ErrUnitClosed           = errors.New("memory: unit of work already finished")
)

// Factory opens units that stage writes and apply them atomically on commit.
type Factory struct {
	Proposals *ProposalStore
	Outbox    *Outbox
}

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.Proposals == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{
		store:    f.Proposals,
		outbox:   f.Outbox,
		readOnly: opts.ReadOnly,
		staged:   make(map[domainproposal.ID]*domainproposal.Proposal),
		base:     make(map[domainproposal.ID]int64),
	}, nil
}

type Unit struct {
	store    *ProposalStore
	outbox   *Outbox
	readOnly bool
	done     bool

	staged map[domainproposal.ID]*domainproposal.Proposal
	base   map[domainproposal.ID]int64
	events []appoutbox.EventRecord
}

func (u *Unit) Proposals() domainproposal.Repository {
	return proposalRepository{unit: u}
}

func (u *Unit) stage(rec appoutbox.EventRecord) {
	u.events = append(u.events, rec)
}

// Commit re-checks every staged version against the store and applies all
// writes together, or none when another unit committed first.
func (u *Unit) Commit(ctx context.Context) error {
	if u.done {
		return ErrUnitClosed
	}
	u.done = true
	if len(u.staged) > 0 {
		u.store.mu.Lock()
		for id, version := range u.base {
			var stored int64
			if p, ok := u.store.items[id]; ok {
				stored = p.Version
			}
			if stored != version {
				u.store.mu.Unlock()
				return domainproposal.ErrConcurrentUpdate
			}
		}
		for id, p := range u.staged {
			u.store.items[id] = p
		}
		u.store.mu.Unlock()
	}
	if u.outbox != nil && len(u.events) > 0 {
		u.outbox.enqueue(u.events...)
	}
	u.events = nil
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.done = true
	u.staged = map[domainproposal.ID]*domainproposal.Proposal{}
	u.events = nil
	return nil
}

var _ uow.UoWFactory = Factory{}
