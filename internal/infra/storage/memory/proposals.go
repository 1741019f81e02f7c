package memory

import (
	"context"
	"sort"
	"sync"

	domainproposal "rateguard/internal/domain/proposal"
)

// ProposalStore holds committed proposals. Writes reach it only through Unit.Commit.
type ProposalStore struct {
	mu    sync.RWMutex
	items map[domainproposal.ID]*domainproposal.Proposal
}

func NewProposalStore() *ProposalStore {
	return &ProposalStore{items: make(map[domainproposal.ID]*domainproposal.Proposal)}
}

func (s *ProposalStore) get(id domainproposal.ID) (*domainproposal.Proposal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[id]
	return p, ok
}

func (s *ProposalStore) snapshot() []*domainproposal.Proposal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domainproposal.Proposal, 0, len(s.items))
	for _, p := range s.items {
		out = append(out, p)
	}
	return out
}

// Len reports the number of committed proposals.
func (s *ProposalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

type proposalRepository struct {
	unit *Unit
}

func (r proposalRepository) ByID(ctx context.Context, id domainproposal.ID) (*domainproposal.Proposal, error) {
	if p, ok := r.unit.staged[id]; ok {
		return p.Clone(), nil
	}
	p, ok := r.unit.store.get(id)
	if !ok {
		return nil, domainproposal.ErrProposalNotFound
	}
	return p.Clone(), nil
}

func (r proposalRepository) Save(ctx context.Context, p *domainproposal.Proposal) error {
	if r.unit.readOnly {
		return ErrReadOnlyUnit
	}
	var current int64
	staged, isStaged := r.unit.staged[p.ID]
	committed, isCommitted := r.unit.store.get(p.ID)
	switch {
	case isStaged:
		current = staged.Version
	case isCommitted:
		current = committed.Version
	}
	if current != p.Version {
		return domainproposal.ErrConcurrentUpdate
	}
	if _, seen := r.unit.base[p.ID]; !seen {
		if isCommitted {
			r.unit.base[p.ID] = committed.Version
		} else {
			r.unit.base[p.ID] = 0
		}
	}
	p.Version++
	r.unit.staged[p.ID] = p.Clone()
	return nil
}

func (r proposalRepository) List(ctx context.Context, filter domainproposal.ListFilter) ([]*domainproposal.Proposal, error) {
	merged := make(map[domainproposal.ID]*domainproposal.Proposal)
	for _, p := range r.unit.store.snapshot() {
		merged[p.ID] = p
	}
	for id, p := range r.unit.staged {
		merged[id] = p
	}
	out := make([]*domainproposal.Proposal, 0, len(merged))
	for _, p := range merged {
		if filter.Matches(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

var _ domainproposal.Repository = proposalRepository{}
