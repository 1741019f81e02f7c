package uow

import (
	"context"

	domainproposal "rateguard/internal/domain/proposal"
)

// UnitOfWork groups repository writes so that they become visible together or not at all.
type UnitOfWork interface {
	Proposals() domainproposal.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

type TxOptions struct {
	ReadOnly bool
}
