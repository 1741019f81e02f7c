package uow

import (
	"context"
	"errors"
)

var ErrUnitOfWorkMissing = errors.New("uow: unit of work missing from context")

type ctxKey struct{}

func ContextWithUnitOfWork(ctx context.Context, unit UnitOfWork) context.Context {
	return context.WithValue(ctx, ctxKey{}, unit)
}

func FromContext(ctx context.Context) (UnitOfWork, bool) {
	val := ctx.Value(ctxKey{})
	if val == nil {
		return nil, false
	}
	unit, ok := val.(UnitOfWork)
	return unit, ok
}

// contextInjector is implemented by units that carry a driver session in context.
type contextInjector interface {
	InjectContext(context.Context) context.Context
}

// Attach stores unit in ctx, letting it inject driver state first.
func Attach(ctx context.Context, unit UnitOfWork) context.Context {
	if injector, ok := unit.(contextInjector); ok {
		ctx = injector.InjectContext(ctx)
	}
	return ContextWithUnitOfWork(ctx, unit)
}

// Run executes fn inside the unit found in ctx, or inside a fresh one that is
// committed when fn succeeds and rolled back otherwise.
func Run(ctx context.Context, factory UoWFactory, opts TxOptions, fn func(ctx context.Context, unit UnitOfWork) error) error {
	if unit, ok := FromContext(ctx); ok {
		return fn(ctx, unit)
	}
	if factory == nil {
		return ErrUnitOfWorkMissing
	}
	unit, err := factory.Begin(ctx, opts)
	if err != nil {
		return err
	}
	execCtx := Attach(ctx, unit)
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(execCtx)
		}
	}()
	if err := fn(execCtx, unit); err != nil {
		return err
	}
	if opts.ReadOnly {
		return nil
	}
	if err := unit.Commit(execCtx); err != nil {
		return err
	}
	committed = true
	return nil
}
