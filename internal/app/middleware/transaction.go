package middleware

import (
	"context"

	"rateguard/internal/app/commands"
	"rateguard/internal/app/uow"
)

type TxOptionsProvider func(cmd commands.Command) uow.TxOptions

// SelfManagedCommand is implemented by commands whose handlers open their own
// units of work, typically because they perform slow external I/O that must not
// run inside a database transaction.
type SelfManagedCommand interface {
	commands.Command
	SelfManagedTransaction()
}

func Transaction(factory uow.UoWFactory, optsProvider TxOptionsProvider) CommandMiddleware {
	if factory == nil {
		panic("middleware: uow factory required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if _, ok := cmd.(SelfManagedCommand); ok {
				return nextFn(ctx, cmd)
			}
			opts := uow.TxOptions{}
			if optsProvider != nil {
				opts = optsProvider(cmd)
			}
			var res any
			err := uow.Run(ctx, factory, opts, func(execCtx context.Context, _ uow.UnitOfWork) error {
				var err error
				res, err = nextFn(execCtx, cmd)
				return err
			})
			if err != nil {
				return nil, err
			}
			return res, nil
		})
	}
}
