package policies

import (
	"context"
	"errors"
	"time"
)

var ErrLocked = errors.New("policies: lock held by another owner")

// Unlock releases a lock obtained from ExecutionLocker.
type Unlock func(ctx context.Context) error

// ExecutionLocker serializes PMS pushes per proposal.
type ExecutionLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}
