// Package lock provides policies.ExecutionLocker implementations.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"rateguard/internal/app/policies"
)

type entry struct {
	token   string
	expires time.Time
}

// Memory is a process-local keyed lock with expiry.
type Memory struct {
	mu    sync.Mutex
	held  map[string]entry
	Clock func() time.Time
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]entry)}
}

func (m *Memory) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

func (m *Memory) TryLock(ctx context.Context, key string, ttl time.Duration) (policies.Unlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if cur, ok := m.held[key]; ok && now.Before(cur.expires) {
		return nil, policies.ErrLocked
	}
	token := uuid.NewString()
	m.held[key] = entry{token: token, expires: now.Add(ttl)}
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if cur, ok := m.held[key]; ok && cur.token == token {
			delete(m.held, key)
		}
		return nil
	}, nil
}

var _ policies.ExecutionLocker = (*Memory)(nil)
