package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"rateguard/internal/app/policies"
)

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a SET NX PX lock shared by every service replica.
type Redis struct {
	Client redis.UniversalClient
	Prefix string
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{Client: client, Prefix: "rateguard:lock:"}
}

func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (policies.Unlock, error) {
	full := r.Prefix + key
	token := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, policies.ErrLocked
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.Client, []string{full}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("lock: release %s: %w", key, err)
		}
		return nil
	}, nil
}

var _ policies.ExecutionLocker = (*Redis)(nil)
