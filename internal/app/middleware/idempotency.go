package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"rateguard/internal/app/commands"
)

// IdempotentCommand must be implemented by commands that want replay-safe handling.
type IdempotentCommand interface {
	commands.Command
	IdempotencyKey() string
	ResultPrototype() any // pointer to the handler result type
}

type IdempotencyRecord struct {
	Key        string
	Command    string
	Payload    []byte
	OccurredAt time.Time
	ExpiresAt  time.Time
}

func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	Save(ctx context.Context, rec IdempotencyRecord) error
}

type ResultCodec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

type JSONResultCodec struct{}

func (JSONResultCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONResultCodec) Decode(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

type IdempotencyOptions struct {
	Codec ResultCodec
	TTL   time.Duration
	Now   func() time.Time
}

var errMissingPrototype = errors.New("middleware: idempotent command requires result prototype")

// Idempotency replays the stored result of a successful command carrying a
// previously seen key. Failed commands are not recorded, so a client may retry
// them with the same key.
func Idempotency(store IdempotencyStore, opts IdempotencyOptions) CommandMiddleware {
	if store == nil {
		panic("middleware: idempotency store required")
	}
	codec := opts.Codec
	if codec == nil {
		codec = JSONResultCodec{}
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			idCmd, ok := cmd.(IdempotentCommand)
			if !ok || idCmd.IdempotencyKey() == "" {
				return nextFn(ctx, cmd)
			}
			key := cmd.Key() + ":" + idCmd.IdempotencyKey()
			rec, found, err := store.Get(ctx, key)
			if err != nil {
				return nil, err
			}
			if found && !rec.Expired(now()) {
				proto := idCmd.ResultPrototype()
				if proto == nil {
					return nil, errMissingPrototype
				}
				if err := codec.Decode(rec.Payload, proto); err != nil {
					return nil, err
				}
				return derefPrototype(proto), nil
			}
			result, err := nextFn(ctx, cmd)
			if err != nil {
				return nil, err
			}
			record := IdempotencyRecord{
				Key:        key,
				Command:    cmd.Key(),
				OccurredAt: now(),
			}
			if opts.TTL > 0 {
				record.ExpiresAt = record.OccurredAt.Add(opts.TTL)
			}
			if result != nil {
				payload, encErr := codec.Encode(result)
				if encErr != nil {
					return nil, encErr
				}
				record.Payload = payload
			}
			if err := store.Save(ctx, record); err != nil {
				return nil, err
			}
			return result, nil
		})
	}
}

func derefPrototype(proto any) any {
	rv := reflect.ValueOf(proto)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		return rv.Elem().Interface()
	}
	return proto
}
