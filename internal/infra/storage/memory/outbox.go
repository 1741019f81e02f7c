package memory

import (
	"context"
	"errors"
	"sync"

	appoutbox "rateguard/internal/app/outbox"
	"rateguard/internal/app/uow"
)

// Sink receives flushed records, e.g. a Kafka publisher or a log writer.
type Sink func(ctx context.Context, record appoutbox.EventRecord) error

// Outbox stages records in the active memory unit and releases them on commit.
// Flush hands released records to Sink and keeps them for inspection; records
// the Sink refuses go back to the front of the queue.
type Outbox struct {
	mu        sync.Mutex
	Sink      Sink
	pending   []appoutbox.EventRecord
	delivered []appoutbox.EventRecord
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	if unit, ok := uow.FromContext(ctx); ok {
		if mem, ok := unit.(*Unit); ok && mem.outbox == o {
			mem.stage(record)
			return nil
		}
	}
	o.enqueue(record)
	return nil
}

func (o *Outbox) enqueue(records ...appoutbox.EventRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, records...)
}

func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	batch := o.pending
	o.pending = nil
	o.mu.Unlock()

	var (
		errs   []error
		failed []appoutbox.EventRecord
	)
	for _, rec := range batch {
		if o.Sink != nil {
			if err := o.Sink(ctx, rec); err != nil {
				errs = append(errs, err)
				failed = append(failed, rec)
				continue
			}
		}
		o.mu.Lock()
		o.delivered = append(o.delivered, rec)
		o.mu.Unlock()
	}
	if len(failed) > 0 {
		o.mu.Lock()
		o.pending = append(failed, o.pending...)
		o.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Pending reports how many records wait for the next flush.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Delivered returns a copy of every flushed record in order.
func (o *Outbox) Delivered() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]appoutbox.EventRecord, len(o.delivered))
	copy(out, o.delivered)
	return out
}

var _ appoutbox.Outbox = (*Outbox)(nil)
