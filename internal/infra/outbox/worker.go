package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	appoutbox "rateguard/internal/app/outbox"
)

type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Queue is the claimable side of the outbox.
type Queue interface {
	Claim(ctx context.Context, workerID string) (*EventDocument, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error
}

type Worker struct {
	Store       Queue
	Producer    Producer
	Interval    time.Duration
	TopicPrefix string
	Source      string
	ID          string
	Backoff     []time.Duration
	// MaxPerTick bounds how many records one tick drains.
	MaxPerTick int
	Logger     *slog.Logger
	Now        func() time.Time
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Store == nil || w.Producer == nil {
		return ErrWorkerNotConfigured
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Drain(ctx); err != nil {
				return err
			}
		}
	}
}

// Drain publishes due records until none is left or MaxPerTick is reached and
// returns how many were handed to the producer successfully.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	limit := w.MaxPerTick
	if limit <= 0 {
		limit = 100
	}
	sent := 0
	for i := 0; i < limit; i++ {
		ok, more, err := w.processOnce(ctx)
		if err != nil {
			return sent, err
		}
		if ok {
			sent++
		}
		if !more {
			break
		}
	}
	return sent, nil
}

func (w *Worker) processOnce(ctx context.Context) (sent, more bool, err error) {
	doc, err := w.Store.Claim(ctx, w.workerID())
	if err != nil || doc == nil {
		return false, false, err
	}
	topic := w.topicFor(doc.Name)
	payload, headers, err := w.formatPayload(doc)
	if err != nil {
		w.fail(ctx, doc, err)
		return false, true, nil
	}
	if err := w.Producer.Publish(ctx, topic, doc.Aggregate, payload, headers); err != nil {
		w.fail(ctx, doc, err)
		return false, true, nil
	}
	return true, true, w.Store.MarkSent(ctx, doc.ID)
}

// PublishRecord formats and sends a record straight away, for outboxes that
// deliver on flush instead of through the queue.
func (w *Worker) PublishRecord(ctx context.Context, rec appoutbox.EventRecord) error {
	if w.Producer == nil {
		return ErrWorkerNotConfigured
	}
	doc := &EventDocument{
		ID:         rec.ID,
		Name:       rec.Name,
		Payload:    rec.Payload,
		OccurredAt: rec.OccurredAt,
		Aggregate:  rec.Aggregate,
		Headers:    rec.Headers,
	}
	payload, headers, err := w.formatPayload(doc)
	if err != nil {
		return err
	}
	return w.Producer.Publish(ctx, w.topicFor(doc.Name), doc.Aggregate, payload, headers)
}

func (w *Worker) fail(ctx context.Context, doc *EventDocument, cause error) {
	if w.Logger != nil {
		w.Logger.WarnContext(ctx, "outbox publish failed", "event_id", doc.ID, "name", doc.Name, "attempts", doc.Attempts+1, "error", cause)
	}
	if err := w.Store.MarkFailed(ctx, doc.ID, w.nextRetry(doc.Attempts), cause.Error()); err != nil && w.Logger != nil {
		w.Logger.ErrorContext(ctx, "outbox mark failed", "event_id", doc.ID, "error", err)
	}
}

// formatPayload wraps the record as a structured CloudEvent.
func (w *Worker) formatPayload(doc *EventDocument) ([]byte, map[string]string, error) {
	if doc.Headers == nil {
		doc.Headers = map[string]string{}
	}
	data := map[string]any{}
	if err := json.Unmarshal(doc.Payload, &data); err != nil {
		return nil, nil, err
	}
	evt := map[string]any{
		"specversion":     "1.0",
		"id":              doc.ID,
		"type":            doc.Name + ".v1",
		"source":          w.source(doc),
		"subject":         doc.Aggregate,
		"time":            doc.OccurredAt,
		"datacontenttype": "application/json",
		"data":            data,
	}
	if trace, ok := doc.Headers["traceparent"]; ok {
		evt["traceparent"] = trace
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{
		"content-type": "application/cloudevents+json",
		"ce_id":        doc.ID,
		"ce_type":      doc.Name + ".v1",
	}
	for k, v := range doc.Headers {
		headers[k] = v
	}
	return payload, headers, nil
}

// topicFor maps "proposal.approved" to "<prefix>proposal.events.v1".
func (w *Worker) topicFor(name string) string {
	base := name
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		base = name[:idx]
	}
	topic := base + ".events.v1"
	if w.TopicPrefix != "" {
		topic = w.TopicPrefix + topic
	}
	return topic
}

func (w *Worker) workerID() string {
	if w.ID != "" {
		return w.ID
	}
	return uuid.NewString()
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Worker) nextRetry(attempts int) time.Time {
	if attempts < len(w.Backoff) {
		return w.now().Add(w.Backoff[attempts])
	}
	if len(w.Backoff) > 0 {
		return w.now().Add(w.Backoff[len(w.Backoff)-1])
	}
	return w.now().Add(5 * time.Second)
}

func (w *Worker) source(doc *EventDocument) string {
	if src := doc.Headers["source"]; src != "" {
		return src
	}
	if w.Source != "" {
		return w.Source
	}
	return "app://rateguard"
}

var ErrWorkerNotConfigured = errors.New("outbox: worker missing dependencies")
