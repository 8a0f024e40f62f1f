package notification

import (
	"context"
	"errors"
	"fmt"

	"bidding-marketplace/internal/metrics"
	"bidding-marketplace/internal/models"
	"bidding-marketplace/utils"
)

//go:generate mockgen -source=dispatcher.go -destination=mock_dispatcher.go -package=notification

// Sender delivers one email through the outbound provider
type Sender interface {
	Deliver(ctx context.Context, to, subject, html, idempotencyKey string) error
}

// Enqueuer accepts tasks for asynchronous delivery
type Enqueuer interface {
	Enqueue(ctx context.Context, task Task) error
}

// EmailLookup resolves the address of a bidder
type EmailLookup interface {
	Resolve(ctx context.Context, bid models.Bid) string
}

// ErrNotQueued reports a change whose notifications could not all be queued
var ErrNotQueued = errors.New("notification not queued")

// Result describes what the dispatcher did with one change
type Result struct {
	Kind      Kind `json:"-"`
	Duplicate bool `json:"duplicate"`
	Enqueued  int  `json:"enqueued"`
	// Failed counts messages that could not be queued
	Failed int `json:"failed"`
}

// Dispatcher classifies bid changes and queues their notifications.
// It only reads the ledger, through EmailLookup.
type Dispatcher struct {
	composer *Composer
	emails   EmailLookup
	dedup    Deduper
	queue    Enqueuer
	metrics  metrics.Recorder
}

// NewDispatcher wires a Dispatcher. A nil dedup delivers every invocation.
func NewDispatcher(composer *Composer, emails EmailLookup, dedup Deduper, queue Enqueuer, rec metrics.Recorder) *Dispatcher {
	if dedup == nil {
		dedup = NopDeduper{}
	}
	return &Dispatcher{
		composer: composer,
		emails:   emails,
		dedup:    dedup,
		queue:    queue,
		metrics:  metrics.OrNop(rec),
	}
}

// HandleChange processes one change event. Failures are logged and reflected
// in the Result, never returned: the ledger write has already committed.
// A change that was not fully queued is forgotten by the deduper so that a
// redelivery of it is processed again.
func (d *Dispatcher) HandleChange(ctx context.Context, ev Event) Result {
	kind := ev.Kind()
	result := Result{Kind: kind}
	fields := map[string]any{"bid_id": ev.BidID, "kind": kind.String()}

	if kind == KindIgnored {
		utils.Debug("bid change ignored", fields)
		return result
	}

	key := ev.Key()
	first, err := d.dedup.FirstSeen(ctx, key)
	if err != nil {
		// deliver rather than risk dropping the notification
		utils.Warn("dedup check failed", map[string]any{"bid_id": ev.BidID, "kind": kind.String(), "error": err.Error()})
		first = true
	}
	if !first {
		d.metrics.RecordNotificationDuplicate()
		utils.Info("duplicate bid change skipped", fields)
		result.Duplicate = true
		return result
	}

	bidderEmail := d.emails.Resolve(ctx, ev.Current())
	messages, err := d.composer.Compose(ev, bidderEmail)
	if err != nil {
		utils.Error("compose notification failed", map[string]any{"bid_id": ev.BidID, "kind": kind.String(), "error": err.Error()})
		d.forget(ctx, ev, key)
		return result
	}

	for _, msg := range messages {
		task := Task{Key: key + ":" + string(msg.Role), BidID: ev.BidID, Kind: kind, Message: msg}
		if err := d.queue.Enqueue(ctx, task); err != nil {
			d.metrics.RecordNotificationFailed(string(msg.Role))
			utils.Error("notification not queued", map[string]any{
				"bid_id":         ev.BidID,
				"kind":           kind.String(),
				"recipient_role": string(msg.Role),
				"error":          err.Error(),
			})
			result.Failed++
			continue
		}
		result.Enqueued++
	}
	if result.Failed > 0 {
		d.forget(ctx, ev, key)
	}
	return result
}

func (d *Dispatcher) forget(ctx context.Context, ev Event, key string) {
	// the change may already be cancelled; release the key regardless
	if err := d.dedup.Forget(context.WithoutCancel(ctx), key); err != nil {
		utils.Warn("dedup release failed, a redelivery may be skipped", map[string]any{"bid_id": ev.BidID, "error": err.Error()})
	}
}

// Publish lets the dispatcher consume a change feed directly. It fails when
// a notification could not be queued so the feed delivers the change again.
func (d *Dispatcher) Publish(ctx context.Context, ev Event) error {
	result := d.HandleChange(ctx, ev)
	if result.Failed > 0 {
		return fmt.Errorf("dispatcher: %w - %d of %d messages for bid %s", ErrNotQueued, result.Failed, result.Failed+result.Enqueued, ev.BidID)
	}
	return nil
}
