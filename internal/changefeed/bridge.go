// Package changefeed turns committed bid document changes into notification
// events and carries them to the dispatcher, either directly or through Kafka.
package changefeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bidding-marketplace/internal/ledger"
	"bidding-marketplace/internal/models"
	"bidding-marketplace/internal/notification"
	"bidding-marketplace/internal/repository"
	"bidding-marketplace/utils"
)

//go:generate mockgen -source=bridge.go -destination=mock_changefeed.go -package=changefeed

// Sink receives change events. The in-process dispatcher and the Kafka
// publisher both implement it.
type Sink interface {
	Publish(ctx context.Context, ev notification.Event) error
}

// Subscriber is the part of the ledger the bridge listens to
type Subscriber interface {
	SubscribeCollection(ctx context.Context, collection string, onSnapshot func(ledger.Snapshot), onError func(error)) (ledger.Unsubscribe, error)
}

// ErrNotABid is returned by EventOf for documents outside the bids collection
var ErrNotABid = errors.New("document is not a bid")

const (
	defaultPublishAttempts = 3
	defaultRetryBase       = 200 * time.Millisecond
)

// Bridge forwards every change of the bids collection to a Sink.
// The initial snapshot of a subscription is skipped: it replays existing
// documents, not new writes.
type Bridge struct {
	store      Subscriber
	collection string
	sink       Sink
	attempts   int
	retryBase  time.Duration
}

// NewBridge listens to collection, normally repository.Paths.Bids()
func NewBridge(store Subscriber, collection string, sink Sink) *Bridge {
	return &Bridge{
		store:      store,
		collection: collection,
		sink:       sink,
		attempts:   defaultPublishAttempts,
		retryBase:  defaultRetryBase,
	}
}

// Run subscribes and blocks until ctx is cancelled
func (b *Bridge) Run(ctx context.Context) error {
	unsubscribe, err := b.store.SubscribeCollection(ctx, b.collection,
		func(snap ledger.Snapshot) { b.handle(ctx, snap) },
		func(err error) {
			utils.Warn("bid subscription error", map[string]any{"collection": b.collection, "error": err.Error()})
		},
	)
	if err != nil {
		return fmt.Errorf("changefeed: %w - subscribe %s", err, b.collection)
	}
	defer unsubscribe()

	utils.Info("bid change feed started", map[string]any{"collection": b.collection})
	<-ctx.Done()
	utils.Info("bid change feed stopped", map[string]any{"collection": b.collection})
	return nil
}

func (b *Bridge) handle(ctx context.Context, snap ledger.Snapshot) {
	if snap.Initial {
		return
	}
	for _, change := range snap.Changes {
		ev, err := EventOf(change)
		if err != nil {
			utils.Warn("bid change skipped", map[string]any{"path": change.Path, "error": err.Error()})
			continue
		}
		b.publish(ctx, ev)
	}
}

func (b *Bridge) publish(ctx context.Context, ev notification.Event) {
	delay := b.retryBase
	for attempt := 1; ; attempt++ {
		err := b.sink.Publish(ctx, ev)
		if err == nil {
			return
		}
		fields := map[string]any{"bid_id": ev.BidID, "kind": ev.Kind().String(), "attempt": attempt, "error": err.Error()}
		if attempt >= b.attempts {
			utils.Error("bid change not published", fields)
			return
		}
		utils.Warn("bid change publish failed, retrying", fields)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// EventOf decodes a ledger change of a bid document
func EventOf(change ledger.Change) (notification.Event, error) {
	appID, bidID, ok := repository.ParseBidPath(change.Path)
	if !ok {
		return notification.Event{}, fmt.Errorf("changefeed: %w - %s", ErrNotABid, change.Path)
	}

	ev := notification.Event{AppID: appID, BidID: bidID}
	var err error
	if ev.Before, err = decodeSide(change.Before); err != nil {
		return notification.Event{}, fmt.Errorf("changefeed: %w - before image of %s", err, bidID)
	}
	if ev.After, err = decodeSide(change.After); err != nil {
		return notification.Event{}, fmt.Errorf("changefeed: %w - after image of %s", err, bidID)
	}
	return ev, nil
}

func decodeSide(doc *ledger.Document) (*models.Bid, error) {
	if doc == nil {
		return nil, nil
	}
	bid, err := repository.DecodeBid(*doc)
	if err != nil {
		return nil, err
	}
	return &bid, nil
}
