package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bidding-marketplace/internal/ledger"
	model "bidding-marketplace/internal/models"
	"bidding-marketplace/internal/repository"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_HandleChange(t *testing.T) {
	t.Parallel()

	created := Event{BidID: "bid1", After: testBid(100, 1)}

	tests := []struct {
		name      string
		event     Event
		mockSetup func(emails *MockEmailLookup, dedup *MockDeduper, queue *MockEnqueuer)
		want      Result
	}{
		{
			name:  "created_queues_both_messages",
			event: created,
			mockSetup: func(emails *MockEmailLookup, dedup *MockDeduper, queue *MockEnqueuer) {
				dedup.EXPECT().FirstSeen(gomock.Any(), "bid1:-:v1").Return(true, nil)
				emails.EXPECT().Resolve(gomock.Any(), *created.After).Return("user1@example.com")
				queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, task Task) error {
					require.Equal(t, "bid1:-:v1:bidder", task.Key)
					require.Equal(t, "user1@example.com", task.Message.To)
					return nil
				})
				queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, task Task) error {
					require.Equal(t, "bid1:-:v1:admin", task.Key)
					require.Equal(t, "admin@example.com", task.Message.To)
					return nil
				})
			},
			want: Result{Kind: KindCreated, Enqueued: 2},
		},
		{
			name:      "ignored_change",
			event:     Event{BidID: "bid1"},
			mockSetup: func(emails *MockEmailLookup, dedup *MockDeduper, queue *MockEnqueuer) {},
			want:      Result{Kind: KindIgnored},
		},
		{
			name:  "duplicate_delivery",
			event: created,
			mockSetup: func(emails *MockEmailLookup, dedup *MockDeduper, queue *MockEnqueuer) {
				dedup.EXPECT().FirstSeen(gomock.Any(), "bid1:-:v1").Return(false, nil)
			},
			want: Result{Kind: KindCreated, Duplicate: true},
		},
		{
			name:  "dedup_failure_still_delivers",
			event: created,
			mockSetup: func(emails *MockEmailLookup, dedup *MockDeduper, queue *MockEnqueuer) {
				dedup.EXPECT().FirstSeen(gomock.Any(), gomock.Any()).Return(false, errors.New("redis down"))
				emails.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(TombstoneEmail)
				queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(nil).Times(2)
			},
			want: Result{Kind: KindCreated, Enqueued: 2},
		},
		{
			name:  "one_enqueue_failure_does_not_block_the_other",
			event: Event{BidID: "bid1", Before: testBid(100, 3)},
			mockSetup: func(emails *MockEmailLookup, dedup *MockDeduper, queue *MockEnqueuer) {
				dedup.EXPECT().FirstSeen(gomock.Any(), "bid1:v3:-").Return(true, nil)
				emails.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return("user1@example.com")
				gomock.InOrder(
					queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(ErrQueueClosed),
					queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(nil),
				)
				dedup.EXPECT().Forget(gomock.Any(), "bid1:v3:-").Return(nil)
			},
			want: Result{Kind: KindWithdrawn, Enqueued: 1, Failed: 1},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			emails := NewMockEmailLookup(ctrl)
			dedup := NewMockDeduper(ctrl)
			queue := NewMockEnqueuer(ctrl)
			tc.mockSetup(emails, dedup, queue)

			d := NewDispatcher(newTestComposer(), emails, dedup, queue, nil)
			require.Equal(t, tc.want, d.HandleChange(context.Background(), tc.event))
		})
	}
}

func TestDispatcher_MemoryDedupCollapsesRedelivery(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	emails := NewMockEmailLookup(ctrl)
	emails.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return("user1@example.com").Times(2)
	queue := NewMockEnqueuer(ctrl)
	queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(nil).Times(4)

	dedup, err := NewMemoryDeduper(16, time.Hour)
	require.NoError(t, err)
	d := NewDispatcher(newTestComposer(), emails, dedup, queue, nil)

	created := Event{BidID: "bid1", After: testBid(100, 1)}
	require.False(t, d.HandleChange(context.Background(), created).Duplicate)
	require.True(t, d.HandleChange(context.Background(), created).Duplicate)

	// a later write of the same bid is a new change
	updated := Event{BidID: "bid1", Before: testBid(100, 1), After: testBid(120, 2)}
	require.False(t, d.HandleChange(context.Background(), updated).Duplicate)
}

// Handling the same change twice attempts delivery twice and leaves the ledger untouched.
func TestDispatcher_RepeatedInvocationDoesNotMutateLedger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := ledger.NewMemoryStore()
	repo := repository.NewLedgerRepo(store, "app1")
	require.NoError(t, repo.PutUser(ctx, model.User{UserID: "user1", Email: "user1@example.com"}))
	bid := *testBid(100, 1)
	require.NoError(t, repo.RecordBid(ctx, bid))

	before := ledgerState(t, store, repo.Paths())

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var (
		mu         sync.Mutex
		recipients []string
	)
	sender := NewMockSender(ctrl)
	sender.EXPECT().Deliver(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, to, _, _, _ string) error {
			mu.Lock()
			recipients = append(recipients, to)
			mu.Unlock()
			return nil
		}).Times(4)

	resolver, err := NewEmailResolver(repo, 0)
	require.NoError(t, err)
	queue := NewQueue(sender, fastConfig(1), nil)
	queue.Start(ctx)

	d := NewDispatcher(newTestComposer(), resolver, NopDeduper{}, queue, nil)
	ev := Event{AppID: "app1", BidID: bid.BidID, After: &bid}
	require.Equal(t, 2, d.HandleChange(ctx, ev).Enqueued)
	require.Equal(t, 2, d.HandleChange(ctx, ev).Enqueued)
	queue.Stop()

	require.ElementsMatch(t, []string{"user1@example.com", "user1@example.com", "admin@example.com", "admin@example.com"}, recipients)
	require.Equal(t, before, ledgerState(t, store, repo.Paths()))
}

// ledgerState maps every user and bid document path to its version
func ledgerState(t *testing.T, store ledger.Store, paths repository.Paths) map[string]int64 {
	t.Helper()

	state := map[string]int64{}
	for _, collection := range []string{paths.Users(), paths.Bids(), paths.Opportunities()} {
		docs, err := store.List(context.Background(), collection)
		require.NoError(t, err)
		for _, doc := range docs {
			state[doc.Path] = doc.Version
		}
	}
	return state
}

// A change that could not be queued is processed again when it is redelivered.
func TestDispatcher_RedeliveryAfterQueueFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	emails := NewMockEmailLookup(ctrl)
	emails.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return("user1@example.com").Times(2)
	queue := NewMockEnqueuer(ctrl)
	gomock.InOrder(
		queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(context.DeadlineExceeded).Times(2),
		queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(nil).Times(2),
	)

	dedup, err := NewMemoryDeduper(16, time.Hour)
	require.NoError(t, err)
	d := NewDispatcher(newTestComposer(), emails, dedup, queue, nil)

	created := Event{BidID: "bid1", After: testBid(100, 1)}
	require.Equal(t, Result{Kind: KindCreated, Failed: 2}, d.HandleChange(context.Background(), created))
	require.Equal(t, Result{Kind: KindCreated, Enqueued: 2}, d.HandleChange(context.Background(), created))

	// once queued, the change is a duplicate
	require.True(t, d.HandleChange(context.Background(), created).Duplicate)
}

func TestDispatcher_Publish(t *testing.T) {
	t.Parallel()

	t.Run("ignored_change", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		d := NewDispatcher(newTestComposer(), NewMockEmailLookup(ctrl), nil, NewMockEnqueuer(ctrl), nil)
		require.NoError(t, d.Publish(context.Background(), Event{BidID: "bid1"}))
	})

	t.Run("unqueued_change_is_reported", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		emails := NewMockEmailLookup(ctrl)
		emails.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return("user1@example.com")
		queue := NewMockEnqueuer(ctrl)
		gomock.InOrder(
			queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(nil),
			queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(ErrQueueClosed),
		)

		d := NewDispatcher(newTestComposer(), emails, nil, queue, nil)
		err := d.Publish(context.Background(), Event{BidID: "bid1", After: testBid(100, 1)})
		require.True(t, errors.Is(err, ErrNotQueued))
	})
}
