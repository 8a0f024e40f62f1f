package bidding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bidding-marketplace/internal/biddingerrors"
	"bidding-marketplace/internal/ledger"
	model "bidding-marketplace/internal/models"
	"bidding-marketplace/internal/repository"

	"github.com/stretchr/testify/require"
)

// clock is a settable time source shared by a scenario
type clock struct {
	nanos atomic.Int64
}

func newClock(t time.Time) *clock {
	c := &clock{}
	c.Set(t)
	return c
}

func (c *clock) Set(t time.Time) { c.nanos.Store(t.UnixNano()) }
func (c *clock) Now() time.Time { return time.Unix(0, c.nanos.Load()).UTC() }

// newMarketplace seeds one opportunity closing at closing and two bidders A and B
func newMarketplace(t *testing.T, closing time.Time, opts ...Option) (*BiddingService, *repository.LedgerRepo) {
	t.Helper()

	ctx := context.Background()
	repo := repository.NewLedgerRepo(ledger.NewMemoryStore(), "test-app")

	require.NoError(t, repo.CreateOpportunity(ctx, model.Opportunity{
		OpportunityID: "opp1",
		Title:         "Office cleaning contract",
		Description:   "Weekly cleaning of two floors",
		ClosingDate:   &closing,
		CreatedAt:     testNow.Add(-time.Hour),
	}))
	for _, id := range []string{"A", "B"} {
		require.NoError(t, repo.PutUser(ctx, model.User{UserID: id, Email: id + "@example.com", CreatedAt: testNow}))
	}

	return NewBiddingService(repo, opts...), repo
}

func aggregateOf(t *testing.T, repo *repository.LedgerRepo) model.Aggregate {
	t.Helper()

	opp, err := repo.GetOpportunity(context.Background(), "opp1")
	require.NoError(t, err)
	return opp.Aggregate()
}

// A bids 100, B is refused at 90, B takes the lead at 150 and then withdraws.
func TestScenario_LeaderWithdrawal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, repo := newMarketplace(t, testNow.Add(time.Hour), WithClock(newClock(testNow).Now))

	_, err := service.PlaceBid(ctx, "opp1", "A", dec(100))
	require.NoError(t, err)
	require.True(t, aggregateOf(t, repo).Equal(model.Aggregate{CurrentHighestBid: dec(100), HighestBidderID: "A"}))

	_, err = service.PlaceBid(ctx, "opp1", "B", dec(90))
	require.True(t, errors.Is(err, biddingerrors.ErrBidTooLow))
	var rejection *biddingerrors.RejectionError
	require.True(t, errors.As(err, &rejection))
	require.True(t, rejection.Minimum.Equal(dec(100)))

	bBid, err := service.PlaceBid(ctx, "opp1", "B", dec(150))
	require.NoError(t, err)
	require.True(t, aggregateOf(t, repo).Equal(model.Aggregate{CurrentHighestBid: dec(150), HighestBidderID: "B"}))

	require.NoError(t, service.WithdrawBid(ctx, bBid.BidID, "B"))
	require.True(t, aggregateOf(t, repo).Equal(model.Aggregate{CurrentHighestBid: dec(100), HighestBidderID: "A"}))

	bids, err := service.GetBidsForOpportunity(ctx, "opp1")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	require.Equal(t, "A", bids[0].BidderID)
}

// A bid one second after the closing date is refused and leaves the aggregate untouched.
func TestScenario_BidAfterClose(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	closing := testNow.Add(time.Hour)
	clk := newClock(testNow)
	service, repo := newMarketplace(t, closing, WithClock(clk.Now))

	_, err := service.PlaceBid(ctx, "opp1", "A", dec(100))
	require.NoError(t, err)

	clk.Set(closing.Add(time.Second))
	_, err = service.PlaceBid(ctx, "opp1", "B", dec(1000))
	require.True(t, errors.Is(err, biddingerrors.ErrAuctionClosed))
	require.True(t, aggregateOf(t, repo).Equal(model.Aggregate{CurrentHighestBid: dec(100), HighestBidderID: "A"}))

	// exactly at the closing instant the auction is already closed
	clk.Set(closing)
	_, err = service.PlaceBid(ctx, "opp1", "B", dec(1000))
	require.True(t, errors.Is(err, biddingerrors.ErrAuctionClosed))
}

func TestScenario_UpdateAndWithdraw(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	closing := testNow.Add(time.Hour)
	clk := newClock(testNow)
	service, repo := newMarketplace(t, closing, WithClock(clk.Now))

	aBid, err := service.PlaceBid(ctx, "opp1", "A", dec(100))
	require.NoError(t, err)
	bBid, err := service.PlaceBid(ctx, "opp1", "B", dec(150))
	require.NoError(t, err)

	_, err = service.UpdateBid(ctx, aBid.BidID, "A", dec(120))
	require.True(t, errors.Is(err, biddingerrors.ErrBidTooLow))

	_, err = service.UpdateBid(ctx, aBid.BidID, "B", dec(500))
	require.True(t, errors.Is(err, biddingerrors.ErrNotBidOwner))

	clk.Set(testNow.Add(time.Minute))
	updated, err := service.UpdateBid(ctx, aBid.BidID, "A", dec(200))
	require.NoError(t, err)
	require.True(t, updated.Amount.Equal(dec(200)))
	require.True(t, aggregateOf(t, repo).Equal(model.Aggregate{CurrentHighestBid: dec(200), HighestBidderID: "A"}))

	_, err = service.UpdateBid(ctx, aBid.BidID, "A", dec(200))
	require.True(t, errors.Is(err, biddingerrors.ErrNotAnIncrease))

	// withdrawing a trailing bid leaves the leader in place
	require.NoError(t, service.WithdrawBid(ctx, bBid.BidID, "B"))
	require.True(t, aggregateOf(t, repo).Equal(model.Aggregate{CurrentHighestBid: dec(200), HighestBidderID: "A"}))

	require.NoError(t, service.WithdrawBid(ctx, aBid.BidID, "A"))
	agg := aggregateOf(t, repo)
	require.True(t, agg.CurrentHighestBid.IsZero())
	require.Empty(t, agg.HighestBidderID)

	again, err := service.PlaceBid(ctx, "opp1", "B", dec(10))
	require.NoError(t, err)

	clk.Set(closing)
	err = service.WithdrawBid(ctx, again.BidID, "B")
	require.True(t, errors.Is(err, biddingerrors.ErrAuctionClosed))
}

func TestScenario_RecomputeHealsDrift(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, repo := newMarketplace(t, testNow.Add(time.Hour), WithClock(newClock(testNow).Now))

	_, err := service.PlaceBid(ctx, "opp1", "A", dec(100))
	require.NoError(t, err)

	opp, err := repo.GetOpportunity(ctx, "opp1")
	require.NoError(t, err)
	_, err = repo.SwapAggregate(ctx, "opp1", opp.Version, model.Aggregate{CurrentHighestBid: dec(999), HighestBidderID: "B"})
	require.NoError(t, err)

	agg, changed, err := service.Recompute(ctx, "opp1")
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, agg.Equal(model.Aggregate{CurrentHighestBid: dec(100), HighestBidderID: "A"}))
	require.True(t, aggregateOf(t, repo).Equal(agg))

	_, changed, err = service.Recompute(ctx, "opp1")
	require.NoError(t, err)
	require.False(t, changed)
}

// Concurrent bidders never leave the aggregate below the highest recorded bid.
func TestScenario_ConcurrentBidders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, repo := newMarketplace(t, testNow.Add(time.Hour), WithClock(newClock(testNow).Now), WithMaxCASAttempts(100))

	const bidders = 40
	for i := 0; i < bidders; i++ {
		require.NoError(t, repo.PutUser(ctx, model.User{UserID: fmt.Sprintf("u%d", i), Email: fmt.Sprintf("u%d@example.com", i)}))
	}

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
	)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_, err := service.PlaceBid(ctx, "opp1", fmt.Sprintf("u%d", i), dec(int64(10+i)))
			if err == nil {
				accepted.Add(1)
				return
			}
			if !errors.Is(err, biddingerrors.ErrBidTooLow) && !errors.Is(err, biddingerrors.ErrAggregateConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	bids, err := repo.GetBidsByOpportunity(ctx, "opp1")
	require.NoError(t, err)
	require.Len(t, bids, int(accepted.Load()))
	require.NotEmpty(t, bids)
	require.True(t, aggregateOf(t, repo).Equal(model.AggregateOf(bids)))
}

// interleavingRepo runs onRecord between a bid write and the aggregate update
// that follows it.
type interleavingRepo struct {
	*repository.LedgerRepo
	before   bool
	onRecord func()
}

func (r *interleavingRepo) RecordBid(ctx context.Context, bid model.Bid) error {
	if r.before && r.onRecord != nil {
		r.onRecord()
	}
	if err := r.LedgerRepo.RecordBid(ctx, bid); err != nil {
		return err
	}
	if !r.before && r.onRecord != nil {
		r.onRecord()
	}
	return nil
}

// A recompute racing a bid write never lowers the aggregate below an active bid.
func TestScenario_RecomputeDuringBidWrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		before bool
	}{
		{name: "recompute_before_bid_is_stored", before: true},
		{name: "recompute_after_bid_is_stored", before: false},
	}

	for _, tc := range tests {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			background, repo := newMarketplace(t, testNow.Add(time.Hour), WithClock(newClock(testNow).Now))
			require.NoError(t, repo.PutUser(ctx, model.User{UserID: "C", Email: "C@example.com"}))

			_, err := background.PlaceBid(ctx, "opp1", "A", dec(100))
			require.NoError(t, err)

			racing := &interleavingRepo{LedgerRepo: repo, before: tc.before}
			service := NewBiddingService(racing, WithClock(newClock(testNow).Now))
			racing.onRecord = func() {
				_, _, err := background.Recompute(ctx, "opp1")
				require.NoError(t, err)
			}

			_, err = service.PlaceBid(ctx, "opp1", "B", dec(150))
			require.NoError(t, err)
			require.True(t, aggregateOf(t, repo).Equal(model.Aggregate{CurrentHighestBid: dec(150), HighestBidderID: "B"}))

			racing.onRecord = nil
			_, err = service.PlaceBid(ctx, "opp1", "C", dec(120))
			require.True(t, errors.Is(err, biddingerrors.ErrBidTooLow))
			require.True(t, aggregateOf(t, repo).Equal(model.Aggregate{CurrentHighestBid: dec(150), HighestBidderID: "B"}))
		})
	}
}

// A bid outbid between its write and the aggregate update is removed again.
func TestScenario_OutbidDuringBidWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	background, repo := newMarketplace(t, testNow.Add(time.Hour), WithClock(newClock(testNow).Now))
	require.NoError(t, repo.PutUser(ctx, model.User{UserID: "C", Email: "C@example.com"}))

	racing := &interleavingRepo{LedgerRepo: repo}
	service := NewBiddingService(racing, WithClock(newClock(testNow).Now))
	racing.onRecord = func() {
		_, err := background.PlaceBid(ctx, "opp1", "C", dec(200))
		require.NoError(t, err)
	}

	_, err := service.PlaceBid(ctx, "opp1", "B", dec(150))
	require.True(t, errors.Is(err, biddingerrors.ErrBidTooLow))

	bids, err := repo.GetBidsByOpportunity(ctx, "opp1")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	require.Equal(t, "C", bids[0].BidderID)
	require.True(t, aggregateOf(t, repo).Equal(model.Aggregate{CurrentHighestBid: dec(200), HighestBidderID: "C"}))
}
