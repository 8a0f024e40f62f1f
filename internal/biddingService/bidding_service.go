package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bidding-marketplace/internal/biddingerrors"
	"bidding-marketplace/internal/metrics"
	"bidding-marketplace/internal/models"
	"bidding-marketplace/internal/repository"
	"bidding-marketplace/internal/validator"
	"bidding-marketplace/utils"

	"github.com/shopspring/decimal"
)

// DefaultMaxCASAttempts bounds the compare-and-swap loop on an opportunity aggregate
const DefaultMaxCASAttempts = 5

// BiddingService defines the business logic for marketplace bidding.
// It keeps the aggregate of each opportunity equal to the highest active bid.
type BiddingService struct {
	repo        repository.MarketplaceDB
	now         func() time.Time
	maxAttempts int
	metrics     metrics.Recorder
}

// Option customizes a BiddingService
type Option func(*BiddingService)

// WithClock overrides the time source used for admission checks and timestamps
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) { s.now = now }
}

// WithMaxCASAttempts overrides DefaultMaxCASAttempts
func WithMaxCASAttempts(n int) Option {
	return func(s *BiddingService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithMetrics attaches a metrics recorder
func WithMetrics(r metrics.Recorder) Option {
	return func(s *BiddingService) { s.metrics = metrics.OrNop(r) }
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.MarketplaceDB, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:        repo,
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: DefaultMaxCASAttempts,
		metrics:     metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceBid validates and records a new bid on an opportunity.
// The bid record is written first; the aggregate then follows it with a
// compare-and-swap. A bid that loses the race on the aggregate is removed again.
func (s *BiddingService) PlaceBid(ctx context.Context, opportunityID, bidderID string, amount decimal.Decimal) (models.Bid, error) {
	if opportunityID == "" || bidderID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - missing opportunityID or bidderID", biddingerrors.ErrInvalidBid)
	}

	bidder, err := s.repo.GetUser(ctx, bidderID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to load bidder %s: %w", bidderID, err)
	}

	now := s.now()
	admit := func(opp models.Opportunity) error {
		return validator.Admit(opp, amount, now)
	}

	opp, err := s.admitted(ctx, opportunityID, admit)
	if err != nil {
		return models.Bid{}, err
	}

	bid := models.Bid{
		BidID:            utils.GenerateID(),
		OpportunityID:    opportunityID,
		BidderID:         bidderID,
		Amount:           amount,
		Timestamp:        now,
		OpportunityTitle: opp.Title,
		BidderEmail:      bidder.Email,
	}

	if err := s.repo.RecordBid(ctx, bid); err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to record bid for opportunity %s by user %s: %w", opportunityID, bidderID, err)
	}

	if err := s.settle(ctx, opp, bidderID, amount, admit); err != nil {
		s.retract(ctx, opportunityID, bid.BidID, func() error {
			return s.repo.DeleteBid(ctx, bid.BidID)
		})
		return models.Bid{}, err
	}

	s.metrics.RecordBidAdmitted("place")
	utils.Info("bid placed", map[string]any{
		"bid_id":         bid.BidID,
		"opportunity_id": opportunityID,
		"bidder_id":      bidderID,
		"amount":         amount.String(),
	})
	return bid, nil
}

// UpdateBid raises the amount of a bid owned by bidderID
func (s *BiddingService) UpdateBid(ctx context.Context, bidID, bidderID string, newAmount decimal.Decimal) (models.Bid, error) {
	bid, err := s.ownedBid(ctx, bidID, bidderID)
	if err != nil {
		return models.Bid{}, err
	}

	now := s.now()
	admit := func(opp models.Opportunity) error {
		return validator.AdmitUpdate(opp, bid.Amount, newAmount, now)
	}

	opp, err := s.admitted(ctx, bid.OpportunityID, admit)
	if err != nil {
		return models.Bid{}, err
	}

	if err := s.repo.UpdateBidAmount(ctx, bidID, newAmount, now); err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to update bid %s: %w", bidID, err)
	}

	if err := s.settle(ctx, opp, bidderID, newAmount, admit); err != nil {
		s.retract(ctx, bid.OpportunityID, bidID, func() error {
			return s.repo.UpdateBidAmount(ctx, bidID, bid.Amount, bid.Timestamp)
		})
		return models.Bid{}, err
	}

	previous := bid.Amount
	bid.Amount = newAmount
	bid.Timestamp = now

	s.metrics.RecordBidAdmitted("update")
	utils.Info("bid updated", map[string]any{
		"bid_id":          bidID,
		"opportunity_id":  bid.OpportunityID,
		"bidder_id":       bidderID,
		"previous_amount": previous.String(),
		"amount":          newAmount.String(),
	})
	return bid, nil
}

// WithdrawBid removes a bid owned by bidderID while its auction is open.
// Withdrawing the leading bid rebuilds the aggregate from the remaining bids.
func (s *BiddingService) WithdrawBid(ctx context.Context, bidID, bidderID string) error {
	bid, err := s.ownedBid(ctx, bidID, bidderID)
	if err != nil {
		return err
	}

	opp, err := s.repo.GetOpportunity(ctx, bid.OpportunityID)
	if err != nil {
		return fmt.Errorf("service: failed to load opportunity %s: %w", bid.OpportunityID, err)
	}
	if err := validator.AdmitWithdrawal(opp, s.now()); err != nil {
		s.metrics.RecordBidRejected(reasonOf(err))
		return fmt.Errorf("service: %w", err)
	}

	if err := s.repo.DeleteBid(ctx, bidID); err != nil {
		return fmt.Errorf("service: failed to withdraw bid %s: %w", bidID, err)
	}

	utils.Info("bid withdrawn", map[string]any{
		"bid_id":         bidID,
		"opportunity_id": bid.OpportunityID,
		"bidder_id":      bidderID,
	})

	if bid.Amount.GreaterThanOrEqual(opp.CurrentHighestBid) || opp.HighestBidderID == bidderID {
		if _, _, err := s.Recompute(ctx, bid.OpportunityID); err != nil {
			// the bid is gone; reconciliation heals the aggregate
			utils.Error("recompute after withdrawal failed", map[string]any{
				"opportunity_id": bid.OpportunityID,
				"error":          err.Error(),
			})
		}
	}
	return nil
}

// Recompute rebuilds the aggregate of an opportunity from its active bids.
// It reports whether the stored aggregate had to change.
func (s *BiddingService) Recompute(ctx context.Context, opportunityID string) (models.Aggregate, bool, error) {
	s.metrics.RecordRecompute()

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		opp, err := s.repo.GetOpportunity(ctx, opportunityID)
		if err != nil {
			return models.Aggregate{}, false, fmt.Errorf("service: failed to load opportunity %s: %w", opportunityID, err)
		}

		bids, err := s.repo.GetBidsByOpportunity(ctx, opportunityID)
		if err != nil {
			return models.Aggregate{}, false, fmt.Errorf("service: failed to scan bids of %s: %w", opportunityID, err)
		}

		want := models.AggregateOf(bids)
		if opp.Aggregate().Equal(want) {
			return want, false, nil
		}

		_, err = s.repo.SwapAggregate(ctx, opportunityID, opp.Version, want)
		if errors.Is(err, biddingerrors.ErrVersionConflict) {
			s.metrics.RecordCASConflict()
			continue
		}
		if err != nil {
			return models.Aggregate{}, false, fmt.Errorf("service: failed to store aggregate of %s: %w", opportunityID, err)
		}
		return want, true, nil
	}

	return models.Aggregate{}, false, fmt.Errorf("service: %w - recompute of %s", biddingerrors.ErrAggregateConflict, opportunityID)
}

// GetBidsForOpportunity returns all active bids of an opportunity
func (s *BiddingService) GetBidsForOpportunity(ctx context.Context, opportunityID string) ([]models.Bid, error) {
	if opportunityID == "" {
		return nil, fmt.Errorf("service: %w - empty opportunity ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.repo.GetBidsByOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for opportunity %s: %w", opportunityID, err)
	}

	return bids, nil
}

// GetWinningBid returns the leading bid of an opportunity
func (s *BiddingService) GetWinningBid(ctx context.Context, opportunityID string) (models.Bid, error) {
	bids, err := s.GetBidsForOpportunity(ctx, opportunityID)
	if err != nil {
		return models.Bid{}, err
	}

	winning, ok := models.Leader(bids)
	if !ok {
		return models.Bid{}, fmt.Errorf("service: %w - opportunity %s", biddingerrors.ErrNoBids, opportunityID)
	}
	return winning, nil
}

// GetBidsByUser returns the active bids placed by a user
func (s *BiddingService) GetBidsByUser(ctx context.Context, userID string) ([]models.Bid, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.repo.GetBidsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for user %s: %w", userID, err)
	}

	return bids, nil
}

// admitted loads an opportunity and checks it against admit before any write
func (s *BiddingService) admitted(ctx context.Context, opportunityID string, admit func(models.Opportunity) error) (models.Opportunity, error) {
	opp, err := s.repo.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return models.Opportunity{}, fmt.Errorf("service: failed to load opportunity %s: %w", opportunityID, err)
	}
	if err := admit(opp); err != nil {
		s.metrics.RecordBidRejected(reasonOf(err))
		return models.Opportunity{}, fmt.Errorf("service: %w", err)
	}
	return opp, nil
}

// settle moves the aggregate of opp to (amount, bidderID) once the bid record
// holding that amount is stored. A lost race re-reads and re-validates. An
// aggregate that already names the bid, set by a concurrent recompute, is kept.
func (s *BiddingService) settle(ctx context.Context, opp models.Opportunity, bidderID string, amount decimal.Decimal, admit func(models.Opportunity) error) error {
	id := opp.OpportunityID
	target := models.Aggregate{CurrentHighestBid: amount, HighestBidderID: bidderID}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			var err error
			opp, err = s.repo.GetOpportunity(ctx, id)
			if err != nil {
				return fmt.Errorf("service: failed to load opportunity %s: %w", id, err)
			}
		}

		if opp.Aggregate().Equal(target) {
			return nil
		}
		if err := admit(opp); err != nil {
			s.metrics.RecordBidRejected(reasonOf(err))
			return fmt.Errorf("service: %w", err)
		}

		_, err := s.repo.SwapAggregate(ctx, id, opp.Version, target)
		if errors.Is(err, biddingerrors.ErrVersionConflict) {
			s.metrics.RecordCASConflict()
			utils.Debug("aggregate changed concurrently, retrying", map[string]any{
				"opportunity_id": id,
				"attempt":        attempt + 1,
			})
			continue
		}
		if err != nil {
			return fmt.Errorf("service: failed to update aggregate of %s: %w", id, err)
		}
		return nil
	}

	utils.Warn("aggregate compare-and-swap retries exhausted", map[string]any{
		"opportunity_id": id,
		"attempts":       s.maxAttempts,
	})
	return fmt.Errorf("service: %w - opportunity %s", biddingerrors.ErrAggregateConflict, id)
}

// retract undoes the bid write of a refused bid and rebuilds the aggregate,
// which a concurrent recompute may have moved onto that bid.
func (s *BiddingService) retract(ctx context.Context, opportunityID, bidID string, undo func() error) {
	if err := undo(); err != nil {
		utils.Error("refused bid could not be retracted, reconciliation will correct the aggregate", map[string]any{
			"opportunity_id": opportunityID,
			"bid_id":         bidID,
			"error":          err.Error(),
		})
		return
	}
	if _, _, err := s.Recompute(ctx, opportunityID); err != nil {
		utils.Error("recompute after retraction failed, reconciliation will correct it", map[string]any{
			"opportunity_id": opportunityID,
			"bid_id":         bidID,
			"error":          err.Error(),
		})
	}
}

func (s *BiddingService) ownedBid(ctx context.Context, bidID, bidderID string) (models.Bid, error) {
	if bidID == "" || bidderID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - missing bidID or bidderID", biddingerrors.ErrInvalidBid)
	}

	bid, err := s.repo.GetBid(ctx, bidID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to load bid %s: %w", bidID, err)
	}
	if bid.BidderID != bidderID {
		return models.Bid{}, fmt.Errorf("service: %w - bid %s", biddingerrors.ErrNotBidOwner, bidID)
	}
	return bid, nil
}

// reasonOf names the admission rule behind err for metrics labels
func reasonOf(err error) string {
	switch {
	case errors.Is(err, biddingerrors.ErrAuctionClosed):
		return "auction_closed"
	case errors.Is(err, biddingerrors.ErrNonPositiveAmount):
		return "non_positive_amount"
	case errors.Is(err, biddingerrors.ErrNotAnIncrease):
		return "not_an_increase"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return "bid_too_low"
	default:
		return "other"
	}
}
