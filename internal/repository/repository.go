package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bidding-marketplace/internal/biddingerrors"
	"bidding-marketplace/internal/ledger"
	model "bidding-marketplace/internal/models"

	"github.com/shopspring/decimal"
)

// MarketplaceDB defines the typed storage interface of the marketplace
//
//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository
type MarketplaceDB interface {
	GetOpportunity(ctx context.Context, opportunityID string) (model.Opportunity, error)
	ListOpportunities(ctx context.Context) ([]model.Opportunity, error)
	CreateOpportunity(ctx context.Context, opp model.Opportunity) error
	// SwapAggregate writes agg only if the opportunity is still at expectedVersion.
	SwapAggregate(ctx context.Context, opportunityID string, expectedVersion int64, agg model.Aggregate) (model.Opportunity, error)

	GetBid(ctx context.Context, bidID string) (model.Bid, error)
	RecordBid(ctx context.Context, bid model.Bid) error
	UpdateBidAmount(ctx context.Context, bidID string, amount decimal.Decimal, at time.Time) error
	DeleteBid(ctx context.Context, bidID string) error
	GetBidsByOpportunity(ctx context.Context, opportunityID string) ([]model.Bid, error)
	GetBidsByUser(ctx context.Context, userID string) ([]model.Bid, error)

	GetUser(ctx context.Context, userID string) (model.User, error)
	PutUser(ctx context.Context, user model.User) error
	UpdateUserName(ctx context.Context, userID, name string) error
}

// LedgerRepo implements MarketplaceDB on top of a ledger.Store
type LedgerRepo struct {
	store ledger.Store
	paths Paths
}

// NewLedgerRepo creates a repository for the deployment identified by appID
func NewLedgerRepo(store ledger.Store, appID string) *LedgerRepo {
	return &LedgerRepo{store: store, paths: Paths{AppID: appID}}
}

// Paths exposes the path layout used by the repository
func (r *LedgerRepo) Paths() Paths {
	return r.paths
}

// GetOpportunity returns one opportunity with its current aggregate
func (r *LedgerRepo) GetOpportunity(ctx context.Context, opportunityID string) (model.Opportunity, error) {
	doc, err := r.store.Get(ctx, r.paths.Opportunity(opportunityID))
	if err != nil {
		return model.Opportunity{}, notFound(err, biddingerrors.ErrOpportunityNotFound, "get opportunity "+opportunityID)
	}
	return DecodeOpportunity(doc)
}

// ListOpportunities returns every opportunity, soonest closing first
func (r *LedgerRepo) ListOpportunities(ctx context.Context) ([]model.Opportunity, error) {
	docs, err := r.store.List(ctx, r.paths.Opportunities())
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}

	opps := make([]model.Opportunity, 0, len(docs))
	for _, doc := range docs {
		opp, err := DecodeOpportunity(doc)
		if err != nil {
			return nil, err
		}
		opps = append(opps, opp)
	}
	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i].ClosingDate, opps[j].ClosingDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return opps, nil
}

// CreateOpportunity stores a new opportunity document
func (r *LedgerRepo) CreateOpportunity(ctx context.Context, opp model.Opportunity) error {
	if opp.OpportunityID == "" {
		return fmt.Errorf("create opportunity: %w - missing id", biddingerrors.ErrInvalidOpportunity)
	}
	if _, err := r.store.Put(ctx, r.paths.Opportunity(opp.OpportunityID), encodeOpportunity(opp)); err != nil {
		return fmt.Errorf("create opportunity %s: %w", opp.OpportunityID, err)
	}
	return nil
}

// SwapAggregate conditionally replaces the aggregate of an opportunity
func (r *LedgerRepo) SwapAggregate(ctx context.Context, opportunityID string, expectedVersion int64, agg model.Aggregate) (model.Opportunity, error) {
	doc, err := r.store.UpdateIf(ctx, r.paths.Opportunity(opportunityID), expectedVersion, encodeAggregate(agg))
	if err != nil {
		return model.Opportunity{}, notFound(err, biddingerrors.ErrOpportunityNotFound, "swap aggregate of "+opportunityID)
	}
	return DecodeOpportunity(doc)
}

// GetBid returns one bid record
func (r *LedgerRepo) GetBid(ctx context.Context, bidID string) (model.Bid, error) {
	doc, err := r.store.Get(ctx, r.paths.Bid(bidID))
	if err != nil {
		return model.Bid{}, notFound(err, biddingerrors.ErrBidNotFound, "get bid "+bidID)
	}
	return DecodeBid(doc)
}

// RecordBid stores a bid record
func (r *LedgerRepo) RecordBid(ctx context.Context, bid model.Bid) error {
	if bid.BidID == "" || bid.OpportunityID == "" {
		return fmt.Errorf("record bid: %w - missing bid or opportunity id", biddingerrors.ErrInvalidBid)
	}
	if _, err := r.store.Put(ctx, r.paths.Bid(bid.BidID), encodeBid(bid)); err != nil {
		return fmt.Errorf("record bid %s for opportunity %s: %w", bid.BidID, bid.OpportunityID, err)
	}
	return nil
}

// UpdateBidAmount raises the amount of an existing bid
func (r *LedgerRepo) UpdateBidAmount(ctx context.Context, bidID string, amount decimal.Decimal, at time.Time) error {
	_, err := r.store.Update(ctx, r.paths.Bid(bidID), map[string]any{
		fieldBidAmount: amount.String(),
		fieldTimestamp: at.UTC(),
	})
	if err != nil {
		return notFound(err, biddingerrors.ErrBidNotFound, "update bid "+bidID)
	}
	return nil
}

// DeleteBid removes a bid record
func (r *LedgerRepo) DeleteBid(ctx context.Context, bidID string) error {
	if err := r.store.Delete(ctx, r.paths.Bid(bidID)); err != nil {
		return fmt.Errorf("delete bid %s: %w", bidID, err)
	}
	return nil
}

// GetBidsByOpportunity returns the active bids of an opportunity, oldest first
func (r *LedgerRepo) GetBidsByOpportunity(ctx context.Context, opportunityID string) ([]model.Bid, error) {
	return r.queryBids(ctx, fieldOpportunityID, opportunityID)
}

// GetBidsByUser returns the active bids placed by a user, oldest first
func (r *LedgerRepo) GetBidsByUser(ctx context.Context, userID string) ([]model.Bid, error) {
	return r.queryBids(ctx, fieldBidderID, userID)
}

func (r *LedgerRepo) queryBids(ctx context.Context, field, value string) ([]model.Bid, error) {
	docs, err := r.store.Query(ctx, r.paths.Bids(), field, value)
	if err != nil {
		return nil, fmt.Errorf("query bids by %s=%s: %w", field, value, err)
	}

	bids := make([]model.Bid, 0, len(docs))
	for _, doc := range docs {
		bid, err := DecodeBid(doc)
		if err != nil {
			return nil, err
		}
		bids = append(bids, bid)
	}
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Timestamp.Before(bids[j].Timestamp) })
	return bids, nil
}

// GetUser returns the profile of a user
func (r *LedgerRepo) GetUser(ctx context.Context, userID string) (model.User, error) {
	doc, err := r.store.Get(ctx, r.paths.User(userID))
	if err != nil {
		return model.User{}, notFound(err, biddingerrors.ErrUserNotFound, "get user "+userID)
	}
	return DecodeUser(doc)
}

// PutUser creates or replaces a profile
func (r *LedgerRepo) PutUser(ctx context.Context, user model.User) error {
	if user.UserID == "" {
		return fmt.Errorf("put user: %w - missing user id", biddingerrors.ErrInvalidProfile)
	}
	if _, err := r.store.Put(ctx, r.paths.User(user.UserID), encodeUser(user)); err != nil {
		return fmt.Errorf("put user %s: %w", user.UserID, err)
	}
	return nil
}

// UpdateUserName changes the display name of a profile
func (r *LedgerRepo) UpdateUserName(ctx context.Context, userID, name string) error {
	if _, err := r.store.Update(ctx, r.paths.User(userID), map[string]any{fieldName: name}); err != nil {
		return notFound(err, biddingerrors.ErrUserNotFound, "update user "+userID)
	}
	return nil
}

// notFound translates a ledger miss into the entity-level sentinel
func notFound(err, sentinel error, op string) error {
	if errors.Is(err, biddingerrors.ErrDocumentNotFound) {
		return fmt.Errorf("%s: %w", op, sentinel)
	}
	return fmt.Errorf("%s: %w", op, err)
}
