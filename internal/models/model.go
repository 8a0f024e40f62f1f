package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the denormalized profile kept for an authenticated account
type User struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Opportunity is an auctionable listing with a closing deadline.
// CurrentHighestBid and HighestBidderID form the aggregate maintained by the
// bidding service; Version is the ledger version the record was read at.
type Opportunity struct {
	OpportunityID     string          `json:"opportunity_id"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	ClosingDate       *time.Time      `json:"closing_date,omitempty"`
	CurrentHighestBid decimal.Decimal `json:"current_highest_bid"`
	HighestBidderID   string          `json:"highest_bidder_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	Version           int64           `json:"-"`
}

// IsClosed reports whether bidding on the opportunity has ended at now
func (o Opportunity) IsClosed(now time.Time) bool {
	return o.ClosingDate != nil && !now.Before(*o.ClosingDate)
}

// Aggregate is the derived "current highest bid / bidder" summary of an opportunity
type Aggregate struct {
	CurrentHighestBid decimal.Decimal `json:"current_highest_bid"`
	HighestBidderID   string          `json:"highest_bidder_id,omitempty"`
}

// Aggregate returns the cached summary stored on the opportunity
func (o Opportunity) Aggregate() Aggregate {
	return Aggregate{CurrentHighestBid: o.CurrentHighestBid, HighestBidderID: o.HighestBidderID}
}

// Equal reports whether two aggregates describe the same leader and amount
func (a Aggregate) Equal(other Aggregate) bool {
	return a.CurrentHighestBid.Equal(other.CurrentHighestBid) && a.HighestBidderID == other.HighestBidderID
}

// Bid is a monetary offer by a user against an opportunity.
// OpportunityTitle and BidderEmail are denormalized copies used by notifications.
type Bid struct {
	BidID            string          `json:"bid_id"`
	OpportunityID    string          `json:"opportunity_id"`
	BidderID         string          `json:"bidder_id"`
	Amount           decimal.Decimal `json:"amount"`
	Timestamp        time.Time       `json:"timestamp"`
	OpportunityTitle string          `json:"opportunity_title,omitempty"`
	BidderEmail      string          `json:"bidder_email,omitempty"`
	Version          int64           `json:"-"`
}

// Leader picks the highest bid of the set, earliest timestamp first on ties.
// It returns false when bids is empty.
func Leader(bids []Bid) (Bid, bool) {
	if len(bids) == 0 {
		return Bid{}, false
	}

	winning := bids[0]
	for _, b := range bids[1:] {
		if b.Amount.GreaterThan(winning.Amount) || (b.Amount.Equal(winning.Amount) && b.Timestamp.Before(winning.Timestamp)) {
			winning = b
		}
	}
	return winning, true
}

// AggregateOf computes the aggregate an opportunity should carry for the given bids
func AggregateOf(bids []Bid) Aggregate {
	leader, ok := Leader(bids)
	if !ok {
		return Aggregate{CurrentHighestBid: decimal.Zero}
	}
	return Aggregate{CurrentHighestBid: leader.Amount, HighestBidderID: leader.BidderID}
}
