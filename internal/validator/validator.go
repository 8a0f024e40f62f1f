// Package validator decides whether a proposed bid is admissible against the
// current state of an opportunity. It performs no I/O.
package validator

import (
	"bidding-marketplace/internal/biddingerrors"
	"bidding-marketplace/internal/models"
	"time"

	"github.com/shopspring/decimal"
)

// Admit checks a new bid of amount against opp at now.
// Rules run in order: closed auction, non-positive amount, amount not above the
// current highest bid. A nil result means the bid is accepted.
func Admit(opp models.Opportunity, amount decimal.Decimal, now time.Time) error {
	if opp.IsClosed(now) {
		return &biddingerrors.RejectionError{Rule: biddingerrors.ErrAuctionClosed, ClosedAt: *opp.ClosingDate}
	}
	if !amount.IsPositive() {
		return biddingerrors.Reject(biddingerrors.ErrNonPositiveAmount, decimal.Zero)
	}
	if amount.LessThanOrEqual(opp.CurrentHighestBid) {
		return biddingerrors.Reject(biddingerrors.ErrBidTooLow, opp.CurrentHighestBid)
	}
	return nil
}

// AdmitUpdate checks raising an existing bid from previous to amount.
// The new amount must beat the bidder's own previous amount before it is
// compared with the opportunity's highest bid.
func AdmitUpdate(opp models.Opportunity, previous, amount decimal.Decimal, now time.Time) error {
	if opp.IsClosed(now) {
		return &biddingerrors.RejectionError{Rule: biddingerrors.ErrAuctionClosed, ClosedAt: *opp.ClosingDate}
	}
	if !amount.IsPositive() {
		return biddingerrors.Reject(biddingerrors.ErrNonPositiveAmount, decimal.Zero)
	}
	if amount.LessThanOrEqual(previous) {
		return biddingerrors.Reject(biddingerrors.ErrNotAnIncrease, previous)
	}
	if amount.LessThanOrEqual(opp.CurrentHighestBid) {
		return biddingerrors.Reject(biddingerrors.ErrBidTooLow, opp.CurrentHighestBid)
	}
	return nil
}

// AdmitWithdrawal checks that a bid on opp may still be withdrawn at now
func AdmitWithdrawal(opp models.Opportunity, now time.Time) error {
	if opp.IsClosed(now) {
		return &biddingerrors.RejectionError{Rule: biddingerrors.ErrAuctionClosed, ClosedAt: *opp.ClosingDate}
	}
	return nil
}
