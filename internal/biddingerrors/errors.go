package biddingerrors

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger-level errors
var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrVersionConflict   = errors.New("document version changed since it was read")
	ErrMalformedDocument = errors.New("malformed document")
)

// Repository-level errors
var (
	ErrOpportunityNotFound = errors.New("opportunity not found")
	ErrBidNotFound         = errors.New("bid not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrNoBids              = errors.New("no bids found for opportunity")
)

// business logic errors
var (
	ErrInvalidBid         = errors.New("invalid bid")
	ErrAuctionClosed      = errors.New("auction closed")
	ErrNonPositiveAmount  = errors.New("bid amount must be positive")
	ErrBidTooLow          = errors.New("bid amount too low")
	ErrNotAnIncrease      = errors.New("bid amount is not an increase")
	ErrNotBidOwner        = errors.New("bid belongs to another bidder")
	ErrAggregateConflict  = errors.New("opportunity changed concurrently, retry the bid")
	ErrForbidden          = errors.New("administrator privileges required")
	ErrUnauthenticated    = errors.New("authenticated user required")
	ErrInvalidOpportunity = errors.New("invalid opportunity")
	ErrInvalidProfile     = errors.New("invalid profile")
)

// RejectionError explains which admission rule refused a bid.
// It unwraps to both the rule sentinel and ErrInvalidBid.
type RejectionError struct {
	Rule     error
	Minimum  decimal.Decimal // exclusive lower bound for BidTooLow / NotAnIncrease
	ClosedAt time.Time       // set for AuctionClosed
}

func (e *RejectionError) Error() string {
	switch e.Rule {
	case ErrAuctionClosed:
		return fmt.Sprintf("the auction closed at %s", e.ClosedAt.UTC().Format(time.RFC3339))
	case ErrNonPositiveAmount:
		return "please enter a positive bid amount"
	case ErrBidTooLow:
		return fmt.Sprintf("your bid must be higher than the current highest bid of $%s", e.Minimum.StringFixed(2))
	case ErrNotAnIncrease:
		return fmt.Sprintf("your new bid must be higher than your current bid of $%s", e.Minimum.StringFixed(2))
	default:
		return e.Rule.Error()
	}
}

func (e *RejectionError) Unwrap() []error {
	return []error{e.Rule, ErrInvalidBid}
}

// Reject builds a RejectionError for rule
func Reject(rule error, minimum decimal.Decimal) *RejectionError {
	return &RejectionError{Rule: rule, Minimum: minimum}
}
