// Package notification turns bid document changes into bidder and administrator
// emails. Delivery never feeds back into the ledger: outcomes are logged only.
package notification

import (
	"fmt"
	"strconv"

	"bidding-marketplace/internal/models"
)

// Kind classifies a change of one bid document
type Kind int

const (
	KindIgnored Kind = iota
	KindCreated
	KindUpdated
	KindWithdrawn
)

func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindUpdated:
		return "updated"
	case KindWithdrawn:
		return "withdrawn"
	default:
		return "ignored"
	}
}

// Action is the label shown to administrators
func (k Kind) Action() string {
	switch k {
	case KindCreated:
		return "New Bid"
	case KindUpdated:
		return "Update Bid"
	case KindWithdrawn:
		return "Withdrawal"
	default:
		return ""
	}
}

// Event is the before/after pair observed for one bid document.
// A nil side means the document did not exist.
type Event struct {
	AppID  string
	BidID  string
	Before *models.Bid
	After  *models.Bid
}

// Classify maps a before/after pair to the kind of change it represents.
// A rewrite that keeps the amount is not worth a notification.
func Classify(before, after *models.Bid) Kind {
	switch {
	case before == nil && after == nil:
		return KindIgnored
	case before == nil:
		return KindCreated
	case after == nil:
		return KindWithdrawn
	case !before.Amount.Equal(after.Amount):
		return KindUpdated
	default:
		return KindIgnored
	}
}

// Kind classifies the event
func (e Event) Kind() Kind {
	return Classify(e.Before, e.After)
}

// Current returns the side of the event describing the bid the message is about:
// the new state, or the removed one for a withdrawal.
func (e Event) Current() models.Bid {
	if e.After != nil {
		return *e.After
	}
	if e.Before != nil {
		return *e.Before
	}
	return models.Bid{}
}

// Key identifies the logical change. Redelivered triggers of the same change
// share a key; distinct writes of the same bid do not.
func (e Event) Key() string {
	return fmt.Sprintf("%s:%s:%s", e.BidID, stamp(e.Before), stamp(e.After))
}

func stamp(b *models.Bid) string {
	switch {
	case b == nil:
		return "-"
	case b.Version > 0:
		return "v" + strconv.FormatInt(b.Version, 10)
	default:
		return b.Amount.String() + "@" + strconv.FormatInt(b.Timestamp.UnixNano(), 10)
	}
}
