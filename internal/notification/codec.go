package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bidding-marketplace/internal/models"

	"github.com/shopspring/decimal"
)

// ErrMalformedPayload is returned for change payloads that cannot describe a bid change
var ErrMalformedPayload = errors.New("malformed change payload")

// BidSnapshot is the wire form of one side of a bid change.
// Field names follow the stored bid documents.
type BidSnapshot struct {
	OpportunityID    string          `json:"opportunityId"`
	BidderID         string          `json:"bidderId"`
	BidAmount        decimal.Decimal `json:"bidAmount"`
	Timestamp        time.Time       `json:"timestamp"`
	OpportunityTitle string          `json:"opportunityTitle,omitempty"`
	BidderEmail      string          `json:"bidderEmail,omitempty"`
	Version          int64           `json:"version,omitempty"`
}

// Params carries the path parameters of the changed document
type Params struct {
	AppID string `json:"appId,omitempty"`
	BidID string `json:"bidId,omitempty"`
}

// Payload is the wire form of an Event, shared by the trigger endpoint and the
// Kafka transport.
type Payload struct {
	Before *BidSnapshot `json:"before"`
	After  *BidSnapshot `json:"after"`
	Params Params       `json:"params"`
}

// EncodeEvent serializes ev
func EncodeEvent(ev Event) ([]byte, error) {
	return json.Marshal(Payload{
		Before: snapshotOf(ev.Before),
		After:  snapshotOf(ev.After),
		Params: Params{AppID: ev.AppID, BidID: ev.BidID},
	})
}

// DecodeEvent parses a payload. A non-empty bidID (from the request path)
// takes precedence over the bid id carried in the payload params.
func DecodeEvent(data []byte, bidID string) (Event, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if bidID == "" {
		bidID = p.Params.BidID
	}
	if bidID == "" {
		return Event{}, fmt.Errorf("%w: missing bid id", ErrMalformedPayload)
	}

	before, err := p.Before.bid(bidID)
	if err != nil {
		return Event{}, fmt.Errorf("before: %w", err)
	}
	after, err := p.After.bid(bidID)
	if err != nil {
		return Event{}, fmt.Errorf("after: %w", err)
	}

	return Event{AppID: p.Params.AppID, BidID: bidID, Before: before, After: after}, nil
}

func snapshotOf(b *models.Bid) *BidSnapshot {
	if b == nil {
		return nil
	}
	return &BidSnapshot{
		OpportunityID:    b.OpportunityID,
		BidderID:         b.BidderID,
		BidAmount:        b.Amount,
		Timestamp:        b.Timestamp,
		OpportunityTitle: b.OpportunityTitle,
		BidderEmail:      b.BidderEmail,
		Version:          b.Version,
	}
}

func (s *BidSnapshot) bid(bidID string) (*models.Bid, error) {
	if s == nil {
		return nil, nil
	}
	if s.BidderID == "" {
		return nil, fmt.Errorf("%w: missing bidderId", ErrMalformedPayload)
	}
	if !s.BidAmount.IsPositive() {
		return nil, fmt.Errorf("%w: bidAmount must be positive", ErrMalformedPayload)
	}
	return &models.Bid{
		BidID:            bidID,
		OpportunityID:    s.OpportunityID,
		BidderID:         s.BidderID,
		Amount:           s.BidAmount,
		Timestamp:        s.Timestamp,
		OpportunityTitle: s.OpportunityTitle,
		BidderEmail:      s.BidderEmail,
		Version:          s.Version,
	}, nil
}
