package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"bidding-marketplace/internal/biddingerrors"
	"bidding-marketplace/internal/ledger"
	"bidding-marketplace/internal/models"

	"github.com/shopspring/decimal"
)

// Document field names, shared with the original front end documents.
const (
	fieldTitle             = "title"
	fieldDescription       = "description"
	fieldClosingDate       = "closingDate"
	fieldCurrentHighestBid = "currentHighestBid"
	fieldHighestBidderID   = "highestBidderId"
	fieldCreatedAt         = "createdAt"

	fieldOpportunityID    = "opportunityId"
	fieldBidderID         = "bidderId"
	fieldBidAmount        = "bidAmount"
	fieldTimestamp        = "timestamp"
	fieldOpportunityTitle = "opportunityTitle"
	fieldBidderEmail      = "bidderEmail"

	fieldEmail   = "email"
	fieldName    = "name"
	fieldIsAdmin = "isAdmin"
)

func encodeOpportunity(o models.Opportunity) map[string]any {
	fields := map[string]any{
		fieldTitle:             o.Title,
		fieldDescription:       o.Description,
		fieldClosingDate:       nil,
		fieldCreatedAt:         o.CreatedAt.UTC(),
		fieldHighestBidderID:   nil,
		fieldCurrentHighestBid: o.CurrentHighestBid.String(),
	}
	if o.ClosingDate != nil {
		fields[fieldClosingDate] = o.ClosingDate.UTC()
	}
	if o.HighestBidderID != "" {
		fields[fieldHighestBidderID] = o.HighestBidderID
	}
	return fields
}

func encodeAggregate(agg models.Aggregate) map[string]any {
	fields := map[string]any{
		fieldCurrentHighestBid: agg.CurrentHighestBid.String(),
		fieldHighestBidderID:   nil,
	}
	if agg.HighestBidderID != "" {
		fields[fieldHighestBidderID] = agg.HighestBidderID
	}
	return fields
}

// DecodeOpportunity validates an opportunity document read from the ledger
func DecodeOpportunity(doc ledger.Document) (models.Opportunity, error) {
	r := fieldReader{doc: doc}
	opp := models.Opportunity{
		OpportunityID:     doc.ID(),
		Title:             r.requiredString(fieldTitle),
		Description:       r.optionalString(fieldDescription),
		ClosingDate:       r.optionalTime(fieldClosingDate),
		CurrentHighestBid: r.amount(fieldCurrentHighestBid, false),
		HighestBidderID:   r.optionalString(fieldHighestBidderID),
		Version:           doc.Version,
	}
	if created := r.optionalTime(fieldCreatedAt); created != nil {
		opp.CreatedAt = *created
	}
	if opp.CurrentHighestBid.IsNegative() {
		r.fail(fieldCurrentHighestBid, "negative amount")
	}
	return opp, r.err
}

func encodeBid(b models.Bid) map[string]any {
	fields := map[string]any{
		fieldOpportunityID: b.OpportunityID,
		fieldBidderID:      b.BidderID,
		fieldBidAmount:     b.Amount.String(),
		fieldTimestamp:     b.Timestamp.UTC(),
	}
	if b.OpportunityTitle != "" {
		fields[fieldOpportunityTitle] = b.OpportunityTitle
	}
	if b.BidderEmail != "" {
		fields[fieldBidderEmail] = b.BidderEmail
	}
	return fields
}

// DecodeBid validates a bid document read from the ledger or a change event
func DecodeBid(doc ledger.Document) (models.Bid, error) {
	r := fieldReader{doc: doc}
	bid := models.Bid{
		BidID:            doc.ID(),
		OpportunityID:    r.requiredString(fieldOpportunityID),
		BidderID:         r.requiredString(fieldBidderID),
		Amount:           r.amount(fieldBidAmount, true),
		OpportunityTitle: r.optionalString(fieldOpportunityTitle),
		BidderEmail:      r.optionalString(fieldBidderEmail),
		Version:          doc.Version,
	}
	if ts := r.optionalTime(fieldTimestamp); ts != nil {
		bid.Timestamp = *ts
	}
	if r.err == nil && !bid.Amount.IsPositive() {
		r.fail(fieldBidAmount, "amount must be positive")
	}
	return bid, r.err
}

func encodeUser(u models.User) map[string]any {
	return map[string]any{
		fieldEmail:     u.Email,
		fieldName:      u.Name,
		fieldIsAdmin:   u.IsAdmin,
		fieldCreatedAt: u.CreatedAt.UTC(),
	}
}

// DecodeUser validates a profile document
func DecodeUser(doc ledger.Document) (models.User, error) {
	r := fieldReader{doc: doc}
	user := models.User{
		UserID:  doc.ID(),
		Email:   r.optionalString(fieldEmail),
		Name:    r.optionalString(fieldName),
		IsAdmin: r.optionalBool(fieldIsAdmin),
	}
	if created := r.optionalTime(fieldCreatedAt); created != nil {
		user.CreatedAt = *created
	}
	return user, r.err
}

// fieldReader reads typed fields and keeps the first problem it meets
type fieldReader struct {
	doc ledger.Document
	err error
}

func (r *fieldReader) fail(field, problem string) {
	if r.err == nil {
		r.err = fmt.Errorf("decode %s: field %q: %s: %w", r.doc.Path, field, problem, biddingerrors.ErrMalformedDocument)
	}
}

func (r *fieldReader) requiredString(field string) string {
	s, ok := r.doc.Fields[field].(string)
	if !ok || s == "" {
		r.fail(field, "required string missing")
	}
	return s
}

func (r *fieldReader) optionalString(field string) string {
	switch v := r.doc.Fields[field].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		r.fail(field, fmt.Sprintf("expected string, got %T", v))
		return ""
	}
}

func (r *fieldReader) optionalBool(field string) bool {
	switch v := r.doc.Fields[field].(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		r.fail(field, fmt.Sprintf("expected bool, got %T", v))
		return false
	}
}

func (r *fieldReader) optionalTime(field string) *time.Time {
	switch v := r.doc.Fields[field].(type) {
	case nil:
		return nil
	case time.Time:
		t := v.UTC()
		return &t
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			r.fail(field, "invalid timestamp")
			return nil
		}
		t = t.UTC()
		return &t
	default:
		r.fail(field, fmt.Sprintf("expected timestamp, got %T", v))
		return nil
	}
}

func (r *fieldReader) amount(field string, required bool) decimal.Decimal {
	raw, present := r.doc.Fields[field]
	if !present || raw == nil {
		if required {
			r.fail(field, "required amount missing")
		}
		return decimal.Zero
	}

	var (
		d   decimal.Decimal
		err error
	)
	switch v := raw.(type) {
	case string:
		d, err = decimal.NewFromString(v)
	case json.Number:
		d, err = decimal.NewFromString(v.String())
	case float64:
		d = decimal.NewFromFloat(v)
	case int64:
		d = decimal.NewFromInt(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err != nil {
		r.fail(field, "invalid amount")
		return decimal.Zero
	}
	return d
}
