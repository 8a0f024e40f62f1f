package notification

import (
	"context"
	"errors"
	"fmt"

	"bidding-marketplace/internal/biddingerrors"
	"bidding-marketplace/internal/models"
	"bidding-marketplace/utils"

	lru "github.com/hashicorp/golang-lru"
)

// TombstoneEmail stands in for a bidder whose address cannot be resolved
const TombstoneEmail = "unknown-bidder@example.com"

// ProfileReader loads user profiles
type ProfileReader interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
}

// EmailResolver finds the address of a bidder: the copy embedded in the bid,
// else the profile document, else TombstoneEmail.
type EmailResolver struct {
	profiles ProfileReader
	cache    *lru.Cache
}

// NewEmailResolver creates a resolver caching up to cacheSize profile lookups.
// A cacheSize of zero disables the cache.
func NewEmailResolver(profiles ProfileReader, cacheSize int) (*EmailResolver, error) {
	r := &EmailResolver{profiles: profiles}
	if cacheSize > 0 {
		cache, err := lru.New(cacheSize)
		if err != nil {
			return nil, fmt.Errorf("email cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// Resolve never fails; an unresolvable bidder maps to TombstoneEmail
func (r *EmailResolver) Resolve(ctx context.Context, bid models.Bid) string {
	if bid.BidderEmail != "" {
		return bid.BidderEmail
	}
	if bid.BidderID == "" {
		return TombstoneEmail
	}

	if r.cache != nil {
		if v, ok := r.cache.Get(bid.BidderID); ok {
			return v.(string)
		}
	}

	user, err := r.profiles.GetUser(ctx, bid.BidderID)
	if err != nil {
		if !errors.Is(err, biddingerrors.ErrUserNotFound) {
			utils.Warn("bidder profile lookup failed", map[string]any{
				"bidder_id": bid.BidderID,
				"error":     err.Error(),
			})
		}
		return TombstoneEmail
	}
	if user.Email == "" {
		return TombstoneEmail
	}

	if r.cache != nil {
		r.cache.Add(bid.BidderID, user.Email)
	}
	return user.Email
}
