package helpers

import (
	"time"

	model "bidding-marketplace/internal/models"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs
type PlaceBidRequest struct {
	OpportunityID string          `json:"opportunity_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
}

type UpdateBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type BidResponse struct {
	BidID            string          `json:"bid_id"`
	OpportunityID    string          `json:"opportunity_id"`
	BidderID         string          `json:"bidder_id"`
	Amount           decimal.Decimal `json:"amount"`
	Timestamp        string          `json:"timestamp"`
	OpportunityTitle string          `json:"opportunity_title,omitempty"`
}

type CreateOpportunityRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description" binding:"required"`
	ClosingDate time.Time `json:"closing_date" binding:"required"`
}

type OpportunityResponse struct {
	OpportunityID     string          `json:"opportunity_id"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	ClosingDate       string          `json:"closing_date,omitempty"`
	CurrentHighestBid decimal.Decimal `json:"current_highest_bid"`
	HighestBidderID   string          `json:"highest_bidder_id,omitempty"`
	Closed            bool            `json:"closed"`
}

type EnsureProfileRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type UpdateProfileRequest struct {
	Name string `json:"name" binding:"required"`
}

type ProfileResponse struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt string `json:"created_at"`
}

func NewBidResponse(bid model.Bid) BidResponse {
	return BidResponse{
		BidID:            bid.BidID,
		OpportunityID:    bid.OpportunityID,
		BidderID:         bid.BidderID,
		Amount:           bid.Amount,
		Timestamp:        bid.Timestamp.UTC().Format(time.RFC3339),
		OpportunityTitle: bid.OpportunityTitle,
	}
}

func NewBidResponses(bids []model.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, bid := range bids {
		out = append(out, NewBidResponse(bid))
	}
	return out
}

func NewOpportunityResponse(opp model.Opportunity, now time.Time) OpportunityResponse {
	resp := OpportunityResponse{
		OpportunityID:     opp.OpportunityID,
		Title:             opp.Title,
		Description:       opp.Description,
		CurrentHighestBid: opp.CurrentHighestBid,
		HighestBidderID:   opp.HighestBidderID,
		Closed:            opp.IsClosed(now),
	}
	if opp.ClosingDate != nil {
		resp.ClosingDate = opp.ClosingDate.UTC().Format(time.RFC3339)
	}
	return resp
}

func NewProfileResponse(user model.User) ProfileResponse {
	return ProfileResponse{
		UserID:    user.UserID,
		Email:     user.Email,
		Name:      user.Name,
		IsAdmin:   user.IsAdmin,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
}
