package handler

import (
	"context"
	"errors"
	"net/http"

	"bidding-marketplace/internal/biddingerrors"
	model "bidding-marketplace/internal/models"
	"bidding-marketplace/services/bidding/helpers"
	"bidding-marketplace/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=bidding_handler.go -destination=mock_bidding_handler.go -package=handler

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, opportunityID, bidderID string, amount decimal.Decimal) (model.Bid, error)
	UpdateBid(ctx context.Context, bidID, bidderID string, newAmount decimal.Decimal) (model.Bid, error)
	WithdrawBid(ctx context.Context, bidID, bidderID string) error
	GetBidsForOpportunity(ctx context.Context, opportunityID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, opportunityID string) (model.Bid, error)
	GetBidsByUser(ctx context.Context, userID string) ([]model.Bid, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// RecordBidHandler handles POST /bids
func (h *BiddingHandler) RecordBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RecordBidHandler", err)
		return
	}

	callerID := helpers.CallerID(c)
	bid, err := h.service.PlaceBid(c.Request.Context(), req.OpportunityID, callerID, req.Amount)
	if err != nil {
		helpers.HandleServiceError(c, "RecordBidHandler", err, map[string]any{
			"opportunity_id": req.OpportunityID,
			"bidder_id":      callerID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewBidResponse(bid), "bid recorded successfully")
	helpers.LogSuccess("RecordBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":         bid.BidID,
		"opportunity_id": bid.OpportunityID,
		"bidder_id":      callerID,
		"amount":         bid.Amount.String(),
	})
}

// UpdateBidHandler handles PATCH /bids/:bid_id
func (h *BiddingHandler) UpdateBidHandler(c *gin.Context) {
	var req helpers.UpdateBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateBidHandler", err)
		return
	}

	bidID := c.Param("bid_id")
	callerID := helpers.CallerID(c)
	bid, err := h.service.UpdateBid(c.Request.Context(), bidID, callerID, req.Amount)
	if err != nil {
		helpers.HandleServiceError(c, "UpdateBidHandler", err, map[string]any{"bid_id": bidID, "bidder_id": callerID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "bid updated successfully")
	helpers.LogSuccess("UpdateBidHandler", "bid updated successfully", map[string]any{
		"bid_id":    bid.BidID,
		"bidder_id": callerID,
		"amount":    bid.Amount.String(),
	})
}

// WithdrawBidHandler handles DELETE /bids/:bid_id
func (h *BiddingHandler) WithdrawBidHandler(c *gin.Context) {
	bidID := c.Param("bid_id")
	callerID := helpers.CallerID(c)
	if err := h.service.WithdrawBid(c.Request.Context(), bidID, callerID); err != nil {
		helpers.HandleServiceError(c, "WithdrawBidHandler", err, map[string]any{"bid_id": bidID, "bidder_id": callerID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, gin.H{"bid_id": bidID}, "bid withdrawn successfully")
	helpers.LogSuccess("WithdrawBidHandler", "bid withdrawn successfully", map[string]any{"bid_id": bidID, "bidder_id": callerID})
}

// GetBidsByOpportunityHandler handles GET /opportunities/:opportunity_id/bids
func (h *BiddingHandler) GetBidsByOpportunityHandler(c *gin.Context) {
	opportunityID := c.Param("opportunity_id")
	bids, err := h.service.GetBidsForOpportunity(c.Request.Context(), opportunityID)
	if err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
		helpers.HandleServiceError(c, "GetBidsByOpportunityHandler", err, map[string]any{"opportunity_id": opportunityID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByOpportunityHandler", "bids retrieved successfully", map[string]any{
		"opportunity_id": opportunityID,
		"count":          len(bids),
	})
}

// GetWinningBidHandler handles GET /opportunities/:opportunity_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	opportunityID := c.Param("opportunity_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), opportunityID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no winning bid found")
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"opportunity_id": opportunityID})
			return
		}
		helpers.HandleServiceError(c, "GetWinningBidHandler", err, map[string]any{"opportunity_id": opportunityID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":         bid.BidID,
		"opportunity_id": bid.OpportunityID,
		"bidder_id":      bid.BidderID,
		"amount":         bid.Amount.String(),
	})
}

// GetBidsByUserHandler handles GET /users/:user_id/bids. Bidders may only
// list their own bids.
func (h *BiddingHandler) GetBidsByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	if callerID := helpers.CallerID(c); callerID != userID {
		helpers.HandleServiceError(c, "GetBidsByUserHandler", biddingerrors.ErrForbidden, map[string]any{"user_id": userID, "caller_id": callerID})
		return
	}

	bids, err := h.service.GetBidsByUser(c.Request.Context(), userID)
	if err != nil {
		helpers.HandleServiceError(c, "GetBidsByUserHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByUserHandler", "bids retrieved successfully", map[string]any{
		"user_id": userID,
		"count":   len(bids),
	})
}
