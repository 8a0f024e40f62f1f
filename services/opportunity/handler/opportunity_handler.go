package handler

import (
	"context"
	"net/http"
	"time"

	model "bidding-marketplace/internal/models"
	"bidding-marketplace/services/bidding/helpers"
	"bidding-marketplace/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -source=opportunity_handler.go -destination=mock_opportunity_handler.go -package=handler

type OpportunityServiceInterface interface {
	CreateOpportunity(ctx context.Context, adminID, title, description string, closingDate time.Time) (model.Opportunity, error)
	ListOpportunities(ctx context.Context) ([]model.Opportunity, error)
	GetOpportunity(ctx context.Context, opportunityID string) (model.Opportunity, error)
}

type OpportunityHandler struct {
	service OpportunityServiceInterface
	now     func() time.Time
}

// NewOpportunityHandler builds the handler. now decides whether an
// opportunity is reported as closed; nil means the wall clock.
func NewOpportunityHandler(service OpportunityServiceInterface, now func() time.Time) *OpportunityHandler {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &OpportunityHandler{service: service, now: now}
}

// CreateOpportunityHandler handles POST /opportunities
func (h *OpportunityHandler) CreateOpportunityHandler(c *gin.Context) {
	var req helpers.CreateOpportunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateOpportunityHandler", err)
		return
	}

	callerID := helpers.CallerID(c)
	opp, err := h.service.CreateOpportunity(c.Request.Context(), callerID, req.Title, req.Description, req.ClosingDate)
	if err != nil {
		helpers.HandleServiceError(c, "CreateOpportunityHandler", err, map[string]any{"admin_id": callerID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewOpportunityResponse(opp, h.now()), "opportunity created successfully")
	helpers.LogSuccess("CreateOpportunityHandler", "opportunity created successfully", map[string]any{
		"opportunity_id": opp.OpportunityID,
		"admin_id":       callerID,
	})
}

// ListOpportunitiesHandler handles GET /opportunities
func (h *OpportunityHandler) ListOpportunitiesHandler(c *gin.Context) {
	opps, err := h.service.ListOpportunities(c.Request.Context())
	if err != nil {
		helpers.HandleServiceError(c, "ListOpportunitiesHandler", err, nil)
		return
	}

	now := h.now()
	resp := make([]helpers.OpportunityResponse, 0, len(opps))
	for _, opp := range opps {
		resp = append(resp, helpers.NewOpportunityResponse(opp, now))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "opportunities retrieved successfully")
	helpers.LogSuccess("ListOpportunitiesHandler", "opportunities retrieved successfully", map[string]any{"count": len(resp)})
}

// GetOpportunityHandler handles GET /opportunities/:opportunity_id
func (h *OpportunityHandler) GetOpportunityHandler(c *gin.Context) {
	opportunityID := c.Param("opportunity_id")
	opp, err := h.service.GetOpportunity(c.Request.Context(), opportunityID)
	if err != nil {
		helpers.HandleServiceError(c, "GetOpportunityHandler", err, map[string]any{"opportunity_id": opportunityID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewOpportunityResponse(opp, h.now()), "opportunity retrieved successfully")
}
