package opportunity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bidding-marketplace/internal/biddingerrors"
	"bidding-marketplace/internal/models"
	"bidding-marketplace/internal/repository"
	"bidding-marketplace/utils"

	"github.com/shopspring/decimal"
)

// OpportunityService manages the listings bidders can bid on
type OpportunityService struct {
	repo repository.MarketplaceDB
	now  func() time.Time
}

// NewOpportunityService creates a new OpportunityService instance.
// A nil now uses the wall clock.
func NewOpportunityService(repo repository.MarketplaceDB, now func() time.Time) *OpportunityService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &OpportunityService{repo: repo, now: now}
}

// CreateOpportunity publishes a new opportunity on behalf of an administrator.
// The opportunity starts with no bids and must close in the future.
func (s *OpportunityService) CreateOpportunity(ctx context.Context, adminID, title, description string, closingDate time.Time) (models.Opportunity, error) {
	if adminID == "" {
		return models.Opportunity{}, fmt.Errorf("service: %w", biddingerrors.ErrUnauthenticated)
	}

	admin, err := s.repo.GetUser(ctx, adminID)
	if err != nil {
		return models.Opportunity{}, fmt.Errorf("service: failed to load user %s: %w", adminID, err)
	}
	if !admin.IsAdmin {
		return models.Opportunity{}, fmt.Errorf("service: %w - user %s", biddingerrors.ErrForbidden, adminID)
	}

	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" || description == "" {
		return models.Opportunity{}, fmt.Errorf("service: %w - title and description are required", biddingerrors.ErrInvalidOpportunity)
	}

	now := s.now()
	if !closingDate.After(now) {
		return models.Opportunity{}, fmt.Errorf("service: %w - closing date must be in the future", biddingerrors.ErrInvalidOpportunity)
	}

	closing := closingDate.UTC()
	opp := models.Opportunity{
		OpportunityID:     utils.GenerateID(),
		Title:             title,
		Description:       description,
		ClosingDate:       &closing,
		CurrentHighestBid: decimal.Zero,
		CreatedAt:         now,
	}

	if err := s.repo.CreateOpportunity(ctx, opp); err != nil {
		return models.Opportunity{}, fmt.Errorf("service: failed to create opportunity: %w", err)
	}

	utils.Info("opportunity created", map[string]any{
		"opportunity_id": opp.OpportunityID,
		"admin_id":       adminID,
		"closing_date":   closing.Format(time.RFC3339),
	})
	return opp, nil
}

// ListOpportunities returns every opportunity, soonest closing first
func (s *OpportunityService) ListOpportunities(ctx context.Context) ([]models.Opportunity, error) {
	opps, err := s.repo.ListOpportunities(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list opportunities: %w", err)
	}
	return opps, nil
}

// GetOpportunity returns one opportunity with its current aggregate
func (s *OpportunityService) GetOpportunity(ctx context.Context, opportunityID string) (models.Opportunity, error) {
	if opportunityID == "" {
		return models.Opportunity{}, fmt.Errorf("service: %w - empty opportunity ID", biddingerrors.ErrInvalidOpportunity)
	}

	opp, err := s.repo.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return models.Opportunity{}, fmt.Errorf("service: failed to get opportunity %s: %w", opportunityID, err)
	}
	return opp, nil
}
