package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bidding-marketplace/internal/biddingerrors"
	"bidding-marketplace/internal/models"
	"bidding-marketplace/internal/repository"
	"bidding-marketplace/utils"
)

// ProfileService manages the per-user profile documents
type ProfileService struct {
	repo repository.MarketplaceDB
	now  func() time.Time
}

// NewProfileService creates a new ProfileService instance.
// A nil now uses the wall clock.
func NewProfileService(repo repository.MarketplaceDB, now func() time.Time) *ProfileService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ProfileService{repo: repo, now: now}
}

// EnsureProfile returns the profile of userID, creating an empty one with email
// on first sign-in. The boolean reports whether the profile was created.
func (s *ProfileService) EnsureProfile(ctx context.Context, userID, email string) (models.User, bool, error) {
	if userID == "" {
		return models.User{}, false, fmt.Errorf("service: %w", biddingerrors.ErrUnauthenticated)
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, biddingerrors.ErrUserNotFound) {
		return models.User{}, false, fmt.Errorf("service: failed to load profile %s: %w", userID, err)
	}

	user = models.User{
		UserID:    userID,
		Email:     strings.TrimSpace(email),
		CreatedAt: s.now(),
	}
	if err := s.repo.PutUser(ctx, user); err != nil {
		return models.User{}, false, fmt.Errorf("service: failed to create profile %s: %w", userID, err)
	}

	utils.Info("profile created", map[string]any{"user_id": userID})
	return user, true, nil
}

// UpdateName sets the display name of a profile. Blank names are rejected.
func (s *ProfileService) UpdateName(ctx context.Context, userID, name string) (models.User, error) {
	if userID == "" {
		return models.User{}, fmt.Errorf("service: %w", biddingerrors.ErrUnauthenticated)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return models.User{}, fmt.Errorf("service: %w - name cannot be empty", biddingerrors.ErrInvalidProfile)
	}

	if err := s.repo.UpdateUserName(ctx, userID, name); err != nil {
		return models.User{}, fmt.Errorf("service: failed to update profile %s: %w", userID, err)
	}

	return s.GetProfile(ctx, userID)
}

// GetProfile returns the profile of userID
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (models.User, error) {
	if userID == "" {
		return models.User{}, fmt.Errorf("service: %w", biddingerrors.ErrUnauthenticated)
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("service: failed to get profile %s: %w", userID, err)
	}
	return user, nil
}
