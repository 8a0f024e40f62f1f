package handler

import (
	"context"
	"net/http"

	model "bidding-marketplace/internal/models"
	"bidding-marketplace/services/bidding/helpers"
	"bidding-marketplace/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -source=profile_handler.go -destination=mock_profile_handler.go -package=handler

type ProfileServiceInterface interface {
	EnsureProfile(ctx context.Context, userID, email string) (model.User, bool, error)
	UpdateName(ctx context.Context, userID, name string) (model.User, error)
	GetProfile(ctx context.Context, userID string) (model.User, error)
}

// ProfileHandler serves the profile of the calling user
type ProfileHandler struct {
	service ProfileServiceInterface
}

func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// EnsureProfileHandler handles POST /users/me/profile. It is called after
// every sign-in and only creates the profile the first time.
func (h *ProfileHandler) EnsureProfileHandler(c *gin.Context) {
	var req helpers.EnsureProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "EnsureProfileHandler", err)
		return
	}

	callerID := helpers.CallerID(c)
	user, created, err := h.service.EnsureProfile(c.Request.Context(), callerID, req.Email)
	if err != nil {
		helpers.HandleServiceError(c, "EnsureProfileHandler", err, map[string]any{"user_id": callerID})
		return
	}

	if created {
		utils.JSONResponse(c, http.StatusCreated, helpers.NewProfileResponse(user), "profile created successfully")
		helpers.LogSuccess("EnsureProfileHandler", "profile created", map[string]any{"user_id": callerID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.NewProfileResponse(user), "profile already exists")
}

// GetProfileHandler handles GET /users/me/profile
func (h *ProfileHandler) GetProfileHandler(c *gin.Context) {
	callerID := helpers.CallerID(c)
	user, err := h.service.GetProfile(c.Request.Context(), callerID)
	if err != nil {
		helpers.HandleServiceError(c, "GetProfileHandler", err, map[string]any{"user_id": callerID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.NewProfileResponse(user), "profile retrieved successfully")
}

// UpdateProfileHandler handles PUT /users/me/profile
func (h *ProfileHandler) UpdateProfileHandler(c *gin.Context) {
	var req helpers.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateProfileHandler", err)
		return
	}

	callerID := helpers.CallerID(c)
	user, err := h.service.UpdateName(c.Request.Context(), callerID, req.Name)
	if err != nil {
		helpers.HandleServiceError(c, "UpdateProfileHandler", err, map[string]any{"user_id": callerID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewProfileResponse(user), "profile updated successfully")
	helpers.LogSuccess("UpdateProfileHandler", "profile updated successfully", map[string]any{"user_id": callerID})
}
