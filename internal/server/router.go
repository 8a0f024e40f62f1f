package server

import (
	"net/http"
	"time"

	"bidding-marketplace/internal/metrics"
	biddinghandler "bidding-marketplace/services/bidding/handler"
	notificationhandler "bidding-marketplace/services/notification/handler"
	opportunityhandler "bidding-marketplace/services/opportunity/handler"
	profilehandler "bidding-marketplace/services/profile/handler"
	"bidding-marketplace/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Dependencies are the services the router exposes. Optional members left nil
// switch their routes off.
type Dependencies struct {
	Bidding       biddinghandler.BiddingServiceInterface
	Opportunities opportunityhandler.OpportunityServiceInterface
	Profiles      profilehandler.ProfileServiceInterface

	// Triggers receives document-change events posted to /triggers by callers
	// holding TriggerSecret
	Triggers      notificationhandler.ChangeHandler
	TriggerSecret string
	Gatherer      prometheus.Gatherer
	Limiter       *BidRateLimiter
	Now           func() time.Time
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	biddingHandler := biddinghandler.NewBiddingHandler(deps.Bidding)
	opportunityHandler := opportunityhandler.NewOpportunityHandler(deps.Opportunities, now)
	profileHandler := profilehandler.NewProfileHandler(deps.Profiles)

	router.GET("/healthz", func(c *gin.Context) {
		utils.JSONResponse(c, http.StatusOK, gin.H{"time": now().Format(time.RFC3339)}, "ok")
	})
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(deps.Gatherer)))
	}

	bidWrites := []gin.HandlerFunc{RequireUser}
	if deps.Limiter != nil {
		bidWrites = append(bidWrites, deps.Limiter.Middleware)
	}
	bids := router.Group("/bids", bidWrites...)
	{
		bids.POST("", biddingHandler.RecordBidHandler)
		bids.PATCH("/:bid_id", biddingHandler.UpdateBidHandler)
		bids.DELETE("/:bid_id", biddingHandler.WithdrawBidHandler)
	}

	opportunities := router.Group("/opportunities")
	{
		opportunities.GET("", opportunityHandler.ListOpportunitiesHandler)
		opportunities.POST("", RequireUser, opportunityHandler.CreateOpportunityHandler)
		opportunities.GET("/:opportunity_id", opportunityHandler.GetOpportunityHandler)
		opportunities.GET("/:opportunity_id/bids", biddingHandler.GetBidsByOpportunityHandler)
		opportunities.GET("/:opportunity_id/winning", biddingHandler.GetWinningBidHandler)
	}

	users := router.Group("/users", RequireUser)
	{
		users.GET("/me/profile", profileHandler.GetProfileHandler)
		users.POST("/me/profile", profileHandler.EnsureProfileHandler)
		users.PUT("/me/profile", profileHandler.UpdateProfileHandler)
		users.GET("/:user_id/bids", biddingHandler.GetBidsByUserHandler)
	}

	if deps.Triggers != nil {
		triggerHandler := notificationhandler.NewTriggerHandler(deps.Triggers)
		router.POST("/triggers/bids/:bid_id", RequireTriggerSecret(deps.TriggerSecret), triggerHandler.BidChangedHandler)
	}

	return router
}
