package server

import (
	"crypto/subtle"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bidding-marketplace/internal/biddingerrors"
	"bidding-marketplace/services/bidding/helpers"
	"bidding-marketplace/utils"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"
)

// UserHeader carries the caller id forwarded by the authentication proxy
const UserHeader = "X-User-ID"

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	if caller := helpers.CallerID(c); caller != "" {
		fields["caller_id"] = caller
	}
	utils.Info("HTTP Request", fields)
}

// RequireUser rejects requests without a caller id and stores it for handlers
func RequireUser(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(UserHeader))
	if userID == "" {
		utils.JSONAbort(c, http.StatusUnauthorized, biddingerrors.ErrUnauthenticated, "authentication required")
		return
	}
	c.Set(helpers.CallerKey, userID)
	c.Next()
}

// RequireTriggerSecret admits only callers presenting "Bearer <secret>". An empty
// secret rejects every request.
func RequireTriggerSecret(secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || len(want) == 0 || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), want) != 1 {
			utils.JSONAbort(c, http.StatusUnauthorized, biddingerrors.ErrUnauthenticated, "trigger credentials required")
			utils.Warn("trigger rejected", map[string]any{"path": c.Request.URL.Path, "remote": c.ClientIP()})
			return
		}
		c.Next()
	}
}

// BidRateLimiter throttles bid writes per caller. Limiters live in an LRU so
// idle callers are evicted instead of swept by a cleanup goroutine.
type BidRateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *lru.Cache
}

// NewBidRateLimiter returns a limiter allowing perSecond bid writes per caller.
// A non-positive rate disables throttling.
func NewBidRateLimiter(perSecond float64, burst, callers int) (*BidRateLimiter, error) {
	if callers <= 0 {
		callers = 4096
	}
	if burst <= 0 {
		burst = 1
	}
	cache, err := lru.New(callers)
	if err != nil {
		return nil, fmt.Errorf("server: %w - creating rate limiter cache", err)
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &BidRateLimiter{limit: limit, burst: burst, limiters: cache}, nil
}

// Middleware answers 429 once the caller exhausts its bucket. It must run after RequireUser.
func (rl *BidRateLimiter) Middleware(c *gin.Context) {
	userID := helpers.CallerID(c)
	if !rl.limiterFor(userID).Allow() {
		c.Header("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
		utils.JSONAbort(c, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded for %s", userID), "too many bid requests, retry later")
		utils.Warn("rate limit exceeded", map[string]any{"caller_id": userID, "path": c.FullPath()})
		return
	}
	c.Next()
}

func (rl *BidRateLimiter) limiterFor(userID string) *rate.Limiter {
	if l, ok := rl.limiters.Get(userID); ok {
		return l.(*rate.Limiter)
	}
	fresh := rate.NewLimiter(rl.limit, rl.burst)
	if previous, found, _ := rl.limiters.PeekOrAdd(userID, fresh); found {
		return previous.(*rate.Limiter)
	}
	return fresh
}

// retryAfterSeconds is the time to refill one token, at least one second
func (rl *BidRateLimiter) retryAfterSeconds() int {
	if rl.limit == rate.Inf || rl.limit <= 0 {
		return 1
	}
	secs := int(math.Ceil(1.0 / float64(rl.limit)))
	if secs < 1 {
		secs = 1
	}
	return secs
}
