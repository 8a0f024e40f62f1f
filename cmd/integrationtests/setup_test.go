package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	bidding "bidding-marketplace/internal/biddingService"
	"bidding-marketplace/internal/changefeed"
	"bidding-marketplace/internal/ledger"
	model "bidding-marketplace/internal/models"
	"bidding-marketplace/internal/notification"
	opportunity "bidding-marketplace/internal/opportunityService"
	profile "bidding-marketplace/internal/profileService"
	"bidding-marketplace/internal/repository"
	"bidding-marketplace/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testAppID     = "integration-app"
	adminEmail    = "admin@example.com"
	triggerSecret = "integration-trigger-secret"
)

// sentEmail is one message handed to the email provider
type sentEmail struct {
	To      string
	Subject string
	Key     string
}

// recordingSender stands in for the email provider
type recordingSender struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (s *recordingSender) Deliver(_ context.Context, to, subject, _, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentEmail{To: to, Subject: subject, Key: key})
	return nil
}

func (s *recordingSender) Sent() []sentEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentEmail(nil), s.sent...)
}

// readyStore signals once the change feed has subscribed
type readyStore struct {
	*ledger.MemoryStore
	ready chan struct{}
}

func (s readyStore) SubscribeCollection(ctx context.Context, collection string, onSnapshot func(ledger.Snapshot), onError func(error)) (ledger.Unsubscribe, error) {
	unsubscribe, err := s.MemoryStore.SubscribeCollection(ctx, collection, onSnapshot, onError)
	close(s.ready)
	return unsubscribe, err
}

// TestEnv is the whole marketplace on an in-memory ledger: HTTP API, change
// feed, dispatcher and delivery queue.
type TestEnv struct {
	Router  *gin.Engine
	Repo    *repository.LedgerRepo
	Bidding *bidding.BiddingService
	Sender  *recordingSender
	Now     time.Time
}

// SetupTestEnv starts the marketplace and stops it when the test ends
func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	now := time.Now().UTC()
	mem := ledger.NewMemoryStore()
	repo := repository.NewLedgerRepo(mem, testAppID)

	biddingSvc := bidding.NewBiddingService(repo)
	sender := &recordingSender{}
	queue := notification.NewQueue(sender, notification.QueueConfig{Workers: 2, Size: 64, MaxAttempts: 1}, nil)
	resolver, err := notification.NewEmailResolver(repo, 16)
	require.NoError(t, err)
	dispatcher := notification.NewDispatcher(
		notification.NewComposer("GIGL Marketplace", "GIGL", adminEmail),
		resolver, notification.NopDeduper{}, queue, nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	queue.Start(ctx)

	store := readyStore{MemoryStore: mem, ready: make(chan struct{})}
	done := make(chan error, 1)
	go func() { done <- changefeed.NewBridge(store, repo.Paths().Bids(), dispatcher).Run(ctx) }()
	<-store.ready

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		queue.Stop()
	})

	router := server.SetupRouter(server.Dependencies{
		Bidding:       biddingSvc,
		Opportunities: opportunity.NewOpportunityService(repo, nil),
		Profiles:      profile.NewProfileService(repo, nil),
		Triggers:      dispatcher,
		TriggerSecret: triggerSecret,
	})

	require.NoError(t, repo.PutUser(ctx, model.User{UserID: "admin", Email: adminEmail, IsAdmin: true, CreatedAt: now}))

	return &TestEnv{Router: router, Repo: repo, Bidding: biddingSvc, Sender: sender, Now: now}
}

// SeedOpportunity stores an opportunity closing after open
func (e *TestEnv) SeedOpportunity(t *testing.T, id string, open time.Duration) {
	t.Helper()

	closing := e.Now.Add(open)
	require.NoError(t, e.Repo.CreateOpportunity(context.Background(), model.Opportunity{
		OpportunityID:     id,
		Title:             "Opportunity " + id,
		Description:       "Integration test opportunity",
		ClosingDate:       &closing,
		CurrentHighestBid: decimal.Zero,
		CreatedAt:         e.Now,
	}))
}

// SignUp creates the profile of userID through the API
func (e *TestEnv) SignUp(t *testing.T, userID string) {
	t.Helper()

	_, w := ExecuteRequestAndParse(t, e.Router, "POST", "/users/me/profile", userID, map[string]string{"email": userID + "@example.com"})
	require.Equal(t, 201, w.Code)
}

// Aggregate reads the cached highest bid of an opportunity
func (e *TestEnv) Aggregate(t *testing.T, opportunityID string) model.Aggregate {
	t.Helper()

	opp, err := e.Repo.GetOpportunity(context.Background(), opportunityID)
	require.NoError(t, err)
	return opp.Aggregate()
}

// PostTrigger posts a bid change to the trigger endpoint with the given bearer token
func PostTrigger(t *testing.T, router *gin.Engine, bidID, token, payload string) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/triggers/bids/"+bidID, bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp, w
}

// ExecuteRequestAndParse executes an HTTP request as userID (anonymous when
// empty) and parses the response. The data of a 201 answer is returned directly.
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url, userID string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(server.UserHeader, userID)
	}
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		if err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}

		if w.Code == 201 {
			resp = resp["data"].(map[string]any)
		}
	}

	return resp, w
}
