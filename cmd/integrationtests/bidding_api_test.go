package integrationtests

import (
	"net/http"
	"testing"
	"time"

	"bidding-marketplace/services/bidding/helpers"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func placeBid(t *testing.T, env *TestEnv, userID, opportunityID string, amount int64) (map[string]any, int) {
	t.Helper()

	resp, w := ExecuteRequestAndParse(t, env.Router, http.MethodPost, "/bids", userID, helpers.PlaceBidRequest{
		OpportunityID: opportunityID,
		Amount:        decimal.NewFromInt(amount),
	})
	return resp, w.Code
}

// RecordBidHandler Tests
func TestRecordBidHandler(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		request    any
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "Valid_Bid",
			userID:     "user1",
			request:    helpers.PlaceBidRequest{OpportunityID: "opp1", Amount: decimal.NewFromInt(100)},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "Invalid_JSON",
			userID:     "user1",
			request:    "{opportunity_id: 'missing quotes', amount: 100}",
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid request payload",
		},
		{
			name:       "Non_Positive_Amount",
			userID:     "user1",
			request:    helpers.PlaceBidRequest{OpportunityID: "opp1", Amount: decimal.Zero},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "positive bid amount",
		},
		{
			name:       "Unknown_Opportunity",
			userID:     "user1",
			request:    helpers.PlaceBidRequest{OpportunityID: "nonexistent", Amount: decimal.NewFromInt(100)},
			wantStatus: http.StatusNotFound,
			wantMsg:    "opportunity not found",
		},
		{
			name:       "No_Profile",
			userID:     "stranger",
			request:    helpers.PlaceBidRequest{OpportunityID: "opp1", Amount: decimal.NewFromInt(100)},
			wantStatus: http.StatusNotFound,
			wantMsg:    "user profile not found",
		},
		{
			name:       "Anonymous",
			request:    helpers.PlaceBidRequest{OpportunityID: "opp1", Amount: decimal.NewFromInt(100)},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := SetupTestEnv(t)
			env.SeedOpportunity(t, "opp1", time.Hour)
			env.SignUp(t, "user1")

			resp, w := ExecuteRequestAndParse(t, env.Router, http.MethodPost, "/bids", tt.userID, tt.request)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusCreated {
				require.Equal(t, "opp1", resp["opportunity_id"])
				require.Equal(t, "user1", resp["bidder_id"])
				require.Equal(t, "100", resp["amount"])
				require.Equal(t, "Opportunity opp1", resp["opportunity_title"])
				require.NotEmpty(t, resp["bid_id"])

				_, err := time.Parse(time.RFC3339, resp["timestamp"].(string))
				require.NoError(t, err)
				return
			}
			if tt.wantMsg != "" {
				require.Contains(t, resp["message"], tt.wantMsg)
			}
		})
	}
}

// The leader withdraws and the superseded bid takes the lead again
func TestScenario_LeaderWithdrawal(t *testing.T) {
	env := SetupTestEnv(t)
	env.SeedOpportunity(t, "O1", time.Hour)
	env.SignUp(t, "A")
	env.SignUp(t, "B")

	_, status := placeBid(t, env, "A", "O1", 100)
	require.Equal(t, http.StatusCreated, status)
	agg := env.Aggregate(t, "O1")
	require.True(t, agg.CurrentHighestBid.Equal(decimal.NewFromInt(100)))
	require.Equal(t, "A", agg.HighestBidderID)

	resp, status := placeBid(t, env, "B", "O1", 90)
	require.Equal(t, http.StatusConflict, status)
	require.Contains(t, resp["message"], "$100.00")

	bBid, status := placeBid(t, env, "B", "O1", 150)
	require.Equal(t, http.StatusCreated, status)
	agg = env.Aggregate(t, "O1")
	require.True(t, agg.CurrentHighestBid.Equal(decimal.NewFromInt(150)))
	require.Equal(t, "B", agg.HighestBidderID)

	_, w := ExecuteRequestAndParse(t, env.Router, http.MethodDelete, "/bids/"+bBid["bid_id"].(string), "B", nil)
	require.Equal(t, http.StatusOK, w.Code)

	agg = env.Aggregate(t, "O1")
	require.True(t, agg.CurrentHighestBid.Equal(decimal.NewFromInt(100)))
	require.Equal(t, "A", agg.HighestBidderID)

	winning, w := ExecuteRequestAndParse(t, env.Router, http.MethodGet, "/opportunities/O1/winning", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := winning["data"].(map[string]any)
	require.Equal(t, "A", data["bidder_id"])
	require.Equal(t, "100", data["amount"])
}

func TestScenario_BidAfterClose(t *testing.T) {
	env := SetupTestEnv(t)
	env.SeedOpportunity(t, "closed", -time.Second)
	env.SignUp(t, "user1")

	resp, status := placeBid(t, env, "user1", "closed", 1_000_000)
	require.Equal(t, http.StatusConflict, status)
	require.Contains(t, resp["message"], "auction closed")
	require.True(t, env.Aggregate(t, "closed").CurrentHighestBid.IsZero())
}

func TestUpdateAndWithdrawOwnership(t *testing.T) {
	env := SetupTestEnv(t)
	env.SeedOpportunity(t, "opp1", time.Hour)
	env.SignUp(t, "user1")
	env.SignUp(t, "user2")

	bid, status := placeBid(t, env, "user1", "opp1", 100)
	require.Equal(t, http.StatusCreated, status)
	bidURL := "/bids/" + bid["bid_id"].(string)

	tests := []struct {
		name       string
		method     string
		userID     string
		body       any
		wantStatus int
		wantMsg    string
	}{
		{name: "Other_Bidder_Update", method: http.MethodPatch, userID: "user2", body: map[string]string{"amount": "200"}, wantStatus: http.StatusForbidden, wantMsg: "another bidder"},
		{name: "Other_Bidder_Withdraw", method: http.MethodDelete, userID: "user2", wantStatus: http.StatusForbidden, wantMsg: "another bidder"},
		{name: "Not_An_Increase", method: http.MethodPatch, userID: "user1", body: map[string]string{"amount": "100"}, wantStatus: http.StatusConflict, wantMsg: "$100.00"},
		{name: "Raise", method: http.MethodPatch, userID: "user1", body: map[string]string{"amount": "125.50"}, wantStatus: http.StatusOK, wantMsg: "bid updated successfully"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, w := ExecuteRequestAndParse(t, env.Router, tt.method, bidURL, tt.userID, tt.body)
			require.Equal(t, tt.wantStatus, w.Code)
			require.Contains(t, resp["message"], tt.wantMsg)
		})
	}

	agg := env.Aggregate(t, "opp1")
	require.True(t, agg.CurrentHighestBid.Equal(decimal.RequireFromString("125.50")))
	require.Equal(t, "user1", agg.HighestBidderID)
}

// GetBidsByOpportunityHandler Tests
func TestGetBidsByOpportunityHandler(t *testing.T) {
	env := SetupTestEnv(t)
	env.SeedOpportunity(t, "opp1", time.Hour)
	env.SeedOpportunity(t, "opp2", time.Hour)
	env.SignUp(t, "user1")

	_, status := placeBid(t, env, "user1", "opp1", 100)
	require.Equal(t, http.StatusCreated, status)

	tests := []struct {
		name          string
		opportunityID string
		wantCount     int
	}{
		{name: "With_Bids", opportunityID: "opp1", wantCount: 1},
		{name: "No_Bids", opportunityID: "opp2", wantCount: 0},
		{name: "Opportunity_Not_Found", opportunityID: "nonexistent", wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, w := ExecuteRequestAndParse(t, env.Router, http.MethodGet, "/opportunities/"+tt.opportunityID+"/bids", "", nil)
			require.Equal(t, http.StatusOK, w.Code)
			require.Len(t, resp["data"].([]any), tt.wantCount)
		})
	}
}

// GetBidsByUserHandler Tests
func TestGetBidsByUserHandler(t *testing.T) {
	env := SetupTestEnv(t)
	env.SeedOpportunity(t, "opp1", time.Hour)
	env.SeedOpportunity(t, "opp2", time.Hour)
	env.SignUp(t, "user1")

	for _, id := range []string{"opp1", "opp2"} {
		_, status := placeBid(t, env, "user1", id, 100)
		require.Equal(t, http.StatusCreated, status)
	}

	tests := []struct {
		name            string
		caller          string
		userID          string
		wantStatus      int
		wantOpportunity []string
	}{
		{name: "Own_Bids", caller: "user1", userID: "user1", wantStatus: http.StatusOK, wantOpportunity: []string{"opp1", "opp2"}},
		{name: "No_Bids", caller: "user2", userID: "user2", wantStatus: http.StatusOK, wantOpportunity: []string{}},
		{name: "Someone_Else", caller: "user2", userID: "user1", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, w := ExecuteRequestAndParse(t, env.Router, http.MethodGet, "/users/"+tt.userID+"/bids", tt.caller, nil)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			bids := resp["data"].([]any)
			require.Len(t, bids, len(tt.wantOpportunity))
			seen := map[string]bool{}
			for _, b := range bids {
				seen[b.(map[string]any)["opportunity_id"].(string)] = true
			}
			for _, id := range tt.wantOpportunity {
				require.True(t, seen[id])
			}
		})
	}
}

func TestCreateOpportunity(t *testing.T) {
	env := SetupTestEnv(t)
	env.SignUp(t, "user1")

	body := map[string]any{
		"title":        "Snow clearing",
		"description":  "Parking lot, winter season",
		"closing_date": env.Now.Add(72 * time.Hour).Format(time.RFC3339),
	}

	_, w := ExecuteRequestAndParse(t, env.Router, http.MethodPost, "/opportunities", "user1", body)
	require.Equal(t, http.StatusForbidden, w.Code)

	created, w := ExecuteRequestAndParse(t, env.Router, http.MethodPost, "/opportunities", "admin", body)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "Snow clearing", created["title"])
	require.Equal(t, false, created["closed"])

	list, w := ExecuteRequestAndParse(t, env.Router, http.MethodGet, "/opportunities", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, list["data"].([]any), 1)

	_, status := placeBid(t, env, "user1", created["opportunity_id"].(string), 40)
	require.Equal(t, http.StatusCreated, status)
}
