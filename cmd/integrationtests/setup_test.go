package integrationtests

import (
	"auction-engine/internal/auction"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/identity"
	"auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// testBidders are known to every test router.
var testBidders = []models.Bidder{
	{BidderID: "user1", DisplayName: "Alice"},
	{BidderID: "user2", DisplayName: "Bob"},
	{BidderID: "user3", DisplayName: "Carol"},
}

// SetupTestRouter wires the full stack over an in-memory store for integration testing.
func SetupTestRouter(t *testing.T, extraBidders ...models.Bidder) (*gin.Engine, *auction.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	directory := identity.NewDirectory(append(append([]models.Bidder{}, testBidders...), extraBidders...)...)
	registry := auction.NewRegistry(auction.Config{}, auction.Deps{
		Store:    repository.NewMemoryRepo(),
		Resolver: directory,
		Hub:      notify.NewHub(256),
	})
	service := bidding.NewBiddingService(registry)
	return server.SetupRouter(t.Context(), service), registry
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response
func ExecuteRequestAndParse(t *testing.T, router http.Handler, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
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
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		if err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}

	return resp, w
}

// OpenAuction opens an auction that runs for an hour and fails the test otherwise.
func OpenAuction(t *testing.T, router http.Handler, auctionID string, startingPrice string) {
	t.Helper()

	resp, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions", map[string]any{
		"auction_id":       auctionID,
		"starting_price":   startingPrice,
		"duration_seconds": int64(time.Hour / time.Second),
	})
	require.Equal(t, http.StatusCreated, w.Code, "open auction: %v", resp)
}

// PlaceBid posts a bid and returns the status code and parsed body.
func PlaceBid(t *testing.T, router http.Handler, auctionID, bidderID string, amount any) (int, map[string]any) {
	t.Helper()

	resp, w := ExecuteRequestAndParse(t, router, http.MethodPost, fmt.Sprintf("/auctions/%s/bids", auctionID), map[string]any{
		"bidder_id": bidderID,
		"amount":    amount,
	})
	return w.Code, resp
}
