package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// decimalEq matches a decimal argument by value rather than representation.
type decimalEq struct{ want decimal.Decimal }

func (m decimalEq) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalEq) String() string { return "equals " + m.want.String() }

func dec(s string) gomock.Matcher { return decimalEq{want: decimal.RequireFromString(s)} }

// timeEq matches a time argument by instant.
type timeEq struct{ want time.Time }

func (m timeEq) Matches(x any) bool {
	t, ok := x.(time.Time)
	return ok && t.Equal(m.want)
}

func (m timeEq) String() string { return "equals " + m.want.String() }

func newTestRouter(t *testing.T) (*gin.Engine, *MockAuctionService, *BiddingHandler) {
	t.Helper()

	ctrl := gomock.NewController(t)
	mockService := NewMockAuctionService(ctrl)
	handler := NewBiddingHandler(mockService)

	// Initialize Gin in test mode
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/auctions", handler.OpenAuctionHandler)
	router.GET("/auctions", handler.ListAuctionsHandler)
	router.GET("/auctions/:auction_id", handler.GetAuctionHandler)
	router.POST("/auctions/:auction_id/close", handler.CloseAuctionHandler)
	router.POST("/auctions/:auction_id/bids", handler.PlaceBidHandler)
	router.GET("/auctions/:auction_id/bids", handler.GetBidsByAuctionHandler)
	router.GET("/auctions/:auction_id/winning", handler.GetWinningBidHandler)
	router.GET("/bidders/:bidder_id/bids", handler.GetBidsByBidderHandler)
	router.GET("/auctions/:auction_id/events", handler.StreamEventsHandler)
	router.GET("/auctions/:auction_id/ws", handler.StreamWebSocketHandler)
	return router, mockService, handler
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func sampleAuction(id string) models.Auction {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.Auction{
		AuctionID:     id,
		StartingPrice: decimal.NewFromInt(100),
		CurrentPrice:  decimal.NewFromInt(150),
		EndTime:       now.Add(time.Hour),
		Status:        models.StatusOpen,
		LastSeq:       1,
		CreatedAt:     now,
	}
}

// Test PlaceBidHandler
func TestPlaceBidHandler(t *testing.T) {
	t.Parallel()

	router, mockService, _ := newTestRouter(t)
	now := time.Now().UTC()

	tests := []struct {
		name           string
		auctionID      string
		requestBody    any
		mockSetup      func()
		expectedStatus int
		expectedMsg    string
		validate       func(t *testing.T, resp map[string]any)
	}{
		{
			name:        "success_valid_bid",
			auctionID:   "auction1",
			requestBody: `{"bidder_id":"user1","amount":"150.50"}`,
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "auction1", "user1", dec("150.50")).
					Return(models.Bid{
						AuctionID:  "auction1",
						Seq:        1,
						BidderID:   "user1",
						BidderName: "Alice",
						Price:      decimal.RequireFromString("150.50"),
						AcceptedAt: now,
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid placed successfully",
			validate: func(t *testing.T, resp map[string]any) {
				data := resp["data"].(map[string]any)
				require.Equal(t, "auction1", data["auction_id"])
				require.Equal(t, float64(1), data["seq"])
				require.Equal(t, "Alice", data["bidder_name"])
				require.Equal(t, "150.5", data["amount"])
			},
		},
		{
			name:        "numeric_amount",
			auctionID:   "auction2",
			requestBody: `{"bidder_id":"user1","amount":200}`,
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "auction2", "user1", dec("200")).
					Return(models.Bid{AuctionID: "auction2", Seq: 3, BidderID: "user1", Price: decimal.NewFromInt(200), AcceptedAt: now}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid placed successfully",
		},
		{
			name:           "invalid_json",
			auctionID:      "auction1",
			requestBody:    `{invalid json}`,
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "missing_bidder_id",
			auctionID:      "auction1",
			requestBody:    `{"amount":"10"}`,
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "missing_amount",
			auctionID:      "auction1",
			requestBody:    `{"bidder_id":"user1"}`,
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "non_numeric_amount",
			auctionID:      "auction1",
			requestBody:    `{"bidder_id":"user1","amount":"lots"}`,
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:        "bid_too_low_reports_current_price",
			auctionID:   "auction3",
			requestBody: `{"bidder_id":"user1","amount":"120"}`,
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "auction3", "user1", dec("120")).
					Return(models.Bid{}, fmt.Errorf("registry: %w", &biddingerrors.PriceError{Current: decimal.NewFromInt(150)}))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "bid amount too low",
			validate: func(t *testing.T, resp map[string]any) {
				data := resp["data"].(map[string]any)
				require.Equal(t, "150", data["current_price"])
			},
		},
		{
			name:        "auction_closed",
			auctionID:   "auction4",
			requestBody: `{"bidder_id":"user1","amount":"200"}`,
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "auction4", "user1", dec("200")).
					Return(models.Bid{}, biddingerrors.ErrAuctionClosed)
			},
			expectedStatus: http.StatusGone,
			expectedMsg:    "auction is closed",
		},
		{
			name:        "unknown_bidder",
			auctionID:   "auction5",
			requestBody: `{"bidder_id":"ghost","amount":"200"}`,
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "auction5", "ghost", dec("200")).
					Return(models.Bid{}, biddingerrors.ErrUnknownBidder)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedMsg:    "unknown bidder",
		},
		{
			name:        "auction_not_found",
			auctionID:   "missing",
			requestBody: `{"bidder_id":"user1","amount":"200"}`,
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "missing", "user1", dec("200")).
					Return(models.Bid{}, biddingerrors.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
		},
		{
			name:        "storage_unavailable",
			auctionID:   "auction6",
			requestBody: `{"bidder_id":"user1","amount":"200"}`,
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "auction6", "user1", dec("200")).
					Return(models.Bid{}, fmt.Errorf("ledger: %w: %w", biddingerrors.ErrPersistence, errors.New("connection reset")))
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "storage unavailable",
		},
		{
			name:        "service_generic_error",
			auctionID:   "auction7",
			requestBody: `{"bidder_id":"user1","amount":"200"}`,
			mockSetup: func() {
				mockService.EXPECT().
					PlaceBid(gomock.Any(), "auction7", "user1", dec("200")).
					Return(models.Bid{}, errors.New("boom"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.mockSetup()

			status, resp := doRequest(t, router, http.MethodPost, "/auctions/"+tc.auctionID+"/bids", tc.requestBody)
			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
			if tc.validate != nil {
				tc.validate(t, resp)
			}
		})
	}
}

// Test OpenAuctionHandler
func TestOpenAuctionHandler(t *testing.T) {
	t.Parallel()

	router, mockService, handler := newTestRouter(t)
	fixedNow := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	handler.now = func() time.Time { return fixedNow }

	tests := []struct {
		name           string
		requestBody    any
		mockSetup      func()
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:        "explicit_end_time",
			requestBody: `{"auction_id":"auction1","starting_price":"100","end_time":"2026-03-01T13:00:00Z"}`,
			mockSetup: func() {
				mockService.EXPECT().
					OpenAuction(gomock.Any(), "auction1", dec("100"), timeEq{fixedNow.Add(time.Hour)}).
					Return(sampleAuction("auction1"), nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "auction opened successfully",
		},
		{
			name:        "duration",
			requestBody: `{"starting_price":0,"duration_seconds":90}`,
			mockSetup: func() {
				mockService.EXPECT().
					OpenAuction(gomock.Any(), "", dec("0"), timeEq{fixedNow.Add(90 * time.Second)}).
					Return(sampleAuction("generated"), nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "auction opened successfully",
		},
		{
			name:           "missing_starting_price",
			requestBody:    `{"duration_seconds":90}`,
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "missing_end",
			requestBody:    `{"starting_price":"10"}`,
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:        "already_exists",
			requestBody: `{"auction_id":"auction1","starting_price":"10","duration_seconds":60}`,
			mockSetup: func() {
				mockService.EXPECT().
					OpenAuction(gomock.Any(), "auction1", dec("10"), timeEq{fixedNow.Add(time.Minute)}).
					Return(models.Auction{}, biddingerrors.ErrAlreadyExists)
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "auction already exists",
		},
		{
			name:        "invalid_auction",
			requestBody: `{"auction_id":"auction2","starting_price":"-10","duration_seconds":60}`,
			mockSetup: func() {
				mockService.EXPECT().
					OpenAuction(gomock.Any(), "auction2", dec("-10"), timeEq{fixedNow.Add(time.Minute)}).
					Return(models.Auction{}, biddingerrors.ErrInvalidAuction)
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid auction details",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.mockSetup()

			status, resp := doRequest(t, router, http.MethodPost, "/auctions", tc.requestBody)
			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
		})
	}
}

// Test auction read and close handlers
func TestAuctionHandlers(t *testing.T) {
	t.Parallel()

	router, mockService, _ := newTestRouter(t)

	t.Run("get_auction", func(t *testing.T) {
		mockService.EXPECT().GetAuction(gomock.Any(), "auction1").Return(sampleAuction("auction1"), nil)

		status, resp := doRequest(t, router, http.MethodGet, "/auctions/auction1", nil)
		require.Equal(t, http.StatusOK, status)
		data := resp["data"].(map[string]any)
		require.Equal(t, "150", data["current_price"])
		require.Equal(t, "100", data["starting_price"])
		require.Equal(t, "open", data["status"])
		require.Equal(t, float64(1), data["bid_count"])
	})

	t.Run("get_auction_not_found", func(t *testing.T) {
		mockService.EXPECT().GetAuction(gomock.Any(), "missing").Return(models.Auction{}, biddingerrors.ErrNotFound)

		status, resp := doRequest(t, router, http.MethodGet, "/auctions/missing", nil)
		require.Equal(t, http.StatusNotFound, status)
		require.Contains(t, resp["message"], "auction not found")
	})

	t.Run("list_auctions", func(t *testing.T) {
		mockService.EXPECT().ListAuctions(gomock.Any()).Return([]models.Auction{sampleAuction("a"), sampleAuction("b")})

		status, resp := doRequest(t, router, http.MethodGet, "/auctions", nil)
		require.Equal(t, http.StatusOK, status)
		require.Len(t, resp["data"].([]any), 2)
	})

	t.Run("list_auctions_empty", func(t *testing.T) {
		mockService.EXPECT().ListAuctions(gomock.Any()).Return(nil)

		status, resp := doRequest(t, router, http.MethodGet, "/auctions", nil)
		require.Equal(t, http.StatusOK, status)
		require.Empty(t, resp["data"].([]any))
	})

	t.Run("close_auction", func(t *testing.T) {
		closed := sampleAuction("auction1")
		closed.Status = models.StatusClosed
		closedAt := closed.CreatedAt.Add(time.Minute)
		closed.ClosedAt = &closedAt

		gomock.InOrder(
			mockService.EXPECT().CloseAuction(gomock.Any(), "auction1").Return(nil),
			mockService.EXPECT().GetAuction(gomock.Any(), "auction1").Return(closed, nil),
		)

		status, resp := doRequest(t, router, http.MethodPost, "/auctions/auction1/close", nil)
		require.Equal(t, http.StatusOK, status)
		data := resp["data"].(map[string]any)
		require.Equal(t, "closed", data["status"])
		require.NotEmpty(t, data["closed_at"])
	})

	t.Run("close_auction_storage_failure", func(t *testing.T) {
		mockService.EXPECT().CloseAuction(gomock.Any(), "auction2").Return(biddingerrors.ErrPersistence)

		status, _ := doRequest(t, router, http.MethodPost, "/auctions/auction2/close", nil)
		require.Equal(t, http.StatusServiceUnavailable, status)
	})
}

// Test bid history handlers
func TestBidHistoryHandlers(t *testing.T) {
	t.Parallel()

	router, mockService, _ := newTestRouter(t)
	now := time.Now().UTC()
	bids := []models.Bid{
		{AuctionID: "auction1", Seq: 1, BidderID: "user1", Price: decimal.NewFromInt(110), AcceptedAt: now},
		{AuctionID: "auction1", Seq: 2, BidderID: "user2", Price: decimal.NewFromInt(120), AcceptedAt: now},
	}

	t.Run("by_auction", func(t *testing.T) {
		mockService.EXPECT().GetBidsForAuction(gomock.Any(), "auction1").Return(bids, nil)

		status, resp := doRequest(t, router, http.MethodGet, "/auctions/auction1/bids", nil)
		require.Equal(t, http.StatusOK, status)
		data := resp["data"].([]any)
		require.Len(t, data, 2)
		require.Equal(t, "120", data[1].(map[string]any)["amount"])
	})

	t.Run("by_auction_nil_slice", func(t *testing.T) {
		mockService.EXPECT().GetBidsForAuction(gomock.Any(), "auction2").Return(nil, nil)

		status, resp := doRequest(t, router, http.MethodGet, "/auctions/auction2/bids", nil)
		require.Equal(t, http.StatusOK, status)
		require.NotNil(t, resp["data"])
		require.Empty(t, resp["data"].([]any))
	})

	t.Run("winning", func(t *testing.T) {
		mockService.EXPECT().GetWinningBid(gomock.Any(), "auction1").Return(bids[1], nil)

		status, resp := doRequest(t, router, http.MethodGet, "/auctions/auction1/winning", nil)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "user2", resp["data"].(map[string]any)["bidder_id"])
	})

	t.Run("winning_no_bids", func(t *testing.T) {
		mockService.EXPECT().GetWinningBid(gomock.Any(), "auction3").Return(models.Bid{}, biddingerrors.ErrNoBids)

		status, resp := doRequest(t, router, http.MethodGet, "/auctions/auction3/winning", nil)
		require.Equal(t, http.StatusNotFound, status)
		require.Contains(t, resp["message"], "no bids")
	})

	t.Run("by_bidder", func(t *testing.T) {
		mockService.EXPECT().GetBidsByBidder(gomock.Any(), "user1").Return(bids[:1], nil)

		status, resp := doRequest(t, router, http.MethodGet, "/bidders/user1/bids", nil)
		require.Equal(t, http.StatusOK, status)
		require.Len(t, resp["data"].([]any), 1)
	})

	t.Run("by_bidder_error", func(t *testing.T) {
		mockService.EXPECT().GetBidsByBidder(gomock.Any(), "user9").Return(nil, errors.New("database failure"))

		status, resp := doRequest(t, router, http.MethodGet, "/bidders/user9/bids", nil)
		require.Equal(t, http.StatusInternalServerError, status)
		require.Contains(t, resp["message"], "internal server error")
	})
}
