package handler

//go:generate mockgen -source=bidding_handler.go -destination=mock_bidding_handler.go -package=handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type AuctionService interface {
	OpenAuction(ctx context.Context, auctionID string, startingPrice decimal.Decimal, endTime time.Time) (models.Auction, error)
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (models.Bid, error)
	CloseAuction(ctx context.Context, auctionID string) error
	GetAuction(ctx context.Context, auctionID string) (models.Auction, error)
	ListAuctions(ctx context.Context) []models.Auction
	GetBidsForAuction(ctx context.Context, auctionID string) ([]models.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error)
	GetBidsByBidder(ctx context.Context, bidderID string) ([]models.Bid, error)
	Subscribe(ctx context.Context, auctionID string) (*notify.Subscription, error)
}

type BiddingHandler struct {
	service AuctionService
	now     func() time.Time
	// streams bounds the lifetime of SSE and WebSocket connections
	streams context.Context
}

func NewBiddingHandler(service AuctionService) *BiddingHandler {
	return &BiddingHandler{
		service: service,
		now:     func() time.Time { return time.Now().UTC() },
		streams: context.Background(),
	}
}

// WithStreamContext ends every open event stream once ctx is done.
// http.Server.Shutdown does not cancel request contexts, so long-lived streams need their own signal.
func (h *BiddingHandler) WithStreamContext(ctx context.Context) *BiddingHandler {
	h.streams = ctx
	return h
}

// OpenAuctionHandler handles POST /auctions
func (h *BiddingHandler) OpenAuctionHandler(c *gin.Context) {
	var req helpers.OpenAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "OpenAuctionHandler", err)
		return
	}
	endTime, ok := req.ResolveEndTime(h.now())
	if !ok {
		helpers.HandleBindError(c, "OpenAuctionHandler", fmt.Errorf("%w - end_time or duration_seconds is required", biddingerrors.ErrInvalidRequest))
		return
	}

	a, err := h.service.OpenAuction(c.Request.Context(), req.AuctionID, *req.StartingPrice, endTime)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("OpenAuctionHandler: failed to open auction", map[string]any{
			"handler":    "OpenAuctionHandler",
			"auction_id": req.AuctionID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewAuctionResponse(a), "auction opened successfully")
	helpers.LogSuccess("OpenAuctionHandler", "auction opened successfully", map[string]any{
		"auction_id":     a.AuctionID,
		"starting_price": a.StartingPrice.String(),
		"end_time":       a.EndTime.Format(time.RFC3339),
	})
}

// ListAuctionsHandler handles GET /auctions
func (h *BiddingHandler) ListAuctionsHandler(c *gin.Context) {
	auctions := h.service.ListAuctions(c.Request.Context())
	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponses(auctions), "auctions retrieved successfully")
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	a, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("GetAuctionHandler: error retrieving auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(a), "auction retrieved successfully")
}

// CloseAuctionHandler handles POST /auctions/:auction_id/close
func (h *BiddingHandler) CloseAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	ctx := c.Request.Context()

	if err := h.service.CloseAuction(ctx, auctionID); err != nil {
		helpers.RespondError(c, err)
		utils.Error("CloseAuctionHandler: failed to close auction", map[string]any{
			"handler":    "CloseAuctionHandler",
			"auction_id": auctionID,
			"error":      err.Error(),
		})
		return
	}

	a, err := h.service.GetAuction(ctx, auctionID)
	if err != nil {
		helpers.RespondError(c, err)
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(a), "auction closed successfully")
	helpers.LogSuccess("CloseAuctionHandler", "auction closed successfully", map[string]any{
		"auction_id":    auctionID,
		"current_price": a.CurrentPrice.String(),
	})
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	bid, err := h.service.PlaceBid(c.Request.Context(), auctionID, req.BidderID, *req.Amount)
	if err != nil {
		status, _ := helpers.RespondError(c, err)
		fields := map[string]any{
			"handler":    "PlaceBidHandler",
			"auction_id": auctionID,
			"bidder_id":  req.BidderID,
			"amount":     req.Amount.String(),
			"error":      err.Error(),
		}
		// rejected bids are routine; only failures of the engine itself are errors
		if status >= http.StatusInternalServerError {
			utils.Error("PlaceBidHandler: failed to place bid", fields)
		} else {
			utils.Info("PlaceBidHandler: bid rejected", fields)
		}
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewBidResponse(bid), "bid placed successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"auction_id": bid.AuctionID,
		"seq":        bid.Seq,
		"bidder_id":  bid.BidderID,
		"amount":     bid.Price.String(),
	})
}

// GetBidsByAuctionHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.GetBidsForAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("GetBidsByAuctionHandler: error retrieving bids", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(bids),
	})
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Info("GetWinningBidHandler: no winning bid", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "winning bid retrieved successfully")
}

// GetBidsByBidderHandler handles GET /bidders/:bidder_id/bids
func (h *BiddingHandler) GetBidsByBidderHandler(c *gin.Context) {
	bidderID := c.Param("bidder_id")
	bids, err := h.service.GetBidsByBidder(c.Request.Context(), bidderID)
	if err != nil {
		helpers.RespondError(c, err)
		utils.Warn("GetBidsByBidderHandler: error retrieving bids", map[string]any{"bidder_id": bidderID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByBidderHandler", "bids retrieved successfully", map[string]any{
		"bidder_id": bidderID,
		"count":     len(bids),
	})
}
