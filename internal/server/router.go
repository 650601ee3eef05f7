package server

import (
	"context"
	"net/http"

	handler "auction-engine/services/bidding/handler"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application.
// Event streams are closed when streams is done.
func SetupRouter(streams context.Context, service handler.AuctionService) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(service).WithStreamContext(streams)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auctions := router.Group("/auctions")
	{
		auctions.POST("", biddingHandler.OpenAuctionHandler)
		auctions.GET("", biddingHandler.ListAuctionsHandler)
		auctions.GET("/:auction_id", biddingHandler.GetAuctionHandler)
		auctions.POST("/:auction_id/close", biddingHandler.CloseAuctionHandler)
		auctions.POST("/:auction_id/bids", biddingHandler.PlaceBidHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/winning", biddingHandler.GetWinningBidHandler)
		auctions.GET("/:auction_id/events", biddingHandler.StreamEventsHandler)
		auctions.GET("/:auction_id/ws", biddingHandler.StreamWebSocketHandler)
	}

	bidders := router.Group("/bidders")
	{
		bidders.GET("/:bidder_id/bids", biddingHandler.GetBidsByBidderHandler)
	}

	return router
}
