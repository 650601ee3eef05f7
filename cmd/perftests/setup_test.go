package perftests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"auction-engine/internal/auction"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/identity"
	"auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/internal/repository"

	"github.com/shopspring/decimal"
)

// benchBidders is the size of the bidder directory every benchmark resolves against.
const benchBidders = 1000

// newBenchService builds the full engine over an in-memory store with numAuctions open auctions.
func newBenchService(tb testing.TB, numAuctions int, startingPrice int64) *bidding.BiddingService {
	tb.Helper()

	directory := identity.NewDirectory()
	for i := 0; i < benchBidders; i++ {
		directory.Add(models.Bidder{BidderID: bidderID(i), DisplayName: fmt.Sprintf("Bench Bidder %d", i)})
	}

	registry := auction.NewRegistry(auction.Config{}, auction.Deps{
		Store:    repository.NewMemoryRepo(),
		Resolver: directory,
		Hub:      notify.NewHub(notify.DefaultBufferSize),
	})
	svc := bidding.NewBiddingService(registry)

	ctx := context.Background()
	end := time.Now().Add(time.Hour)
	for i := 0; i < numAuctions; i++ {
		if _, err := svc.OpenAuction(ctx, auctionID(i), decimal.NewFromInt(startingPrice), end); err != nil {
			tb.Fatalf("failed to open auction: %v", err)
		}
	}
	return svc
}

func auctionID(i int) string { return fmt.Sprintf("auction_%d", i) }

func bidderID(i int) string { return fmt.Sprintf("bidder_%d", i%benchBidders) }
