package bidding

import (
	"auction-engine/internal/auction"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/notify"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BiddingService validates request input and hands it to the auction registry
type BiddingService struct {
	registry *auction.Registry
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(registry *auction.Registry) *BiddingService {
	return &BiddingService{
		registry: registry,
	}
}

// OpenAuction starts a new auction. An empty auctionID gets a generated one.
func (s *BiddingService) OpenAuction(ctx context.Context, auctionID string, startingPrice decimal.Decimal, endTime time.Time) (models.Auction, error) {
	auctionID = strings.TrimSpace(auctionID)
	if auctionID == "" {
		auctionID = uuid.NewString()
	}

	a, err := s.registry.Open(ctx, auctionID, startingPrice, endTime)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to open auction %s: %w", auctionID, err)
	}
	return a, nil
}

// PlaceBid validates the request shape and submits the bid
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (models.Bid, error) {
	if err := validateBid(auctionID, bidderID, amount); err != nil {
		return models.Bid{}, err
	}

	bid, err := s.registry.Submit(ctx, auctionID, bidderID, amount)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to place bid on auction %s by bidder %s: %w", auctionID, bidderID, err)
	}
	return bid, nil
}

// validateBid checks input shape only; price rules belong to the auction
func validateBid(auctionID, bidderID string, amount decimal.Decimal) error {
	if auctionID == "" || bidderID == "" {
		return fmt.Errorf("service: %w - missing auctionID or bidderID", biddingerrors.ErrInvalidRequest)
	}
	if amount.IsNegative() {
		return fmt.Errorf("service: %w - negative bid amount", biddingerrors.ErrInvalidRequest)
	}
	return nil
}

// CloseAuction ends an auction. Closing twice is not an error.
func (s *BiddingService) CloseAuction(ctx context.Context, auctionID string) error {
	if err := s.registry.Close(ctx, auctionID); err != nil {
		return fmt.Errorf("service: failed to close auction %s: %w", auctionID, err)
	}
	return nil
}

// GetAuction returns an auction's current state
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	a, err := s.registry.Get(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return a, nil
}

// ListAuctions returns the open auctions
func (s *BiddingService) ListAuctions(_ context.Context) []models.Auction {
	return s.registry.Active()
}

// GetBidsForAuction returns all bids for an auction in acceptance order
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	bids, err := s.registry.Bids(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// GetWinningBid returns the bid that set the auction's current price
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	bids, err := s.GetBidsForAuction(ctx, auctionID)
	if err != nil {
		return models.Bid{}, err
	}
	if len(bids) == 0 {
		return models.Bid{}, fmt.Errorf("service: auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	// prices strictly increase along the ledger, so the last entry is the highest
	return bids[len(bids)-1], nil
}

// GetBidsByBidder returns all bids a bidder placed across auctions
func (s *BiddingService) GetBidsByBidder(ctx context.Context, bidderID string) ([]models.Bid, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("service: %w - empty bidder ID", biddingerrors.ErrInvalidRequest)
	}

	bids, err := s.registry.BidsByBidder(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for bidder %s: %w", bidderID, err)
	}
	return bids, nil
}

// Subscribe opens a live event stream for an auction
func (s *BiddingService) Subscribe(ctx context.Context, auctionID string) (*notify.Subscription, error) {
	sub, err := s.registry.Subscribe(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to subscribe to auction %s: %w", auctionID, err)
	}
	return sub, nil
}
