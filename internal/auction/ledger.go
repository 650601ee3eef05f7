package auction

import (
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"context"
	"errors"
	"fmt"
)

// Ledger is the append-only record of accepted bids, backed by the durable store.
type Ledger struct {
	store repository.AuctionStore
}

func NewLedger(store repository.AuctionStore) *Ledger {
	return &Ledger{store: store}
}

// Append records bid together with next, the auction state it produces, as one atomic commit.
// Storage failures are reported as ErrPersistence; a closed auction as ErrAuctionClosed.
func (l *Ledger) Append(ctx context.Context, next models.Auction, bid models.Bid) error {
	err := l.store.CommitBid(ctx, next, bid)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, biddingerrors.ErrAuctionClosed):
		return fmt.Errorf("ledger: append bid to auction %s: %w", bid.AuctionID, err)
	default:
		return fmt.Errorf("ledger: append bid %d to auction %s: %w: %w", bid.Seq, bid.AuctionID, biddingerrors.ErrPersistence, err)
	}
}

// Seal writes the final state of a closed auction.
func (l *Ledger) Seal(ctx context.Context, final models.Auction) error {
	if err := l.store.CloseAuction(ctx, final); err != nil {
		return fmt.Errorf("ledger: seal auction %s: %w: %w", final.AuctionID, biddingerrors.ErrPersistence, err)
	}
	return nil
}

// ListByAuction returns an auction's bids in append order.
func (l *Ledger) ListByAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	bids, err := l.store.ListBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// ListByBidder returns every bid a bidder placed, across auctions.
func (l *Ledger) ListByBidder(ctx context.Context, bidderID string) ([]models.Bid, error) {
	bids, err := l.store.ListBidsByBidder(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list bids for bidder %s: %w", bidderID, err)
	}
	return bids, nil
}
