package repository

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

import (
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"context"
	"fmt"
	"sync"
)

// AuctionStore defines the durable storage interface for auctions and their bid ledgers
type AuctionStore interface {
	CreateAuction(ctx context.Context, auction models.Auction) error
	GetAuction(ctx context.Context, auctionID string) (models.Auction, error)
	ListOpenAuctions(ctx context.Context) ([]models.Auction, error)
	// CommitBid appends bid and writes auction (the post-commit state) atomically.
	// The stored auction must be open and at sequence bid.Seq-1.
	CommitBid(ctx context.Context, auction models.Auction, bid models.Bid) error
	CloseAuction(ctx context.Context, auction models.Auction) error
	ListBidsByAuction(ctx context.Context, auctionID string) ([]models.Bid, error)
	ListBidsByBidder(ctx context.Context, bidderID string) ([]models.Bid, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionStore
type MemoryRepo struct {
	mu         sync.RWMutex
	auctions   map[string]models.Auction // key: auctionID -> value: auction
	bids       map[string][]models.Bid   // key: auctionID -> value: ledger in append order
	bidderBids map[string][]models.Bid   // key: bidderID -> value: bids placed by bidder
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:   make(map[string]models.Auction),
		bids:       make(map[string][]models.Bid),
		bidderBids: make(map[string][]models.Bid),
	}
}

// CreateAuction stores a new auction
func (r *MemoryRepo) CreateAuction(_ context.Context, auction models.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if auction.AuctionID == "" {
		return fmt.Errorf("create auction: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	if _, ok := r.auctions[auction.AuctionID]; ok {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, biddingerrors.ErrAlreadyExists)
	}

	r.auctions[auction.AuctionID] = auction
	return nil
}

// GetAuction returns the stored state of an auction
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return models.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrNotFound)
	}
	return auction, nil
}

// ListOpenAuctions returns every auction whose stored status is open
func (r *MemoryRepo) ListOpenAuctions(_ context.Context) ([]models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	open := make([]models.Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		if a.Status == models.StatusOpen {
			open = append(open, a)
		}
	}
	return open, nil
}

// CommitBid records an accepted bid together with the auction state it produced
func (r *MemoryRepo) CommitBid(_ context.Context, auction models.Auction, bid models.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.auctions[bid.AuctionID]
	if !ok {
		return fmt.Errorf("commit bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrNotFound)
	}
	if stored.Status != models.StatusOpen {
		return fmt.Errorf("commit bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionClosed)
	}
	if stored.LastSeq != bid.Seq-1 || auction.LastSeq != bid.Seq {
		return fmt.Errorf("commit bid %d for auction %s at seq %d: %w", bid.Seq, bid.AuctionID, stored.LastSeq, biddingerrors.ErrStaleState)
	}

	r.auctions[bid.AuctionID] = auction
	r.bids[bid.AuctionID] = append(r.bids[bid.AuctionID], bid)
	r.bidderBids[bid.BidderID] = append(r.bidderBids[bid.BidderID], bid)

	return nil
}

// CloseAuction writes the final state of an auction. Closing a closed auction is a no-op.
func (r *MemoryRepo) CloseAuction(_ context.Context, auction models.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.auctions[auction.AuctionID]
	if !ok {
		return fmt.Errorf("close auction %s: %w", auction.AuctionID, biddingerrors.ErrNotFound)
	}
	if stored.Status == models.StatusClosed {
		return nil
	}

	stored.Status = models.StatusClosed
	stored.ClosedAt = auction.ClosedAt
	r.auctions[auction.AuctionID] = stored
	return nil
}

// ListBidsByAuction returns the ledger of an auction in append order
func (r *MemoryRepo) ListBidsByAuction(_ context.Context, auctionID string) ([]models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("list bids for auction %s: %w", auctionID, biddingerrors.ErrNotFound)
	}
	return append([]models.Bid{}, r.bids[auctionID]...), nil
}

// ListBidsByBidder returns all bids placed by a bidder across auctions
func (r *MemoryRepo) ListBidsByBidder(_ context.Context, bidderID string) ([]models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]models.Bid{}, r.bidderBids[bidderID]...), nil
}
