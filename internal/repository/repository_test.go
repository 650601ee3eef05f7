package repository

import (
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Helper to create a new open Auction
func newAuction(auctionID string, startingPrice int64) models.Auction {
	now := time.Now().UTC()
	return models.Auction{
		AuctionID:     auctionID,
		StartingPrice: decimal.NewFromInt(startingPrice),
		CurrentPrice:  decimal.NewFromInt(startingPrice),
		EndTime:       now.Add(time.Hour),
		Status:        models.StatusOpen,
		CreatedAt:     now,
	}
}

// Helper to create a new Bid
func newBid(auctionID, bidderID string, seq, price int64) models.Bid {
	return models.Bid{
		AuctionID:  auctionID,
		Seq:        seq,
		BidderID:   bidderID,
		BidderName: bidderID + " name",
		Price:      decimal.NewFromInt(price),
		AcceptedAt: time.Now().UTC(),
	}
}

// advance returns the auction state produced by accepting bid
func advance(a models.Auction, bid models.Bid) models.Auction {
	a.CurrentPrice = bid.Price
	a.LastSeq = bid.Seq
	return a
}

// Test CreateAuction
func TestMemoryRepo_CreateAuction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepo()
	require.NoError(t, repo.CreateAuction(ctx, newAuction("existing", 10)))

	tests := []struct {
		name    string
		auction models.Auction
		wantErr error
	}{
		{name: "new_auction", auction: newAuction("auction1", 100), wantErr: nil},
		{name: "duplicate_auction", auction: newAuction("existing", 50), wantErr: biddingerrors.ErrAlreadyExists},
		{name: "empty_auctionID", auction: newAuction("", 50), wantErr: biddingerrors.ErrInvalidAuction},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := repo.CreateAuction(ctx, tc.auction)
			if tc.wantErr != nil {
				require.True(t, errors.Is(err, tc.wantErr), "expected error: %v, got: %v", tc.wantErr, err)
				return
			}
			require.NoError(t, err)

			got, err := repo.GetAuction(ctx, tc.auction.AuctionID)
			require.NoError(t, err)
			require.Equal(t, tc.auction, got)
		})
	}
}

// Test CommitBid
func TestMemoryRepo_CommitBid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(r *MemoryRepo)
		bid     models.Bid
		wantErr error
	}{
		{
			name:  "first_bid",
			setup: func(r *MemoryRepo) {},
			bid:   newBid("auction1", "alice", 1, 150),
		},
		{
			name:    "unknown_auction",
			setup:   func(r *MemoryRepo) {},
			bid:     newBid("missing", "alice", 1, 150),
			wantErr: biddingerrors.ErrNotFound,
		},
		{
			name:    "sequence_gap",
			setup:   func(r *MemoryRepo) {},
			bid:     newBid("auction1", "alice", 2, 150),
			wantErr: biddingerrors.ErrStaleState,
		},
		{
			name: "stale_sequence",
			setup: func(r *MemoryRepo) {
				b := newBid("auction1", "bob", 1, 120)
				require.NoError(t, r.CommitBid(ctx, advance(newAuction("auction1", 100), b), b))
			},
			bid:     newBid("auction1", "alice", 1, 150),
			wantErr: biddingerrors.ErrStaleState,
		},
		{
			name: "closed_auction",
			setup: func(r *MemoryRepo) {
				a := newAuction("auction1", 100)
				require.NoError(t, r.CloseAuction(ctx, a))
			},
			bid:     newBid("auction1", "alice", 1, 150),
			wantErr: biddingerrors.ErrAuctionClosed,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := NewMemoryRepo()
			require.NoError(t, repo.CreateAuction(ctx, newAuction("auction1", 100)))
			tc.setup(repo)

			before, _ := repo.ListBidsByAuction(ctx, "auction1")
			err := repo.CommitBid(ctx, advance(newAuction(tc.bid.AuctionID, 100), tc.bid), tc.bid)
			if tc.wantErr != nil {
				require.True(t, errors.Is(err, tc.wantErr), "expected error: %v, got: %v", tc.wantErr, err)

				after, _ := repo.ListBidsByAuction(ctx, "auction1")
				require.Equal(t, before, after, "failed commit must not append")
				return
			}
			require.NoError(t, err)

			bids, err := repo.ListBidsByAuction(ctx, "auction1")
			require.NoError(t, err)
			require.Equal(t, []models.Bid{tc.bid}, bids)

			stored, err := repo.GetAuction(ctx, "auction1")
			require.NoError(t, err)
			require.True(t, stored.CurrentPrice.Equal(tc.bid.Price))
			require.Equal(t, tc.bid.Seq, stored.LastSeq)
		})
	}

	// concurrency test: only one writer can claim each sequence number
	t.Run("concurrent_same_sequence", func(t *testing.T) {
		t.Parallel()

		repo := NewMemoryRepo()
		require.NoError(t, repo.CreateAuction(ctx, newAuction("auction1", 100)))

		var wg sync.WaitGroup
		var mu sync.Mutex
		accepted := 0
		for i := 0; i < 50; i++ {
			wg.Add(1)
			i := i
			go func() {
				defer wg.Done()
				b := newBid("auction1", fmt.Sprintf("bidder-%d", i), 1, int64(200+i))
				if err := repo.CommitBid(ctx, advance(newAuction("auction1", 100), b), b); err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 1, accepted)
		bids, err := repo.ListBidsByAuction(ctx, "auction1")
		require.NoError(t, err)
		require.Len(t, bids, 1)
	})
}

// Test CloseAuction
func TestMemoryRepo_CloseAuction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepo()
	a := newAuction("auction1", 100)
	require.NoError(t, repo.CreateAuction(ctx, a))

	closedAt := time.Now().UTC()
	a.ClosedAt = &closedAt
	require.NoError(t, repo.CloseAuction(ctx, a))
	// closing twice is a no-op
	require.NoError(t, repo.CloseAuction(ctx, a))

	stored, err := repo.GetAuction(ctx, "auction1")
	require.NoError(t, err)
	require.Equal(t, models.StatusClosed, stored.Status)
	require.NotNil(t, stored.ClosedAt)

	open, err := repo.ListOpenAuctions(ctx)
	require.NoError(t, err)
	require.Empty(t, open)

	err = repo.CloseAuction(ctx, newAuction("missing", 1))
	require.True(t, errors.Is(err, biddingerrors.ErrNotFound))
}

// Test ListBidsByAuction and ListBidsByBidder
func TestMemoryRepo_ListBids(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryRepo()
	a1 := newAuction("auction1", 100)
	a2 := newAuction("auction2", 10)
	require.NoError(t, repo.CreateAuction(ctx, a1))
	require.NoError(t, repo.CreateAuction(ctx, a2))

	// Seed a large ledger to check append order is kept
	var ledger []models.Bid
	for i := int64(1); i <= 1000; i++ {
		bidder := "alice"
		if i%2 == 0 {
			bidder = "bob"
		}
		b := newBid("auction1", bidder, i, 100+i)
		a1 = advance(a1, b)
		require.NoError(t, repo.CommitBid(ctx, a1, b))
		ledger = append(ledger, b)
	}
	other := newBid("auction2", "alice", 1, 20)
	require.NoError(t, repo.CommitBid(ctx, advance(a2, other), other))

	tests := []struct {
		name      string
		list      func() ([]models.Bid, error)
		wantLen   int
		wantError error
	}{
		{name: "auction_ledger", list: func() ([]models.Bid, error) { return repo.ListBidsByAuction(ctx, "auction1") }, wantLen: 1000},
		{name: "auction_unknown", list: func() ([]models.Bid, error) { return repo.ListBidsByAuction(ctx, "missing") }, wantError: biddingerrors.ErrNotFound},
		{name: "bidder_across_auctions", list: func() ([]models.Bid, error) { return repo.ListBidsByBidder(ctx, "alice") }, wantLen: 501},
		{name: "bidder_without_bids", list: func() ([]models.Bid, error) { return repo.ListBidsByBidder(ctx, "carol") }, wantLen: 0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			bids, err := tc.list()
			if tc.wantError != nil {
				require.True(t, errors.Is(err, tc.wantError))
				return
			}
			require.NoError(t, err)
			require.Len(t, bids, tc.wantLen)
		})
	}

	t.Run("ledger_order", func(t *testing.T) {
		t.Parallel()

		bids, err := repo.ListBidsByAuction(ctx, "auction1")
		require.NoError(t, err)
		require.Equal(t, ledger, bids)
	})
}
