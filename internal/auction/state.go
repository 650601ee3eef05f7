package auction

import (
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// State is the lifecycle and price of one auction: Open -> Closed, nothing else.
// Mutators must be called by the owning Processor while it holds its lock;
// View may be called from anywhere.
type State struct {
	auction models.Auction
	view    atomic.Pointer[models.Auction]
}

// NewState wraps a stored auction. A fresh auction starts at its starting price.
func NewState(a models.Auction) *State {
	if a.Status == "" {
		a.Status = models.StatusOpen
	}
	if a.LastSeq == 0 && a.CurrentPrice.IsZero() {
		a.CurrentPrice = a.StartingPrice
	}
	s := &State{auction: a}
	s.publish()
	return s
}

// View returns the last committed snapshot without taking the processor lock.
func (s *State) View() models.Auction {
	return *s.view.Load()
}

func (s *State) Closed() bool {
	return s.auction.Status == models.StatusClosed
}

// Expired reports an auction that is still open although its end time has been reached.
func (s *State) Expired(now time.Time) bool {
	return s.auction.Status == models.StatusOpen && !now.Before(s.auction.EndTime)
}

// CheckPrice rejects any price that is not strictly above the current price.
func (s *State) CheckPrice(price decimal.Decimal) error {
	if !price.GreaterThan(s.auction.CurrentPrice) {
		return &biddingerrors.PriceError{Current: s.auction.CurrentPrice}
	}
	return nil
}

// Propose builds the bid and the auction state accepting it would produce. Nothing is mutated.
func (s *State) Propose(bidder models.Bidder, price decimal.Decimal, now time.Time) (models.Auction, models.Bid) {
	bid := models.Bid{
		AuctionID:  s.auction.AuctionID,
		Seq:        s.auction.LastSeq + 1,
		BidderID:   bidder.BidderID,
		BidderName: bidder.DisplayName,
		Price:      price,
		AcceptedAt: now,
	}

	next := s.auction
	next.CurrentPrice = price
	next.LastSeq = bid.Seq
	return next, bid
}

// Apply installs a proposed state once it has been committed.
func (s *State) Apply(next models.Auction) error {
	switch {
	case s.Closed():
		return fmt.Errorf("state: apply to auction %s: %w", s.auction.AuctionID, biddingerrors.ErrAuctionClosed)
	case next.LastSeq != s.auction.LastSeq+1:
		return fmt.Errorf("state: apply seq %d at seq %d: %w", next.LastSeq, s.auction.LastSeq, biddingerrors.ErrStaleState)
	case !next.CurrentPrice.GreaterThan(s.auction.CurrentPrice):
		return fmt.Errorf("state: apply price %s: %w", next.CurrentPrice, &biddingerrors.PriceError{Current: s.auction.CurrentPrice})
	}

	s.auction.CurrentPrice = next.CurrentPrice
	s.auction.LastSeq = next.LastSeq
	s.publish()
	return nil
}

// Close moves the auction to Closed. It returns false when it already was.
func (s *State) Close(now time.Time) bool {
	if s.Closed() {
		return false
	}
	s.auction.Status = models.StatusClosed
	s.auction.ClosedAt = &now
	s.publish()
	return true
}

func (s *State) publish() {
	snap := s.auction
	s.view.Store(&snap)
}
