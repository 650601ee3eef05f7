package auction

import (
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/clock"
	"auction-engine/internal/identity"
	"auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/utils"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// ProcessorDeps are the collaborators a Processor works with.
type ProcessorDeps struct {
	Ledger   *Ledger
	Resolver identity.Resolver
	Hub      *notify.Hub
	Clock    clock.Clock
}

// Processor validates and commits bids for a single auction.
// Its mutex is the auction's serialization point: validate, commit, apply and
// publish happen under it, so no two bids can observe the same current price.
type Processor struct {
	mu    sync.Mutex
	state *State
	deps  ProcessorDeps

	sealed      atomic.Bool
	finalOnce   sync.Once
	onFinalized func(models.Auction)
}

// NewProcessor takes ownership of auction. onFinalized runs once, outside the
// lock, after the closed state has been written to the store.
func NewProcessor(a models.Auction, deps ProcessorDeps, onFinalized func(models.Auction)) *Processor {
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if onFinalized == nil {
		onFinalized = func(models.Auction) {}
	}
	return &Processor{
		state:       NewState(a),
		deps:        deps,
		onFinalized: onFinalized,
	}
}

func (p *Processor) AuctionID() string {
	return p.state.View().AuctionID
}

// Snapshot returns the last committed state without waiting for in-flight bids.
func (p *Processor) Snapshot() models.Auction {
	return p.state.View()
}

// Submit places a bid. Checks run in this order: auction closed (or past its
// end time, which closes it), price not above current, unknown bidder.
// A rejected bid changes nothing. Once validation starts the bid is carried
// through even if ctx is cancelled.
func (p *Processor) Submit(ctx context.Context, bidderID string, price decimal.Decimal) (models.Bid, error) {
	ctx = context.WithoutCancel(ctx)
	auctionID := p.AuctionID()

	if p.state.View().Status == models.StatusClosed {
		return models.Bid{}, fmt.Errorf("processor: auction %s: %w", auctionID, biddingerrors.ErrAuctionClosed)
	}

	// Identity lookup does not depend on auction state and stays outside the lock.
	// Its outcome is only reported once the closed and price checks pass.
	bidder, resolveErr := p.deps.Resolver.Resolve(ctx, bidderID)

	defer p.finalizeIfSealed()
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.deps.Clock.Now()
	if p.state.Closed() {
		return models.Bid{}, fmt.Errorf("processor: auction %s: %w", auctionID, biddingerrors.ErrAuctionClosed)
	}
	if p.state.Expired(now) {
		if err := p.closeLocked(ctx, now, "end time reached"); err != nil {
			utils.Error("processor: failed to seal expired auction", map[string]any{
				"auction_id": auctionID,
				"error":      err.Error(),
			})
		}
		return models.Bid{}, fmt.Errorf("processor: auction %s ended: %w", auctionID, biddingerrors.ErrAuctionClosed)
	}
	if err := p.state.CheckPrice(price); err != nil {
		return models.Bid{}, fmt.Errorf("processor: auction %s: %w", auctionID, err)
	}
	if resolveErr != nil {
		if errors.Is(resolveErr, biddingerrors.ErrUnknownBidder) {
			return models.Bid{}, fmt.Errorf("processor: %w", resolveErr)
		}
		return models.Bid{}, fmt.Errorf("processor: bidder %s: %w: %w", bidderID, biddingerrors.ErrUnknownBidder, resolveErr)
	}

	next, bid := p.state.Propose(bidder, price, now)
	if err := p.deps.Ledger.Append(ctx, next, bid); err != nil {
		if errors.Is(err, biddingerrors.ErrAuctionClosed) {
			// Closed in the store behind our back; follow it.
			_ = p.closeLocked(ctx, now, "closed in store")
		}
		return models.Bid{}, fmt.Errorf("processor: %w", err)
	}
	if err := p.state.Apply(next); err != nil {
		// Cannot happen while the lock is held; the store already has the bid, so surface loudly.
		utils.Error("processor: committed bid could not be applied", map[string]any{
			"auction_id": auctionID,
			"seq":        bid.Seq,
			"error":      err.Error(),
		})
		return models.Bid{}, fmt.Errorf("processor: %w", err)
	}

	p.deps.Hub.Publish(auctionID, models.Event{
		Type:         models.EventBidAccepted,
		AuctionID:    auctionID,
		Bid:          &bid,
		CurrentPrice: bid.Price,
		OccurredAt:   now,
	})

	return bid, nil
}

// Close ends the auction and writes its final state. Closing twice is a no-op.
// If the write fails the auction stays closed in memory and a later Close retries it.
func (p *Processor) Close(ctx context.Context, reason string) error {
	defer p.finalizeIfSealed()
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closeLocked(ctx, p.deps.Clock.Now(), reason)
}

// needsSweep reports an auction past its end time, or closed but not yet written to the store.
func (p *Processor) needsSweep(now time.Time) bool {
	snap := p.state.View()
	if snap.Status == models.StatusClosed {
		return !p.sealed.Load()
	}
	return !now.Before(snap.EndTime)
}

func (p *Processor) closeLocked(ctx context.Context, now time.Time, reason string) error {
	if p.state.Close(now) {
		final := p.state.View()
		p.deps.Hub.CloseAuction(final.AuctionID, models.Event{
			Type:         models.EventAuctionClosed,
			AuctionID:    final.AuctionID,
			CurrentPrice: final.CurrentPrice,
			OccurredAt:   now,
		})
		utils.Info("auction closed", map[string]any{
			"auction_id":    final.AuctionID,
			"reason":        reason,
			"current_price": final.CurrentPrice.String(),
			"bids":          final.LastSeq,
		})
	}

	if p.sealed.Load() {
		return nil
	}
	if err := p.deps.Ledger.Seal(ctx, p.state.View()); err != nil {
		return fmt.Errorf("processor: %w", err)
	}
	p.sealed.Store(true)
	return nil
}

func (p *Processor) finalizeIfSealed() {
	if !p.sealed.Load() {
		return
	}
	p.finalOnce.Do(func() {
		p.onFinalized(p.state.View())
	})
}
