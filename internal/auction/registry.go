package auction

import (
	"auction-engine/internal/archive"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/clock"
	"auction-engine/internal/identity"
	"auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/internal/repository"
	"auction-engine/utils"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/shopspring/decimal"
)

const (
	DefaultSweepInterval  = 2 * time.Second
	DefaultArchiveTimeout = 10 * time.Second
)

// Config tunes the registry's background work.
type Config struct {
	SweepInterval  time.Duration
	ArchiveTimeout time.Duration
}

// Deps are the registry's collaborators. Archiver and Clock are optional.
type Deps struct {
	Store    repository.AuctionStore
	Resolver identity.Resolver
	Hub      *notify.Hub
	Archiver archive.Archiver
	Clock    clock.Clock
}

// Registry owns the active auctions and routes every request to the one
// Processor responsible for it.
type Registry struct {
	cfg      Config
	store    repository.AuctionStore
	ledger   *Ledger
	resolver identity.Resolver
	hub      *notify.Hub
	archiver archive.Archiver
	clock    clock.Clock

	processors *xsync.MapOf[string, *Processor]
	// lifecycle serializes Open, Recover and closing auctions we do not own; never taken on the bid path
	lifecycle sync.Mutex
	archiving sync.WaitGroup
}

func NewRegistry(cfg Config, deps Deps) *Registry {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = DefaultArchiveTimeout
	}
	if deps.Archiver == nil {
		deps.Archiver = archive.Noop{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if deps.Hub == nil {
		deps.Hub = notify.NewHub(notify.DefaultBufferSize)
	}

	return &Registry{
		cfg:        cfg,
		store:      deps.Store,
		ledger:     NewLedger(deps.Store),
		resolver:   deps.Resolver,
		hub:        deps.Hub,
		archiver:   deps.Archiver,
		clock:      deps.Clock,
		processors: xsync.NewMapOf[string, *Processor](),
	}
}

// Open creates an auction and makes it active.
func (r *Registry) Open(ctx context.Context, auctionID string, startingPrice decimal.Decimal, endTime time.Time) (models.Auction, error) {
	now := r.clock.Now()
	switch {
	case strings.TrimSpace(auctionID) == "":
		return models.Auction{}, fmt.Errorf("registry: auction id is empty: %w", biddingerrors.ErrInvalidAuction)
	case strings.ContainsAny(auctionID, `/\`) || strings.Contains(auctionID, ".."):
		// ids end up in archive object keys
		return models.Auction{}, fmt.Errorf("registry: auction id %q contains a path separator: %w", auctionID, biddingerrors.ErrInvalidAuction)
	case startingPrice.IsNegative():
		return models.Auction{}, fmt.Errorf("registry: starting price %s is negative: %w", startingPrice, biddingerrors.ErrInvalidAuction)
	case !endTime.After(now):
		return models.Auction{}, fmt.Errorf("registry: end time %s is not in the future: %w", endTime.Format(time.RFC3339), biddingerrors.ErrInvalidAuction)
	}

	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if _, ok := r.processors.Load(auctionID); ok {
		return models.Auction{}, fmt.Errorf("registry: auction %s: %w", auctionID, biddingerrors.ErrAlreadyExists)
	}

	a := models.Auction{
		AuctionID:     auctionID,
		StartingPrice: startingPrice,
		CurrentPrice:  startingPrice,
		EndTime:       endTime.UTC(),
		Status:        models.StatusOpen,
		CreatedAt:     now,
	}
	if err := r.store.CreateAuction(ctx, a); err != nil {
		if errors.Is(err, biddingerrors.ErrAlreadyExists) {
			return models.Auction{}, fmt.Errorf("registry: %w", err)
		}
		return models.Auction{}, fmt.Errorf("registry: create auction %s: %w: %w", auctionID, biddingerrors.ErrPersistence, err)
	}

	r.processors.Store(auctionID, r.newProcessor(a))
	utils.Info("auction opened", map[string]any{
		"auction_id":     auctionID,
		"starting_price": startingPrice.String(),
		"end_time":       a.EndTime.Format(time.RFC3339),
	})
	return a, nil
}

// Submit routes a bid to the auction's processor.
func (r *Registry) Submit(ctx context.Context, auctionID, bidderID string, price decimal.Decimal) (models.Bid, error) {
	p, ok := r.processors.Load(auctionID)
	if !ok {
		return models.Bid{}, r.inactive(ctx, auctionID)
	}

	bid, err := p.Submit(ctx, bidderID, price)
	if err != nil {
		return models.Bid{}, fmt.Errorf("registry: %w", err)
	}
	return bid, nil
}

// Close ends an auction. Closing an auction that is already closed is a no-op.
func (r *Registry) Close(ctx context.Context, auctionID string) error {
	if p, ok := r.processors.Load(auctionID); ok {
		if err := p.Close(ctx, "closed by request"); err != nil {
			return fmt.Errorf("registry: %w", err)
		}
		return nil
	}

	r.lifecycle.Lock()
	// Open may have registered it since the first lookup.
	if _, ok := r.processors.Load(auctionID); ok {
		r.lifecycle.Unlock()
		return r.Close(ctx, auctionID)
	}
	defer r.lifecycle.Unlock()

	a, err := r.lookup(ctx, auctionID)
	if err != nil {
		return err
	}
	if a.Status == models.StatusClosed {
		return nil
	}

	// Open in the store but not owned here (not recovered yet).
	now := r.clock.Now()
	a.Status = models.StatusClosed
	a.ClosedAt = &now
	if err := r.ledger.Seal(ctx, a); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	return nil
}

// Get returns the current snapshot of an auction, active or closed.
func (r *Registry) Get(ctx context.Context, auctionID string) (models.Auction, error) {
	if p, ok := r.processors.Load(auctionID); ok {
		return p.Snapshot(), nil
	}
	return r.lookup(ctx, auctionID)
}

// Active lists the auctions this registry owns that still accept bids, ordered by id.
// An auction past its end time is left out even before the sweep closes it.
func (r *Registry) Active() []models.Auction {
	now := r.clock.Now()
	auctions := make([]models.Auction, 0, r.processors.Size())
	r.processors.Range(func(_ string, p *Processor) bool {
		if snap := p.Snapshot(); snap.IsOpen(now) {
			auctions = append(auctions, snap)
		}
		return true
	})
	slices.SortFunc(auctions, func(a, b models.Auction) int {
		return strings.Compare(a.AuctionID, b.AuctionID)
	})
	return auctions
}

// Bids returns an auction's ledger in acceptance order.
func (r *Registry) Bids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	bids, err := r.ledger.ListByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return bids, nil
}

// BidsByBidder returns every bid a bidder placed.
func (r *Registry) BidsByBidder(ctx context.Context, bidderID string) ([]models.Bid, error) {
	bids, err := r.ledger.ListByBidder(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return bids, nil
}

// Subscribe registers an observer for an active auction. Events committed
// before the call are not replayed.
func (r *Registry) Subscribe(ctx context.Context, auctionID string) (*notify.Subscription, error) {
	p, ok := r.processors.Load(auctionID)
	if !ok {
		return nil, r.inactive(ctx, auctionID)
	}
	if p.Snapshot().Status == models.StatusClosed {
		return nil, fmt.Errorf("registry: auction %s: %w", auctionID, biddingerrors.ErrAuctionClosed)
	}

	sub := r.hub.Subscribe(auctionID)
	// The auction may have closed before the hub saw the subscription; it would never be ended.
	if p.Snapshot().Status == models.StatusClosed {
		sub.Close()
		return nil, fmt.Errorf("registry: auction %s: %w", auctionID, biddingerrors.ErrAuctionClosed)
	}
	return sub, nil
}

// Sweep closes every auction whose end time has passed and retries final
// writes that failed earlier. It returns how many auctions were finalized.
func (r *Registry) Sweep(ctx context.Context) int {
	now := r.clock.Now()
	var due []*Processor
	r.processors.Range(func(_ string, p *Processor) bool {
		if p.needsSweep(now) {
			due = append(due, p)
		}
		return true
	})

	finalized := 0
	for _, p := range due {
		if err := p.Close(ctx, "end time reached"); err != nil {
			utils.Error("registry: sweep failed to close auction", map[string]any{
				"auction_id": p.AuctionID(),
				"error":      err.Error(),
			})
			continue
		}
		finalized++
	}
	return finalized
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	utils.Info("auction sweeper started", map[string]any{"interval": r.cfg.SweepInterval.String()})
	for {
		select {
		case <-ctx.Done():
			utils.Info("auction sweeper stopped", nil)
			return nil
		case <-ticker.C:
			if n := r.Sweep(ctx); n > 0 {
				utils.Info("sweep closed auctions", map[string]any{"count": n})
			}
		}
	}
}

// Recover takes ownership of every auction the store still has open.
// Auctions whose end time passed while nobody owned them are closed by the next sweep.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	open, err := r.store.ListOpenAuctions(ctx)
	if err != nil {
		return 0, fmt.Errorf("registry: recover: %w: %w", biddingerrors.ErrPersistence, err)
	}

	recovered := 0
	for _, a := range open {
		if _, loaded := r.processors.LoadOrStore(a.AuctionID, r.newProcessor(a)); !loaded {
			recovered++
		}
	}
	if recovered > 0 {
		utils.Info("auctions recovered", map[string]any{"count": recovered})
	}
	return recovered, nil
}

func (r *Registry) newProcessor(a models.Auction) *Processor {
	return NewProcessor(a, ProcessorDeps{
		Ledger:   r.ledger,
		Resolver: r.resolver,
		Hub:      r.hub,
		Clock:    r.clock,
	}, r.finalize)
}

// Wait blocks until every archive upload started so far has finished.
// Call it once nothing can close auctions any more.
func (r *Registry) Wait() {
	r.archiving.Wait()
}

// finalize runs once per auction after its closed state is durable. The archive
// upload runs in the background so the caller that closed the auction is not held up.
func (r *Registry) finalize(final models.Auction) {
	r.processors.Delete(final.AuctionID)

	r.archiving.Add(1)
	go func() {
		defer r.archiving.Done()
		r.archive(final)
	}()
}

func (r *Registry) archive(final models.Auction) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ArchiveTimeout)
	defer cancel()

	bids, err := r.ledger.ListByAuction(ctx, final.AuctionID)
	if err == nil {
		err = r.archiver.Archive(ctx, final, bids)
	}
	if err != nil {
		utils.Warn("registry: failed to archive auction", map[string]any{
			"auction_id": final.AuctionID,
			"error":      err.Error(),
		})
	}
}

// inactive explains why auctionID has no processor.
func (r *Registry) inactive(ctx context.Context, auctionID string) error {
	a, err := r.lookup(ctx, auctionID)
	if err != nil {
		return err
	}
	if a.Status == models.StatusClosed {
		return fmt.Errorf("registry: auction %s: %w", auctionID, biddingerrors.ErrAuctionClosed)
	}
	return fmt.Errorf("registry: auction %s is not active: %w", auctionID, biddingerrors.ErrNotFound)
}

func (r *Registry) lookup(ctx context.Context, auctionID string) (models.Auction, error) {
	a, err := r.store.GetAuction(ctx, auctionID)
	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, biddingerrors.ErrNotFound):
		return models.Auction{}, fmt.Errorf("registry: %w", err)
	default:
		return models.Auction{}, fmt.Errorf("registry: get auction %s: %w: %w", auctionID, biddingerrors.ErrPersistence, err)
	}
}
