package identity

//go:generate mockgen -source=identity.go -destination=mock_identity.go -package=identity

import (
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// Resolver resolves a bidder id to a known participant.
// Unknown bidders yield an error wrapping biddingerrors.ErrUnknownBidder.
type Resolver interface {
	Resolve(ctx context.Context, bidderID string) (models.Bidder, error)
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(ctx context.Context, bidderID string) (models.Bidder, error)

func (f ResolverFunc) Resolve(ctx context.Context, bidderID string) (models.Bidder, error) {
	return f(ctx, bidderID)
}

// Directory is an in-memory Resolver
type Directory struct {
	mu      sync.RWMutex
	bidders map[string]models.Bidder
}

// NewDirectory creates a directory seeded with bidders
func NewDirectory(bidders ...models.Bidder) *Directory {
	d := &Directory{bidders: make(map[string]models.Bidder, len(bidders))}
	for _, b := range bidders {
		d.bidders[b.BidderID] = b
	}
	return d
}

// Add registers or replaces a bidder
func (d *Directory) Add(b models.Bidder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bidders[b.BidderID] = b
}

// Resolve returns the bidder registered under bidderID
func (d *Directory) Resolve(_ context.Context, bidderID string) (models.Bidder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, ok := d.bidders[bidderID]
	if !ok {
		return models.Bidder{}, fmt.Errorf("resolve bidder %s: %w", bidderID, biddingerrors.ErrUnknownBidder)
	}
	return b, nil
}

// CachedResolver remembers successful resolutions of a slower Resolver.
// Misses are not cached so a newly registered bidder is visible on the next bid.
type CachedResolver struct {
	next  Resolver
	cache *lru.Cache
}

// NewCachedResolver wraps next with an LRU cache holding up to size bidders
func NewCachedResolver(next Resolver, size int) (*CachedResolver, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("identity: create cache: %w", err)
	}
	return &CachedResolver{next: next, cache: cache}, nil
}

func (c *CachedResolver) Resolve(ctx context.Context, bidderID string) (models.Bidder, error) {
	if cached, ok := c.cache.Get(bidderID); ok {
		return cached.(models.Bidder), nil
	}

	b, err := c.next.Resolve(ctx, bidderID)
	if err != nil {
		return models.Bidder{}, err
	}
	c.cache.Add(bidderID, b)
	return b, nil
}

// Forget drops a cached bidder
func (c *CachedResolver) Forget(bidderID string) {
	c.cache.Remove(bidderID)
}
