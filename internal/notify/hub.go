// Package notify fans auction events out to live subscribers.
//
// Every subscription owns a bounded buffer. Publish never blocks: a subscriber
// whose buffer is full is disconnected and the others keep receiving. Events of
// one auction reach each subscriber in publish order.
package notify

import (
	"auction-engine/internal/models"
	"auction-engine/utils"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultBufferSize is used when NewHub is given a non-positive size.
const DefaultBufferSize = 64

// ErrSlowSubscriber is reported by Subscription.Err when its buffer overflowed.
var ErrSlowSubscriber = errors.New("subscriber buffer exhausted")

// Hub keeps per-auction subscriber sets.
type Hub struct {
	mu         sync.RWMutex
	auctions   map[string]map[string]*Subscription // key: auctionID -> subscriptionID -> subscription
	bufferSize int
}

// NewHub creates a hub whose subscriptions buffer up to bufferSize events.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		auctions:   make(map[string]map[string]*Subscription),
		bufferSize: bufferSize,
	}
}

// Subscribe registers interest in auctionID. Only events published after this call are delivered.
func (h *Hub) Subscribe(auctionID string) *Subscription {
	sub := &Subscription{
		id:        uuid.NewString(),
		auctionID: auctionID,
		events:    make(chan models.Event, h.bufferSize),
		hub:       h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.auctions[auctionID]
	if !ok {
		subs = make(map[string]*Subscription)
		h.auctions[auctionID] = subs
	}
	subs[sub.id] = sub
	return sub
}

// Publish delivers ev to every current subscriber of auctionID and returns how many received it.
func (h *Hub) Publish(auctionID string, ev models.Event) int {
	var slow []*Subscription
	delivered := 0

	h.mu.RLock()
	for _, sub := range h.auctions[auctionID] {
		if sub.dropped.Load() {
			continue
		}
		select {
		case sub.events <- ev:
			delivered++
		default:
			// Stop delivering to it right away so it never sees a gap followed by later events.
			sub.dropped.Store(true)
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.remove(sub, ErrSlowSubscriber)
		utils.Warn("notify: subscriber disconnected", map[string]any{
			"auction_id":      auctionID,
			"subscription_id": sub.id,
			"error":           ErrSlowSubscriber.Error(),
		})
	}
	return delivered
}

// CloseAuction delivers the final event of an auction and ends all of its subscriptions.
func (h *Hub) CloseAuction(auctionID string, final models.Event) int {
	delivered := h.Publish(auctionID, final)

	h.mu.Lock()
	subs := h.auctions[auctionID]
	delete(h.auctions, auctionID)
	for _, sub := range subs {
		sub.close(nil)
	}
	h.mu.Unlock()

	return delivered
}

// Unsubscribe releases sub. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.remove(sub, nil)
}

// Subscribers returns the number of live subscriptions for auctionID.
func (h *Hub) Subscribers(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.auctions[auctionID])
}

func (h *Hub) remove(sub *Subscription, reason error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.auctions[sub.auctionID]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(h.auctions, sub.auctionID)
		}
	}
	sub.close(reason)
}

// Subscription is one observer's view of an auction's event stream.
type Subscription struct {
	id        string
	auctionID string
	events    chan models.Event
	hub       *Hub

	dropped atomic.Bool
	once    sync.Once
	err     error
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) AuctionID() string { return s.auctionID }

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan models.Event { return s.events }

// Err explains why Events was closed: ErrSlowSubscriber, or nil for a normal end.
// Only meaningful after Events is closed.
func (s *Subscription) Err() error { return s.err }

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

// close must be called with hub.mu held for writing.
func (s *Subscription) close(reason error) {
	s.once.Do(func() {
		s.err = reason
		close(s.events)
	})
}
