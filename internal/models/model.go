package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	StatusOpen   AuctionStatus = "open"
	StatusClosed AuctionStatus = "closed"
)

// Bidder represents a participant resolved by the identity collaborator
type Bidder struct {
	BidderID    string `json:"bidder_id"`
	DisplayName string `json:"display_name"`
}

// Auction represents one auction's price and lifecycle
type Auction struct {
	AuctionID     string          `json:"auction_id"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	EndTime       time.Time       `json:"end_time"`
	Status        AuctionStatus   `json:"status"`
	LastSeq       int64           `json:"last_seq"`
	CreatedAt     time.Time       `json:"created_at"`
	ClosedAt      *time.Time      `json:"closed_at,omitempty"`
}

// IsOpen reports whether the auction still accepts bids at the given instant
func (a Auction) IsOpen(now time.Time) bool {
	return a.Status == StatusOpen && now.Before(a.EndTime)
}

// Bid represents an accepted bid on an auction
type Bid struct {
	AuctionID  string          `json:"auction_id"`
	Seq        int64           `json:"seq"`
	BidderID   string          `json:"bidder_id"`
	BidderName string          `json:"bidder_name"`
	Price      decimal.Decimal `json:"price"`
	AcceptedAt time.Time       `json:"accepted_at"`
}

// EventType names the kind of event delivered to subscribers
type EventType string

const (
	EventBidAccepted   EventType = "bid_accepted"
	EventAuctionClosed EventType = "auction_closed"
)

// Event is delivered to every subscriber of an auction
type Event struct {
	Type         EventType       `json:"type"`
	AuctionID    string          `json:"auction_id"`
	Bid          *Bid            `json:"bid,omitempty"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	OccurredAt   time.Time       `json:"occurred_at"`
}
