package helpers

import (
	"time"

	"auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs
type OpenAuctionRequest struct {
	AuctionID       string           `json:"auction_id"`
	StartingPrice   *decimal.Decimal `json:"starting_price" binding:"required"`
	EndTime         *time.Time       `json:"end_time"`
	DurationSeconds int64            `json:"duration_seconds" binding:"omitempty,gt=0"`
}

// ResolveEndTime returns the explicit end time, or now plus the requested duration.
func (r OpenAuctionRequest) ResolveEndTime(now time.Time) (time.Time, bool) {
	switch {
	case r.EndTime != nil:
		return r.EndTime.UTC(), true
	case r.DurationSeconds > 0:
		return now.Add(time.Duration(r.DurationSeconds) * time.Second), true
	default:
		return time.Time{}, false
	}
}

// PlaceBidRequest accepts the amount as a JSON number or a decimal string.
type PlaceBidRequest struct {
	BidderID string           `json:"bidder_id" binding:"required"`
	Amount   *decimal.Decimal `json:"amount" binding:"required"`
}

type AuctionResponse struct {
	AuctionID     string `json:"auction_id"`
	StartingPrice string `json:"starting_price"`
	CurrentPrice  string `json:"current_price"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	BidCount      int64  `json:"bid_count"`
	CreatedAt     string `json:"created_at"`
	ClosedAt      string `json:"closed_at,omitempty"`
}

type BidResponse struct {
	AuctionID  string `json:"auction_id"`
	Seq        int64  `json:"seq"`
	BidderID   string `json:"bidder_id"`
	BidderName string `json:"bidder_name"`
	Amount     string `json:"amount"`
	AcceptedAt string `json:"accepted_at"`
}

// PriceErrorDetails is attached to a rejected bid so the client can rebid.
type PriceErrorDetails struct {
	CurrentPrice string `json:"current_price"`
}

// EventFrame is one live event as sent over SSE and WebSocket (JSON or CBOR).
type EventFrame struct {
	Type         string `json:"type" cbor:"type"`
	AuctionID    string `json:"auction_id" cbor:"auction_id"`
	Seq          int64  `json:"seq,omitempty" cbor:"seq,omitempty"`
	BidderID     string `json:"bidder_id,omitempty" cbor:"bidder_id,omitempty"`
	BidderName   string `json:"bidder_name,omitempty" cbor:"bidder_name,omitempty"`
	Amount       string `json:"amount,omitempty" cbor:"amount,omitempty"`
	CurrentPrice string `json:"current_price" cbor:"current_price"`
	OccurredAt   string `json:"occurred_at" cbor:"occurred_at"`
}

func NewAuctionResponse(a models.Auction) AuctionResponse {
	resp := AuctionResponse{
		AuctionID:     a.AuctionID,
		StartingPrice: a.StartingPrice.String(),
		CurrentPrice:  a.CurrentPrice.String(),
		EndTime:       a.EndTime.UTC().Format(time.RFC3339),
		Status:        string(a.Status),
		BidCount:      a.LastSeq,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.ClosedAt != nil {
		resp.ClosedAt = a.ClosedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func NewAuctionResponses(auctions []models.Auction) []AuctionResponse {
	out := make([]AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, NewAuctionResponse(a))
	}
	return out
}

func NewBidResponse(b models.Bid) BidResponse {
	return BidResponse{
		AuctionID:  b.AuctionID,
		Seq:        b.Seq,
		BidderID:   b.BidderID,
		BidderName: b.BidderName,
		Amount:     b.Price.String(),
		AcceptedAt: b.AcceptedAt.UTC().Format(time.RFC3339Nano),
	}
}

func NewBidResponses(bids []models.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, NewBidResponse(b))
	}
	return out
}

func NewEventFrame(ev models.Event) EventFrame {
	frame := EventFrame{
		Type:         string(ev.Type),
		AuctionID:    ev.AuctionID,
		CurrentPrice: ev.CurrentPrice.String(),
		OccurredAt:   ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if ev.Bid != nil {
		frame.Seq = ev.Bid.Seq
		frame.BidderID = ev.Bid.BidderID
		frame.BidderName = ev.Bid.BidderName
		frame.Amount = ev.Bid.Price.String()
	}
	return frame
}
