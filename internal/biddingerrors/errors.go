package biddingerrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Lifecycle errors
var (
	ErrNotFound       = errors.New("auction not found")
	ErrAlreadyExists  = errors.New("auction already exists")
	ErrAuctionClosed  = errors.New("auction closed")
	ErrInvalidAuction = errors.New("invalid auction")
)

// business logic errors
var (
	ErrInvalidBid    = errors.New("invalid bid")
	ErrUnknownBidder = errors.New("unknown bidder")
	ErrNoBids        = errors.New("no bids found")
)

// ErrInvalidRequest rejects malformed input before it reaches an auction.
var ErrInvalidRequest = errors.New("invalid request")

// Storage errors
var (
	// ErrPersistence means the commit did not complete and nothing was applied; callers may retry.
	ErrPersistence = errors.New("persistence failure")

	// ErrStaleState is returned by a store when the expected sequence no longer matches.
	ErrStaleState = errors.New("stale auction state")
)

// PriceError rejects a bid that does not beat the current price.
type PriceError struct {
	Current decimal.Decimal
}

func (e *PriceError) Error() string {
	return fmt.Sprintf("%s - current price is %s", ErrInvalidBid, e.Current.String())
}

func (e *PriceError) Unwrap() error {
	return ErrInvalidBid
}

// CurrentPrice extracts the price carried by a PriceError anywhere in err's chain.
func CurrentPrice(err error) (decimal.Decimal, bool) {
	var pe *PriceError
	if errors.As(err, &pe) {
		return pe.Current, true
	}
	return decimal.Decimal{}, false
}
