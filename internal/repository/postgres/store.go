package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store is the Postgres implementation of repository.AuctionStore.
// Prices travel as text so NUMERIC precision is never lost.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const auctionColumns = `id, starting_price::text, current_price::text, end_time, status, last_seq, created_at, closed_at`

const bidColumns = `auction_id, seq, bidder_id, bidder_name, price::text, accepted_at`

func (s *Store) CreateAuction(ctx context.Context, auction models.Auction) error {
	const stmt = `
INSERT INTO auctions (id, starting_price, current_price, end_time, status, last_seq, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.exec(ctx, stmt,
		auction.AuctionID,
		auction.StartingPrice.String(),
		auction.CurrentPrice.String(),
		auction.EndTime,
		string(auction.Status),
		auction.LastSeq,
		auction.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create auction %s: %w", auction.AuctionID, biddingerrors.ErrAlreadyExists)
		}
		return fmt.Errorf("create auction: %w", err)
	}
	return nil
}

func (s *Store) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`
	a, err := scanAuction(s.queryRow(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrNotFound)
		}
		return models.Auction{}, fmt.Errorf("get auction: %w", err)
	}
	return a, nil
}

func (s *Store) ListOpenAuctions(ctx context.Context) ([]models.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = 'open' ORDER BY end_time`
	rows, err := s.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list open auctions: %w", err)
	}
	defer rows.Close()

	var auctions []models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list open auctions: %w", err)
	}
	return auctions, nil
}

// CommitBid advances the auction row and inserts the bid in one transaction.
// The conditional UPDATE takes the row lock, so two writers can never both claim bid.Seq.
func (s *Store) CommitBid(ctx context.Context, auction models.Auction, bid models.Bid) error {
	return withTx(ctx, s.pool, func(ctx context.Context) error {
		const update = `
UPDATE auctions SET current_price = $2, last_seq = $3
WHERE id = $1 AND status = 'open' AND last_seq = $4`

		tag, err := s.exec(ctx, update, auction.AuctionID, auction.CurrentPrice.String(), auction.LastSeq, bid.Seq-1)
		if err != nil {
			return fmt.Errorf("update auction: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return s.explainRejectedCommit(ctx, bid)
		}

		const insert = `
INSERT INTO bids (auction_id, seq, bidder_id, bidder_name, price, accepted_at)
VALUES ($1, $2, $3, $4, $5, $6)`

		if _, err := s.exec(ctx, insert,
			bid.AuctionID,
			bid.Seq,
			bid.BidderID,
			bid.BidderName,
			bid.Price.String(),
			bid.AcceptedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert bid %d: %w", bid.Seq, biddingerrors.ErrStaleState)
			}
			return fmt.Errorf("insert bid: %w", err)
		}
		return nil
	})
}

func (s *Store) explainRejectedCommit(ctx context.Context, bid models.Bid) error {
	var status string
	var lastSeq int64
	err := s.queryRow(ctx, `SELECT status, last_seq FROM auctions WHERE id = $1`, bid.AuctionID).Scan(&status, &lastSeq)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("commit bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrNotFound)
	case err != nil:
		return fmt.Errorf("check auction: %w", err)
	case models.AuctionStatus(status) != models.StatusOpen:
		return fmt.Errorf("commit bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionClosed)
	default:
		return fmt.Errorf("commit bid %d for auction %s at seq %d: %w", bid.Seq, bid.AuctionID, lastSeq, biddingerrors.ErrStaleState)
	}
}

func (s *Store) CloseAuction(ctx context.Context, auction models.Auction) error {
	const stmt = `
UPDATE auctions SET status = 'closed', closed_at = COALESCE($2, NOW())
WHERE id = $1 AND status = 'open'`

	tag, err := s.exec(ctx, stmt, auction.AuctionID, auction.ClosedAt)
	if err != nil {
		return fmt.Errorf("close auction: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Either already closed (no-op) or unknown.
	if _, err := s.GetAuction(ctx, auction.AuctionID); err != nil {
		return err
	}
	return nil
}

func (s *Store) ListBidsByAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if _, err := s.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.listBids(ctx, `SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY seq`, auctionID)
}

func (s *Store) ListBidsByBidder(ctx context.Context, bidderID string) ([]models.Bid, error) {
	return s.listBids(ctx, `SELECT `+bidColumns+` FROM bids WHERE bidder_id = $1 ORDER BY accepted_at, auction_id, seq`, bidderID)
}

// ResolveBidder looks a bidder up in the bidders table.
func (s *Store) ResolveBidder(ctx context.Context, bidderID string) (models.Bidder, error) {
	b := models.Bidder{BidderID: bidderID}
	err := s.queryRow(ctx, `SELECT display_name FROM bidders WHERE id = $1`, bidderID).Scan(&b.DisplayName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Bidder{}, fmt.Errorf("resolve bidder %s: %w", bidderID, biddingerrors.ErrUnknownBidder)
		}
		return models.Bidder{}, fmt.Errorf("resolve bidder: %w", err)
	}
	return b, nil
}

// UpsertBidder registers or renames a bidder.
func (s *Store) UpsertBidder(ctx context.Context, bidder models.Bidder) error {
	const stmt = `
INSERT INTO bidders (id, display_name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name`

	if _, err := s.exec(ctx, stmt, bidder.BidderID, bidder.DisplayName); err != nil {
		return fmt.Errorf("upsert bidder: %w", err)
	}
	return nil
}

func (s *Store) listBids(ctx context.Context, query string, arg string) ([]models.Bid, error) {
	rows, err := s.query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()

	bids := []models.Bid{}
	for rows.Next() {
		var b models.Bid
		var price string
		if err := rows.Scan(&b.AuctionID, &b.Seq, &b.BidderID, &b.BidderName, &price, &b.AcceptedAt); err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		if b.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse bid price %q: %w", price, err)
		}
		b.AcceptedAt = b.AcceptedAt.UTC()
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	return bids, nil
}

func scanAuction(row pgx.Row) (models.Auction, error) {
	var a models.Auction
	var starting, current, status string
	var closedAt *time.Time
	if err := row.Scan(&a.AuctionID, &starting, &current, &a.EndTime, &status, &a.LastSeq, &a.CreatedAt, &closedAt); err != nil {
		return models.Auction{}, err
	}

	var err error
	if a.StartingPrice, err = decimal.NewFromString(starting); err != nil {
		return models.Auction{}, fmt.Errorf("parse starting price %q: %w", starting, err)
	}
	if a.CurrentPrice, err = decimal.NewFromString(current); err != nil {
		return models.Auction{}, fmt.Errorf("parse current price %q: %w", current, err)
	}
	a.Status = models.AuctionStatus(status)
	a.EndTime = a.EndTime.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	if closedAt != nil {
		t := closedAt.UTC()
		a.ClosedAt = &t
	}
	return a, nil
}

func (s *Store) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return s.pool.Exec(ctx, sql, args...)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return s.pool.Query(ctx, sql, args...)
}

func (s *Store) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return s.pool.QueryRow(ctx, sql, args...)
}
