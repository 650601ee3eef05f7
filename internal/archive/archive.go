// Package archive keeps a copy of every finished auction and its bid ledger
// outside the primary store.
package archive

//go:generate mockgen -source=archive.go -destination=mock_archive.go -package=archive

import (
	"auction-engine/internal/models"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver stores the final record of a closed auction.
type Archiver interface {
	Archive(ctx context.Context, auction models.Auction, bids []models.Bid) error
}

// Record is the document written for one closed auction.
type Record struct {
	Auction    models.Auction `json:"auction"`
	Bids       []models.Bid   `json:"bids"`
	ArchivedAt time.Time      `json:"archived_at"`
}

// Noop discards everything. Used when no bucket is configured.
type Noop struct{}

func (Noop) Archive(context.Context, models.Auction, []models.Bid) error { return nil }

// S3Options configures the S3 archiver. Endpoint is optional and allows
// S3-compatible stores (MinIO, DigitalOcean Spaces).
type S3Options struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes one JSON object per auction.
type S3Archiver struct {
	client objectPutter
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Archiver builds an S3 client from opts. Static credentials are used when
// both keys are set, otherwise the default AWS credential chain applies.
func NewS3Archiver(ctx context.Context, opts S3Options) (*S3Archiver, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return newS3Archiver(client, opts.Bucket, opts.Prefix), nil
}

func newS3Archiver(client objectPutter, bucket, prefix string) *S3Archiver {
	if prefix == "" {
		prefix = "auctions"
	}
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Key returns the object key an auction is archived under. The id is escaped
// so it always names a single object directly below the prefix.
func (a *S3Archiver) Key(auctionID string) string {
	return path.Join(a.prefix, url.PathEscape(auctionID)+".json")
}

func (a *S3Archiver) Archive(ctx context.Context, auction models.Auction, bids []models.Bid) error {
	if bids == nil {
		bids = []models.Bid{}
	}
	body, err := json.Marshal(Record{Auction: auction, Bids: bids, ArchivedAt: a.now()})
	if err != nil {
		return fmt.Errorf("archive: encode auction %s: %w", auction.AuctionID, err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(auction.AuctionID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: put auction %s: %w", auction.AuctionID, err)
	}
	return nil
}
