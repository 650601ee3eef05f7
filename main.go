package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"auction-engine/internal/archive"
	"auction-engine/internal/auction"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/config"
	"auction-engine/internal/identity"
	"auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/internal/repository"
	"auction-engine/internal/repository/postgres"
	"auction-engine/internal/repository/postgres/migrations"
	"auction-engine/internal/server"
	"auction-engine/utils"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := utils.SetLevel(cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set log level: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		utils.Fatal("auction server stopped", map[string]any{"error": err.Error()})
	}
	utils.Info("auction server stopped", nil)
}

func run(ctx context.Context, cfg *config.Config) error {
	ln, err := net.Listen("tcp", ":"+cfg.Server.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return serve(ctx, cfg, ln)
}

// serve runs the engine on ln until ctx is done, then drains it. It owns ln.
func serve(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	defer ln.Close()

	store, resolver, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	cached, err := identity.NewCachedResolver(resolver, cfg.Identity.CacheSize)
	if err != nil {
		return fmt.Errorf("create bidder cache: %w", err)
	}

	archiver, err := newArchiver(ctx, cfg.Archive)
	if err != nil {
		return err
	}

	registry := auction.NewRegistry(auction.Config{
		SweepInterval:  cfg.Engine.SweepInterval.Std(),
		ArchiveTimeout: cfg.Engine.ArchiveTimeout.Std(),
	}, auction.Deps{
		Store:    store,
		Resolver: cached,
		Hub:      notify.NewHub(cfg.Notify.BufferSize),
		Archiver: archiver,
	})

	recovered, err := registry.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover open auctions: %w", err)
	}

	// Shutdown waits for handlers to return but never cancels them; streams end on this instead.
	streams, stopStreams := context.WithCancel(context.Background())
	defer stopStreams()

	biddingSvc := bidding.NewBiddingService(registry)
	router := server.SetupRouter(streams, biddingSvc)

	srv := &http.Server{
		Handler: router,
	}
	srv.RegisterOnShutdown(stopStreams)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		utils.Info("starting auction server", map[string]any{
			"addr":      ln.Addr().String(),
			"driver":    cfg.Database.Driver,
			"recovered": recovered,
		})
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return registry.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		utils.Info("shutting down auction server", nil)
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	// closes that raced with shutdown may still be uploading
	registry.Wait()
	return err
}

// openStore returns the configured auction store and a bidder resolver backed by the same source.
func openStore(ctx context.Context, cfg *config.Config) (repository.AuctionStore, identity.Resolver, func(), error) {
	bidders := configuredBidders(cfg.Bidders)

	if cfg.Database.Driver != config.DriverPostgres {
		return repository.NewMemoryRepo(), identity.NewDirectory(bidders...), func() {}, nil
	}

	pool, err := postgres.Connect(ctx, postgres.PoolConfig{
		URL:      cfg.Database.URL,
		MinConns: cfg.Database.MinConns,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.Database.Migrate {
		if err := migrations.Apply(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	store := postgres.NewStore(pool)
	for _, b := range bidders {
		if err := store.UpsertBidder(ctx, b); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("seed bidder %s: %w", b.BidderID, err)
		}
	}
	return store, identity.ResolverFunc(store.ResolveBidder), pool.Close, nil
}

func newArchiver(ctx context.Context, cfg config.ArchiveConfig) (archive.Archiver, error) {
	if !cfg.Enabled {
		return archive.Noop{}, nil
	}
	a, err := archive.NewS3Archiver(ctx, archive.S3Options{
		Bucket:    cfg.Bucket,
		Prefix:    cfg.Prefix,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		PathStyle: cfg.PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("create archiver: %w", err)
	}
	return a, nil
}

// configuredBidders converts the bidders listed in config into directory entries
func configuredBidders(entries []config.BidderConfig) []models.Bidder {
	bidders := make([]models.Bidder, 0, len(entries))
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = e.ID
		}
		bidders = append(bidders, models.Bidder{BidderID: e.ID, DisplayName: name})
	}
	return bidders
}
