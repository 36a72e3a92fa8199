// Command scraperd runs the Codelco job scraper service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/EnsoG/empleo-talento/internal/api"
	"github.com/EnsoG/empleo-talento/internal/config"
	"github.com/EnsoG/empleo-talento/internal/fetcher"
	collyfetcher "github.com/EnsoG/empleo-talento/internal/fetcher/colly"
	"github.com/EnsoG/empleo-talento/internal/fetcher/headless"
	"github.com/EnsoG/empleo-talento/internal/headless/detector"
	"github.com/EnsoG/empleo-talento/internal/logging"
	"github.com/EnsoG/empleo-talento/internal/metrics"
	"github.com/EnsoG/empleo-talento/internal/progress"
	"github.com/EnsoG/empleo-talento/internal/publisher"
	pubsubpublisher "github.com/EnsoG/empleo-talento/internal/publisher/pubsub"
	"github.com/EnsoG/empleo-talento/internal/scraper"
	"github.com/EnsoG/empleo-talento/internal/storage"
	"github.com/EnsoG/empleo-talento/internal/storage/gcs"
	"github.com/EnsoG/empleo-talento/internal/storage/local"
	"github.com/EnsoG/empleo-talento/internal/storage/memory"
	"github.com/EnsoG/empleo-talento/internal/storage/postgres"
	"github.com/EnsoG/empleo-talento/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scraperd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := buildRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	pub, stopPub, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopPub()

	pageFetcher, closeFetcher := buildFetcher(cfg, logger)
	defer closeFetcher()

	publishTopic := ""
	if cfg.PubSub.Enabled {
		publishTopic = cfg.PubSub.TopicName
	}
	sc := scraper.New(scraper.Config{
		BaseURL:        cfg.Scraper.BaseURL,
		SearchURL:      cfg.Scraper.SearchURL(),
		SnapshotPrefix: cfg.Scraper.SnapshotPrefix,
		PublishTopic:   publishTopic,
		ArchivePages:   cfg.Scraper.ArchivePages,
	}, pageFetcher, repo, blobs, pub, logger.Named("scraper"))

	tracker := progress.NewTracker(logger.Named("progress"))
	runner := scraper.NewRunner(sc, tracker, logger.Named("runner"))

	server := api.NewServer(sc, runner, repo, cfg, logger.Named("api"))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func buildRepository(ctx context.Context, cfg config.Config) (store.JobRepository, func(), error) {
	switch cfg.DB.Provider {
	case "postgres":
		jobs, err := postgres.NewJobStore(ctx, postgres.JobStoreConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxOpenConns),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		return jobs, jobs.Close, nil
	case "memory":
		return memory.NewJobStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown db provider: %s", cfg.DB.Provider)
	}
}

func buildBlobStore(ctx context.Context, cfg config.Config) (storage.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "local":
		blobs, err := local.New(local.Config{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		return blobs, nil
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		blobs, err := gcs.New(client, gcs.Config{
			Bucket: cfg.Storage.GCSBucket,
			Prefix: cfg.Storage.GCSPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		return blobs, nil
	case "noop":
		return storage.NoOpStore{}, nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Storage.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (publisher.Publisher, func(), error) {
	if !cfg.PubSub.Enabled {
		return publisher.NoOp{}, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("init pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client.Topic(cfg.PubSub.TopicName))
	stop := func() {
		pub.Stop()
		client.Close() //nolint:errcheck // best-effort close
	}
	return pub, stop, nil
}

func buildFetcher(cfg config.Config, logger *zap.Logger) (fetcher.Fetcher, func()) {
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Scraper.UserAgent,
		Timeout:   cfg.Scraper.RequestTimeout(),
		Delay:     cfg.Scraper.RequestDelay(),
	})
	if !cfg.Headless.Enabled {
		return static, func() {}
	}

	browser, err := headless.NewChromedp(headless.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.Scraper.UserAgent,
		NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
	})
	if err != nil {
		logger.Warn("headless fetcher unavailable, using static fetcher only", zap.Error(err))
		return static, func() {}
	}
	det := detector.NewHeuristic(cfg.Headless.PromotionThresh)
	return fetcher.NewPromoting(static, browser, det, logger.Named("fetcher")), browser.Close
}
