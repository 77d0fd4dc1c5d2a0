package cmd

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ow2stats/herostats/internal/clock/system"
	"github.com/ow2stats/herostats/internal/config"
	"github.com/ow2stats/herostats/internal/extractor"
	"github.com/ow2stats/herostats/internal/fetcher"
	"github.com/ow2stats/herostats/internal/fetcher/headless"
	"github.com/ow2stats/herostats/internal/heroes"
	"github.com/ow2stats/herostats/internal/id/uuid"
	"github.com/ow2stats/herostats/internal/ingest"
	"github.com/ow2stats/herostats/internal/metrics"
	"github.com/ow2stats/herostats/internal/normalizer"
	"github.com/ow2stats/herostats/internal/policy/ratelimit"
	pubsubpublisher "github.com/ow2stats/herostats/internal/publisher/pubsub"
	gcssnapshot "github.com/ow2stats/herostats/internal/snapshot/gcs"
	localsnapshot "github.com/ow2stats/herostats/internal/snapshot/local"
	"github.com/ow2stats/herostats/internal/stats"
	"github.com/ow2stats/herostats/internal/sweeper"
)

// newSweepCmd creates the 'sweep' subcommand, which runs one full pass over
// every configured dimension combination.
func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Runs one statistics collection sweep",
		Long: `Expands the configured regions, platforms, gamemodes, maps and tiers
into individual page configurations, fetches and extracts hero statistics
for each one, and submits the normalized records to the store backend.`,
		RunE: runSweepCommand,
	}
}

func runSweepCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	metrics.Init()

	sw, cleanup, err := buildSweeper(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := sw.RunSweep(cmd.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("run sweep: %w", err)
	}

	logger.Info("sweep report",
		zap.String("sweep_id", report.SweepID),
		zap.Int("configurations", len(report.Outcomes)),
		zap.Int("done", report.Completed()),
		zap.Int("failed", report.Failed()),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return nil
}

// buildSweeper wires the pipeline collaborators from configuration. The
// returned cleanup closes any long-lived clients.
func buildSweeper(ctx context.Context, cfg config.Config, logger *zap.Logger) (*sweeper.Sweeper, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	policy := stats.NewExponentialRetryPolicy(cfg.Retry.MaxAttempts, cfg.BackoffInitial(), cfg.BackoffMax())
	delayer := stats.TimerDelayer{}
	gate := ratelimit.New(ratelimit.Config{
		MinDelay: cfg.MinDelay(),
		MaxDelay: cfg.MaxDelay(),
		Burst:    cfg.Rate.Burst,
	}, delayer)

	snapshots, err := buildSnapshotStore(ctx, cfg, &closers)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	pageFetcher, err := buildFetcher(cfg, policy, delayer, gate, snapshots, logger, &closers)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	vocab := heroes.NewVocabulary(heroes.All())
	windows, err := extractor.NewWindowStrategy(vocab.Tokens(), extractor.DefaultWindow, logger.Named("extractor"))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init extractor: %w", err)
	}
	norm := normalizer.New(vocab, logger.Named("normalizer"))

	ingestClient, err := ingest.New(ingest.Config{
		BackendURL: cfg.Ingest.BackendURL,
		ChunkSize:  cfg.Ingest.ChunkSize,
		Timeout:    cfg.IngestTimeout(),
	}, policy, delayer, logger.Named("ingest"))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init ingest client: %w", err)
	}

	publisher, err := buildPublisher(ctx, cfg, &closers)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	sw := sweeper.New(
		pageFetcher,
		windows,
		norm,
		ingestClient,
		system.New(),
		uuid.NewUUIDGenerator(),
		publisher,
		sweeper.Config{
			Regions:     cfg.Sweep.Regions,
			Platforms:   cfg.Sweep.Platforms,
			Gamemodes:   cfg.Sweep.Gamemodes,
			Maps:        cfg.Sweep.Maps,
			Tiers:       cfg.Sweep.Tiers,
			Concurrency: cfg.Sweep.Concurrency,
			Topic:       cfg.PubSub.TopicName,
		},
		logger.Named("sweeper"),
	)
	return sw, cleanup, nil
}

// buildFetcher constructs the page fetcher. With headless enabled the
// chromedp renderer only replaces the transport; the rate gate, politeness
// delay, retry policy and failure snapshots stay in front of it either way.
func buildFetcher(
	cfg config.Config,
	policy stats.RetryPolicy,
	delayer stats.Delayer,
	gate fetcher.Gate,
	snapshots stats.SnapshotStore,
	logger *zap.Logger,
	closers *[]func(),
) (stats.Fetcher, error) {
	fetcherCfg := fetcher.Config{
		BaseURL:        cfg.Source.BaseURL,
		RequestTimeout: cfg.SourceTimeout(),
		UserAgents:     cfg.Source.UserAgents,
		SnapshotPrefix: cfg.Snapshot.Prefix,
	}

	if cfg.Headless.Enabled {
		renderer, err := headless.New(headless.Config{
			NavTimeout:  cfg.NavTimeout(),
			MaxParallel: cfg.Headless.MaxParallel,
			UserAgent:   cfg.Headless.UserAgent,
		}, logger.Named("headless"))
		switch {
		case err == nil:
			*closers = append(*closers, func() { _ = renderer.Close() })
			pageFetcher, err := fetcher.NewWithRenderer(fetcherCfg, policy, delayer, gate, snapshots, renderer, logger.Named("fetcher"))
			if err != nil {
				return nil, fmt.Errorf("init rendered fetcher: %w", err)
			}
			return pageFetcher, nil
		case errors.Is(err, headless.ErrRendererDisabled):
			logger.Warn("headless renderer disabled despite feature flag; falling back to plain fetcher")
		default:
			return nil, fmt.Errorf("init renderer: %w", err)
		}
	}

	pageFetcher, err := fetcher.New(fetcherCfg, policy, delayer, gate, snapshots, logger.Named("fetcher"))
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}
	return pageFetcher, nil
}

func buildSnapshotStore(ctx context.Context, cfg config.Config, closers *[]func()) (stats.SnapshotStore, error) {
	switch cfg.Snapshot.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		*closers = append(*closers, func() { _ = client.Close() })
		store, err := gcssnapshot.New(client, gcssnapshot.Config{Bucket: cfg.Snapshot.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs snapshot store: %w", err)
		}
		return store, nil
	case "", "local":
		store, err := localsnapshot.New(localsnapshot.Config{BaseDir: cfg.Snapshot.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local snapshot store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Snapshot.Backend)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config, closers *[]func()) (stats.Publisher, error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	pub, err := pubsubpublisher.New(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	*closers = append(*closers, func() { _ = pub.Close() })
	return pub, nil
}
