// Package sweeper drives one fetch+extract+normalize+ingest cycle per
// configuration over the Cartesian product of the dimension lists.
package sweeper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ow2stats/herostats/internal/metrics"
	"github.com/ow2stats/herostats/internal/stats"
)

// Config holds the dimension lists and scheduling knobs for a sweep.
type Config struct {
	Regions     []string
	Platforms   []string
	Gamemodes   []string
	Maps        []string
	Tiers       []string
	Concurrency int
	Topic       string
}

// Sweeper coordinates the pipeline stages. Configurations are independent;
// a failed one never blocks the rest.
type Sweeper struct {
	fetcher    stats.Fetcher
	extractor  stats.Extractor
	normalizer stats.Normalizer
	ingestor   stats.Ingestor
	clock      stats.Clock
	idGen      stats.IDGenerator
	publisher  stats.Publisher
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Sweeper.
func New(
	fetcher stats.Fetcher,
	extractor stats.Extractor,
	normalizer stats.Normalizer,
	ingestor stats.Ingestor,
	clock stats.Clock,
	idGen stats.IDGenerator,
	publisher stats.Publisher,
	cfg Config,
	logger *zap.Logger,
) *Sweeper {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		fetcher:    fetcher,
		extractor:  extractor,
		normalizer: normalizer,
		ingestor:   ingestor,
		clock:      clock,
		idGen:      idGen,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger,
	}
}

// EnumerateConfigurations expands the dimension lists. Tier only varies in
// competitive; every other gamemode sweeps the aggregate tier.
func (s *Sweeper) EnumerateConfigurations() []stats.StatConfiguration {
	tiers := s.cfg.Tiers
	if len(tiers) == 0 {
		tiers = []string{"All"}
	}
	var out []stats.StatConfiguration
	for _, platform := range s.cfg.Platforms {
		for _, region := range s.cfg.Regions {
			for _, gamemode := range s.cfg.Gamemodes {
				gamemodeTiers := []string{"All"}
				if strings.EqualFold(gamemode, "competitive") {
					gamemodeTiers = tiers
				}
				for _, tier := range gamemodeTiers {
					for _, mapName := range s.cfg.Maps {
						out = append(out, stats.StatConfiguration{
							Region:   region,
							Platform: platform,
							Gamemode: gamemode,
							Map:      mapName,
							Tier:     tier,
						})
					}
				}
			}
		}
	}
	return out
}

// RunSweep processes every configuration and always returns a report, even
// under partial failure. Cancelling the context stops new configurations
// from starting; in-flight ones finish or time out. The only fatal condition
// here is an empty dimension enumeration.
func (s *Sweeper) RunSweep(ctx context.Context) (stats.SweepReport, error) {
	configs := s.EnumerateConfigurations()
	if len(configs) == 0 {
		return stats.SweepReport{}, fmt.Errorf("dimension configuration produced no configurations")
	}

	sweepID, err := s.idGen.NewID()
	if err != nil {
		return stats.SweepReport{}, fmt.Errorf("generate sweep id: %w", err)
	}

	report := stats.SweepReport{
		SweepID:   sweepID,
		StartedAt: s.clock.Now(),
		Outcomes:  make(map[string]stats.ConfigOutcome, len(configs)),
	}
	for _, cfg := range configs {
		report.Outcomes[cfg.Key()] = stats.ConfigOutcome{
			Configuration: cfg,
			Stage:         stats.StagePending,
		}
	}

	s.logger.Info("sweep started",
		zap.String("sweep_id", sweepID),
		zap.Int("configurations", len(configs)),
		zap.Int("concurrency", s.cfg.Concurrency),
	)

	jobs := make(chan stats.StatConfiguration)
	results := make(chan stats.ConfigOutcome)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cfg := range jobs {
				// Cooperative stop: drain without starting new work.
				if ctx.Err() != nil {
					continue
				}
				metrics.WorkerStarted()
				outcome := s.processConfiguration(ctx, cfg)
				metrics.WorkerFinished()
				results <- outcome
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, cfg := range configs {
			select {
			case jobs <- cfg:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for outcome := range results {
		report.Outcomes[outcome.Configuration.Key()] = outcome
		metrics.CountConfiguration(string(outcome.Stage))
	}

	report.FinishedAt = s.clock.Now()
	s.logger.Info("sweep finished",
		zap.String("sweep_id", sweepID),
		zap.Int("done", report.Completed()),
		zap.Int("failed", report.Failed()),
	)
	s.publishCompletion(ctx, report)
	return report, nil
}

// processConfiguration walks one configuration through the stage machine
// Fetching -> Extracting -> Normalizing -> Ingesting -> Done|Failed.
func (s *Sweeper) processConfiguration(ctx context.Context, cfg stats.StatConfiguration) stats.ConfigOutcome {
	started := s.clock.Now()
	outcome := stats.ConfigOutcome{Configuration: cfg}

	fail := func(stage stats.SweepStage, err error) stats.ConfigOutcome {
		outcome.Stage = stats.StageFailed
		outcome.Error = fmt.Sprintf("%s: %v", stage, err)
		outcome.Duration = s.clock.Now().Sub(started)
		s.logger.Error("configuration failed",
			zap.String("configuration", cfg.Key()),
			zap.String("stage", string(stage)),
			zap.Error(err),
		)
		return outcome
	}

	pageText, err := s.fetcher.Fetch(ctx, cfg)
	if err != nil {
		return fail(stats.StageFetching, err)
	}
	observedAt := s.clock.Now()

	observations := s.extractor.Extract(pageText)
	outcome.Observations = len(observations)
	metrics.CountObservations(len(observations))
	if len(observations) == 0 {
		s.logger.Warn("no observations extracted",
			zap.String("configuration", cfg.Key()),
		)
	}

	var records []stats.HeroStatRecord
	invalid := 0
	for _, obs := range observations {
		record, nerr := s.normalizer.Normalize(obs, cfg, observedAt)
		if nerr != nil {
			invalid++
			s.logger.Warn("observation dropped",
				zap.String("configuration", cfg.Key()),
				zap.Error(nerr),
			)
			continue
		}
		records = append(records, record)
	}
	metrics.CountRecords("invalid", invalid)

	if len(records) > 0 {
		result, ierr := s.ingestor.IngestBatch(ctx, records)
		if ierr != nil {
			return fail(stats.StageIngesting, ierr)
		}
		outcome.Accepted = result.Accepted
		outcome.Rejected = result.Rejected
		metrics.CountRecords("accepted", result.Accepted)
		metrics.CountRecords("rejected", len(result.Rejected))
	}

	outcome.Stage = stats.StageDone
	outcome.Duration = s.clock.Now().Sub(started)
	s.logger.Debug("configuration done",
		zap.String("configuration", cfg.Key()),
		zap.Int("observations", outcome.Observations),
		zap.Int("accepted", outcome.Accepted),
		zap.Int("rejected", len(outcome.Rejected)),
	)
	return outcome
}

// publishCompletion emits a sweep summary event, best effort.
func (s *Sweeper) publishCompletion(ctx context.Context, report stats.SweepReport) {
	if s.publisher == nil || s.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"sweep_id":       report.SweepID,
		"started_at":     report.StartedAt.Format(time.RFC3339),
		"finished_at":    report.FinishedAt.Format(time.RFC3339),
		"configurations": len(report.Outcomes),
		"done":           report.Completed(),
		"failed":         report.Failed(),
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.Topic, payload); err != nil {
		s.logger.Warn("sweep completion publish failed",
			zap.String("sweep_id", report.SweepID),
			zap.Error(err),
		)
	}
}
