// Package ratelimit implements the shared outbound request gate. The target
// site is a single host, so the gate is one token bucket shared by every
// sweep worker plus a randomized politeness delay per request; total request
// rate stays within policy regardless of parallelism degree.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/ow2stats/herostats/internal/metrics"
	"github.com/ow2stats/herostats/internal/stats"
)

// Config holds rate gate configuration. Delay bounds follow the politeness
// policy of the upstream site (a few seconds between requests).
type Config struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Burst    int
}

// Gate coordinates the outbound rate budget across concurrent workers.
type Gate struct {
	limiter  *rate.Limiter
	minDelay time.Duration
	spread   time.Duration
	delayer  stats.Delayer
}

// New creates a Gate. The bucket refills at one token per average configured
// delay so parallel workers cannot multiply the request rate.
func New(cfg Config, delayer stats.Delayer) *Gate {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 2 * time.Second
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if delayer == nil {
		delayer = stats.TimerDelayer{}
	}
	avg := (cfg.MinDelay + cfg.MaxDelay) / 2
	return &Gate{
		limiter:  rate.NewLimiter(rate.Every(avg), cfg.Burst),
		minDelay: cfg.MinDelay,
		spread:   cfg.MaxDelay - cfg.MinDelay,
		delayer:  delayer,
	}
}

// Wait blocks until the caller may issue one outbound request.
func (g *Gate) Wait(ctx context.Context) error {
	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate gate wait: %w", err)
	}
	if err := g.delayer.Delay(ctx, g.randomDelay()); err != nil {
		return fmt.Errorf("rate gate delay: %w", err)
	}
	metrics.ObserveRateGateDelay(time.Since(start))
	return nil
}

func (g *Gate) randomDelay() time.Duration {
	if g.spread <= 0 {
		return g.minDelay
	}
	return g.minDelay + rand.N(g.spread)
}
