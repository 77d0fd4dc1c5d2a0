// Package fetcher retrieves rendered stats pages for one configuration at a
// time. It owns retry/backoff and user-agent rotation; the shared rate gate
// throttles every outbound request.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/ow2stats/herostats/internal/hash/sha256"
	"github.com/ow2stats/herostats/internal/metrics"
	"github.com/ow2stats/herostats/internal/stats"
)

// ErrNonContentPage indicates the response carried no hero statistics,
// usually an interstitial or an empty client-side shell. Retryable.
var ErrNonContentPage = errors.New("page contains no statistics content")

// defaultUserAgents is used when configuration supplies none. Rotating the
// identifying metadata per attempt is best-effort evasion, not correctness.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
}

// Gate abstracts the shared outbound rate limiter.
type Gate interface {
	Wait(ctx context.Context) error
}

// Renderer performs one rendered page load. It substitutes for the plain
// HTTP round trip; the rate gate, politeness delay, retry policy, content
// check and failure snapshots all still apply around it.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// Config controls PageFetcher behavior.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	UserAgents     []string
	SnapshotPrefix string
}

// PageFetcher implements stats.Fetcher over a Colly collector, or over an
// injected Renderer when the target page only fills in client side.
type PageFetcher struct {
	base      *colly.Collector
	cfg       Config
	policy    stats.RetryPolicy
	delayer   stats.Delayer
	gate      Gate
	snapshots stats.SnapshotStore
	renderer  Renderer
	hasher    *sha256.Hasher
	logger    *zap.Logger
}

// New constructs a configured Colly-based PageFetcher. The snapshot store is
// optional; when present, the last body of an exhausted fetch is persisted
// for diagnostics.
func New(
	cfg Config,
	policy stats.RetryPolicy,
	delayer stats.Delayer,
	gate Gate,
	snapshots stats.SnapshotStore,
	logger *zap.Logger,
) (*PageFetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaultUserAgents
	}
	if policy == nil {
		return nil, fmt.Errorf("retry policy is required")
	}
	if delayer == nil {
		delayer = stats.TimerDelayer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base := colly.NewCollector()
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)

	return &PageFetcher{
		base:      base,
		cfg:       cfg,
		policy:    policy,
		delayer:   delayer,
		gate:      gate,
		snapshots: snapshots,
		hasher:    sha256.New(),
		logger:    logger,
	}, nil
}

// NewWithRenderer constructs a PageFetcher that loads pages through the
// given renderer instead of the plain HTTP client. Everything else behaves
// the same, so rendered fetches draw on the same rate budget and retry
// policy as plain ones.
func NewWithRenderer(
	cfg Config,
	policy stats.RetryPolicy,
	delayer stats.Delayer,
	gate Gate,
	snapshots stats.SnapshotStore,
	renderer Renderer,
	logger *zap.Logger,
) (*PageFetcher, error) {
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	f, err := New(cfg, policy, delayer, gate, snapshots, logger)
	if err != nil {
		return nil, err
	}
	f.renderer = renderer
	return f, nil
}

// Fetch retrieves the page text for cfg, retrying transient failures until
// the policy is exhausted. Exhaustion surfaces a FetchError carrying the
// configuration and last cause; the sweep is never aborted from here.
func (f *PageFetcher) Fetch(ctx context.Context, cfg stats.StatConfiguration) (string, error) {
	pageURL, err := BuildURL(f.cfg.BaseURL, cfg)
	if err != nil {
		return "", fmt.Errorf("build page url: %w", err)
	}

	var lastErr error
	var lastBody []byte
	attempt := 0
	for {
		if f.gate != nil {
			if err := f.gate.Wait(ctx); err != nil {
				return "", err
			}
		}

		body, err := f.loadOnce(ctx, pageURL, attempt)
		if err == nil && !looksLikeStatsPage(body) {
			err = ErrNonContentPage
		}
		if err == nil {
			metrics.CountFetchAttempt("success")
			return body, nil
		}
		lastErr = err
		if len(body) > 0 {
			lastBody = []byte(body)
		}

		attempt++
		if !f.policy.ShouldRetry(err, attempt) {
			break
		}
		metrics.CountFetchAttempt("retry")
		f.logger.Warn("fetch attempt failed, retrying",
			zap.String("configuration", cfg.Key()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if derr := f.delayer.Delay(ctx, f.policy.Backoff(attempt)); derr != nil {
			return "", derr
		}
	}

	metrics.CountFetchAttempt("exhausted")
	f.snapshotFailure(ctx, cfg, lastBody)
	return "", &stats.FetchError{Configuration: cfg, Attempts: attempt, Cause: lastErr}
}

// loadOnce performs one page load, through the renderer when configured.
func (f *PageFetcher) loadOnce(ctx context.Context, pageURL string, attempt int) (string, error) {
	if f.renderer != nil {
		return f.renderer.Render(ctx, pageURL)
	}
	return f.fetchOnce(ctx, pageURL, f.userAgent(attempt))
}

// fetchOnce performs one HTTP round trip with the given user agent.
func (f *PageFetcher) fetchOnce(ctx context.Context, pageURL, userAgent string) (string, error) {
	collector := f.base.Clone()
	collector.UserAgent = userAgent

	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{body: string(r.Body)})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		res := fetchResult{err: err}
		if r != nil {
			res.body = string(r.Body)
		}
		send(res)
	})

	if err := collector.Visit(pageURL); err != nil {
		return "", err
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return res.body, res.err
	default:
		return "", errors.New("fetch produced no result")
	}
}

func (f *PageFetcher) userAgent(attempt int) string {
	agents := f.cfg.UserAgents
	// Start at a random agent, then rotate per attempt.
	offset := rand.N(len(agents))
	return agents[(offset+attempt)%len(agents)]
}

// snapshotFailure persists the last failing body, best effort.
func (f *PageFetcher) snapshotFailure(ctx context.Context, cfg stats.StatConfiguration, body []byte) {
	if f.snapshots == nil || len(body) == 0 {
		return
	}
	prefix := strings.Trim(f.cfg.SnapshotPrefix, "/")
	if prefix == "" {
		prefix = "failed-pages"
	}
	path := fmt.Sprintf("%s/%s/%s.html",
		prefix,
		strings.ReplaceAll(cfg.Key(), "/", "_"),
		f.hasher.Hash(body),
	)
	uri, err := f.snapshots.Put(ctx, path, "text/html; charset=utf-8", body)
	if err != nil {
		f.logger.Warn("failing page snapshot not saved",
			zap.String("configuration", cfg.Key()),
			zap.Error(err),
		)
		return
	}
	f.logger.Info("failing page snapshot saved",
		zap.String("configuration", cfg.Key()),
		zap.String("uri", uri),
	)
}

// looksLikeStatsPage is a cheap content check: a rendered stats page always
// contains percent tokens.
func looksLikeStatsPage(body string) bool {
	return strings.Contains(body, "%")
}

type fetchResult struct {
	body string
	err  error
}
