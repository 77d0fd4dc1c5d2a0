// Package ingest submits normalized records to the store API in chunks.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/ow2stats/herostats/internal/stats"
)

// DefaultChunkSize bounds the payload of one batch request.
const DefaultChunkSize = 50

const batchPath = "/api/v1/heroes/batch"

// Config controls the ingestion client.
type Config struct {
	BackendURL string
	ChunkSize  int
	Timeout    time.Duration
}

// Client implements stats.Ingestor against the batch endpoint. The store
// enforces the uniqueness invariant via upsert-on-conflict; a conflict
// resolution counts as accepted here, never as an error.
type Client struct {
	http    *resty.Client
	cfg     Config
	policy  stats.RetryPolicy
	delayer stats.Delayer
	logger  *zap.Logger
}

// New builds a Client for the given backend.
func New(cfg Config, policy stats.RetryPolicy, delayer stats.Delayer, logger *zap.Logger) (*Client, error) {
	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("backend url is required")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
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

	client := resty.New().
		SetBaseURL(cfg.BackendURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:    client,
		cfg:     cfg,
		policy:  policy,
		delayer: delayer,
		logger:  logger,
	}, nil
}

// batchResponse mirrors the store API's batch upload reply.
type batchResponse struct {
	TotalSubmitted int          `json:"total_submitted"`
	Successful     int          `json:"successful"`
	Errors         []batchError `json:"errors"`
}

type batchError struct {
	Index  int    `json:"index"`
	HeroID string `json:"hero_id"`
	Error  string `json:"error"`
}

// IngestBatch submits records in chunks and reports per-record acceptance.
// A chunk whose transport fails after retries marks every record in that
// chunk rejected and moves on; partial success is reported, never masked.
func (c *Client) IngestBatch(ctx context.Context, records []stats.HeroStatRecord) (stats.IngestResult, error) {
	var result stats.IngestResult
	if len(records) == 0 {
		return result, nil
	}

	chunkIndex := 0
	for start := 0; start < len(records); start += c.cfg.ChunkSize {
		end := min(start+c.cfg.ChunkSize, len(records))
		chunk := records[start:end]

		chunkResult, err := c.submitChunk(ctx, chunkIndex, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			c.logger.Error("chunk rejected after exhausting retries",
				zap.Int("chunk", chunkIndex),
				zap.Int("records", len(chunk)),
				zap.Error(err),
			)
			for _, rec := range chunk {
				result.Rejected = append(result.Rejected, stats.RejectedRecord{
					Record: rec,
					Reason: err.Error(),
				})
			}
		} else {
			result.Merge(chunkResult)
		}
		chunkIndex++
	}
	return result, nil
}

// submitChunk posts one chunk, retrying transport failures per policy.
func (c *Client) submitChunk(ctx context.Context, chunkIndex int, chunk []stats.HeroStatRecord) (stats.IngestResult, error) {
	var lastErr error
	attempt := 0
	for {
		res, err := c.postOnce(ctx, chunk)
		if err == nil {
			return res, nil
		}
		lastErr = err

		attempt++
		if !c.policy.ShouldRetry(err, attempt) {
			break
		}
		c.logger.Warn("chunk submit failed, retrying",
			zap.Int("chunk", chunkIndex),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if derr := c.delayer.Delay(ctx, c.policy.Backoff(attempt)); derr != nil {
			return stats.IngestResult{}, derr
		}
	}
	return stats.IngestResult{}, &stats.TransportError{
		Chunk:    chunkIndex,
		Attempts: attempt,
		Cause:    lastErr,
	}
}

func (c *Client) postOnce(ctx context.Context, chunk []stats.HeroStatRecord) (stats.IngestResult, error) {
	var out batchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chunk).
		SetResult(&out).
		Post(batchPath)
	if err != nil {
		return stats.IngestResult{}, fmt.Errorf("post batch: %w", err)
	}
	if resp.IsError() {
		return stats.IngestResult{}, fmt.Errorf("batch endpoint returned %s", resp.Status())
	}

	result := stats.IngestResult{Accepted: out.Successful}
	for _, e := range out.Errors {
		if e.Index < 0 || e.Index >= len(chunk) {
			c.logger.Warn("batch error index out of range",
				zap.Int("index", e.Index),
				zap.String("hero_id", e.HeroID),
			)
			continue
		}
		result.Rejected = append(result.Rejected, stats.RejectedRecord{
			Record: chunk[e.Index],
			Reason: e.Error,
		})
	}
	return result, nil
}
