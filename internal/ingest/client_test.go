package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ow2stats/herostats/internal/stats"
)

// instantDelayer skips real waiting so retry paths run fast.
type instantDelayer struct{}

func (instantDelayer) Delay(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func ptr(v float64) *float64 { return &v }

func makeRecords(n int) []stats.HeroStatRecord {
	out := make([]stats.HeroStatRecord, n)
	for i := range out {
		out[i] = stats.HeroStatRecord{
			HeroID:     "ana",
			HeroClass:  "support",
			PickRate:   ptr(5.0),
			WinRate:    ptr(50.0),
			Region:     "americas",
			Platform:   "pc",
			Gamemode:   "competitive",
			Map:        "all-maps",
			Tier:       "all",
			ObservedAt: time.Unix(1700000000, 0).UTC(),
		}
	}
	return out
}

func okResponse(w http.ResponseWriter, submitted int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_submitted": submitted,
		"successful":      submitted,
		"errors":          []any{},
	})
}

func newClient(t *testing.T, url string, chunkSize int) *Client {
	t.Helper()
	c, err := New(Config{
		BackendURL: url,
		ChunkSize:  chunkSize,
		Timeout:    5 * time.Second,
	}, stats.NewExponentialRetryPolicy(3, time.Millisecond, time.Millisecond), instantDelayer{}, nil)
	require.NoError(t, err)
	return c
}

func TestIngestBatchSplitsIntoChunks(t *testing.T) {
	t.Parallel()

	var chunks [][]stats.HeroStatRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/heroes/batch", r.URL.Path)
		var chunk []stats.HeroStatRecord
		require.NoError(t, json.NewDecoder(r.Body).Decode(&chunk))
		chunks = append(chunks, chunk)
		okResponse(w, len(chunk))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, 2)
	result, err := c.IngestBatch(context.Background(), makeRecords(5))
	require.NoError(t, err)

	require.Equal(t, 5, result.Accepted)
	require.Empty(t, result.Rejected)
	require.Len(t, chunks, 3)
	require.Len(t, chunks[0], 2)
	require.Len(t, chunks[2], 1)
}

func TestIngestBatchMapsPerIndexErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total_submitted": 3,
			"successful":      2,
			"errors": []map[string]any{
				{"index": 1, "hero_id": "ana", "error": "duplicate key"},
			},
		})
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, 10)
	result, err := c.IngestBatch(context.Background(), makeRecords(3))
	require.NoError(t, err)

	require.Equal(t, 2, result.Accepted)
	require.Len(t, result.Rejected, 1)
	require.Equal(t, "duplicate key", result.Rejected[0].Reason)
}

func TestIngestBatchFailedChunkDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var chunk []stats.HeroStatRecord
		require.NoError(t, json.NewDecoder(r.Body).Decode(&chunk))
		// The middle chunk always fails; others succeed.
		if chunk[0].HeroID == "poison" {
			calls.Add(1)
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		okResponse(w, len(chunk))
	}))
	defer srv.Close()

	records := makeRecords(6)
	records[2].HeroID = "poison"
	records[3].HeroID = "poison"

	c := newClient(t, srv.URL, 2)
	result, err := c.IngestBatch(context.Background(), records)
	require.NoError(t, err)

	require.Equal(t, 4, result.Accepted)
	require.Len(t, result.Rejected, 2)
	for _, rej := range result.Rejected {
		require.Contains(t, rej.Reason, "failed after")
	}
	// 3 attempts were spent on the failing chunk before it was given up on.
	require.Equal(t, int32(3), calls.Load())
}

func TestIngestBatchRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		okResponse(w, 1)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, 10)
	result, err := c.IngestBatch(context.Background(), makeRecords(1))
	require.NoError(t, err)

	require.Equal(t, 1, result.Accepted)
	require.Equal(t, int32(2), calls.Load())
}

func TestIngestBatchStopsOnCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newClient(t, srv.URL, 2)
	_, err := c.IngestBatch(ctx, makeRecords(4))
	require.ErrorIs(t, err, context.Canceled)
}

func TestIngestBatchEmptyInput(t *testing.T) {
	t.Parallel()

	c := newClient(t, "http://localhost:0", 2)
	result, err := c.IngestBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, result.Accepted)
	require.Empty(t, result.Rejected)
}

func TestNewRequiresBackendURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, stats.NewExponentialRetryPolicy(1, time.Millisecond, time.Millisecond), nil, nil)
	require.Error(t, err)
}
