// Package store defines the persistence interface for hero statistics.
// The pipeline only talks to the batch upsert; the remaining operations back
// the REST CRUD surface.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ow2stats/herostats/internal/stats"
)

// ErrNotFound is returned when no row matches the requested id.
var ErrNotFound = errors.New("hero stat not found")

// HeroStatRow is a persisted record plus store-assigned fields.
type HeroStatRow struct {
	ID         int64     `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	stats.HeroStatRecord
}

// ListFilter narrows List results. Zero values mean "no constraint".
type ListFilter struct {
	HeroID   string
	Region   string
	Platform string
	Gamemode string
	Map      string
	Tier     string
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// BatchItemError reports one failed record within a batch by its index.
type BatchItemError struct {
	Index   int    `json:"index"`
	HeroID  string `json:"hero_id"`
	Message string `json:"error"`
}

// BatchOutcome summarizes a batch upsert.
type BatchOutcome struct {
	Successful int              `json:"successful"`
	Errors     []BatchItemError `json:"errors"`
}

// HeroStatStore persists hero statistics. UpsertBatch enforces the
// uniqueness key (hero, region, platform, gamemode, map, tier, observed_at):
// at most one row per key, later ingests replace the mutable fields.
type HeroStatStore interface {
	UpsertBatch(ctx context.Context, records []stats.HeroStatRecord) (BatchOutcome, error)
	List(ctx context.Context, filter ListFilter) ([]HeroStatRow, error)
	Get(ctx context.Context, id int64) (HeroStatRow, error)
	Create(ctx context.Context, record stats.HeroStatRecord) (HeroStatRow, error)
	UpdateRates(ctx context.Context, id int64, pickRate, winRate *float64) (HeroStatRow, error)
	Delete(ctx context.Context, id int64) error
}
