// Package postgres provides the Postgres-backed hero statistics store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ow2stats/herostats/internal/stats"
	"github.com/ow2stats/herostats/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// HeroStoreConfig controls the Postgres connection pool.
type HeroStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pgxPool is the pool surface used by the store; pgxmock satisfies it.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// HeroStore implements store.HeroStatStore over pgx.
type HeroStore struct {
	pool pgxPool
}

// NewHeroStore creates a Postgres-backed store using the provided config.
func NewHeroStore(ctx context.Context, cfg HeroStoreConfig) (*HeroStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &HeroStore{pool: pool}, nil
}

// NewHeroStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewHeroStoreWithPool(pool pgxPool) (*HeroStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &HeroStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *HeroStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const upsertSQL = `
INSERT INTO hero_stats (
	hero_id, hero_class, pick_rate, win_rate,
	region, platform, gamemode, map, map_type, tier, observed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (hero_id, region, platform, gamemode, map, tier, observed_at)
DO UPDATE SET
	hero_class = EXCLUDED.hero_class,
	pick_rate = EXCLUDED.pick_rate,
	win_rate = EXCLUDED.win_rate,
	map_type = EXCLUDED.map_type,
	updated_at = NOW()`

// UpsertBatch writes each record with its own upsert statement. A
// conflicting key replaces the prior row's mutable fields; it never
// duplicates. Individual record failures are reported by index and the rest
// of the batch proceeds; a wrapping transaction would abort on the first
// failed statement and reject every record after it.
func (s *HeroStore) UpsertBatch(ctx context.Context, records []stats.HeroStatRecord) (store.BatchOutcome, error) {
	var outcome store.BatchOutcome
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		_, execErr := s.pool.Exec(ctx, upsertSQL,
			rec.HeroID,
			rec.HeroClass,
			rec.PickRate,
			rec.WinRate,
			rec.Region,
			rec.Platform,
			rec.Gamemode,
			rec.Map,
			rec.MapType,
			rec.Tier,
			rec.ObservedAt,
		)
		if execErr != nil {
			outcome.Errors = append(outcome.Errors, store.BatchItemError{
				Index:   i,
				HeroID:  rec.HeroID,
				Message: execErr.Error(),
			})
			continue
		}
		outcome.Successful++
	}
	return outcome, nil
}

const selectColumns = `id, hero_id, hero_class, pick_rate, win_rate,
	region, platform, gamemode, map, map_type, tier,
	observed_at, recorded_at, updated_at`

// List returns rows matching the filter, most recent observations first.
func (s *HeroStore) List(ctx context.Context, filter store.ListFilter) ([]store.HeroStatRow, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + selectColumns + " FROM hero_stats")

	var args []any
	var conds []string
	addCond := func(column, op string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s %s $%d", column, op, len(args)))
	}
	if filter.HeroID != "" {
		addCond("hero_id", "=", filter.HeroID)
	}
	if filter.Region != "" {
		addCond("region", "=", filter.Region)
	}
	if filter.Platform != "" {
		addCond("platform", "=", filter.Platform)
	}
	if filter.Gamemode != "" {
		addCond("gamemode", "=", filter.Gamemode)
	}
	if filter.Map != "" {
		addCond("map", "=", filter.Map)
	}
	if filter.Tier != "" {
		addCond("tier", "=", filter.Tier)
	}
	if !filter.Since.IsZero() {
		addCond("observed_at", ">=", filter.Since)
	}
	if !filter.Until.IsZero() {
		addCond("observed_at", "<", filter.Until)
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	args = append(args, limit)
	sb.WriteString(fmt.Sprintf(" ORDER BY observed_at DESC, id DESC LIMIT $%d", len(args)))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list hero stats: %w", err)
	}
	defer rows.Close()

	var out []store.HeroStatRow
	for rows.Next() {
		row, scanErr := scanRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list hero stats rows: %w", err)
	}
	return out, nil
}

// Get fetches one row by id.
func (s *HeroStore) Get(ctx context.Context, id int64) (store.HeroStatRow, error) {
	row, err := scanRow(s.pool.QueryRow(ctx,
		"SELECT "+selectColumns+" FROM hero_stats WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.HeroStatRow{}, store.ErrNotFound
	}
	if err != nil {
		return store.HeroStatRow{}, fmt.Errorf("get hero stat: %w", err)
	}
	return row, nil
}

// Create inserts a single row without conflict handling; the unique key
// still applies and a duplicate surfaces as an error.
func (s *HeroStore) Create(ctx context.Context, rec stats.HeroStatRecord) (store.HeroStatRow, error) {
	row, err := scanRow(s.pool.QueryRow(ctx, `
INSERT INTO hero_stats (
	hero_id, hero_class, pick_rate, win_rate,
	region, platform, gamemode, map, map_type, tier, observed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING `+selectColumns,
		rec.HeroID,
		rec.HeroClass,
		rec.PickRate,
		rec.WinRate,
		rec.Region,
		rec.Platform,
		rec.Gamemode,
		rec.Map,
		rec.MapType,
		rec.Tier,
		rec.ObservedAt,
	))
	if err != nil {
		return store.HeroStatRow{}, fmt.Errorf("create hero stat: %w", err)
	}
	return row, nil
}

// UpdateRates replaces the mutable rate fields of one row.
func (s *HeroStore) UpdateRates(ctx context.Context, id int64, pickRate, winRate *float64) (store.HeroStatRow, error) {
	row, err := scanRow(s.pool.QueryRow(ctx, `
UPDATE hero_stats
SET pick_rate = $2, win_rate = $3, updated_at = NOW()
WHERE id = $1
RETURNING `+selectColumns, id, pickRate, winRate))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.HeroStatRow{}, store.ErrNotFound
	}
	if err != nil {
		return store.HeroStatRow{}, fmt.Errorf("update hero stat: %w", err)
	}
	return row, nil
}

// Delete removes one row by id.
func (s *HeroStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM hero_stats WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete hero stat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanRow(row pgx.Row) (store.HeroStatRow, error) {
	var out store.HeroStatRow
	err := row.Scan(
		&out.ID,
		&out.HeroID,
		&out.HeroClass,
		&out.PickRate,
		&out.WinRate,
		&out.Region,
		&out.Platform,
		&out.Gamemode,
		&out.Map,
		&out.MapType,
		&out.Tier,
		&out.ObservedAt,
		&out.RecordedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return store.HeroStatRow{}, err
	}
	return out, nil
}
