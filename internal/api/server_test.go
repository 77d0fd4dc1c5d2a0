package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ow2stats/herostats/internal/stats"
	"github.com/ow2stats/herostats/internal/store"
)

// fakeHeroStore implements store.HeroStatStore in memory.
type fakeHeroStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]store.HeroStatRow

	upsertErr error
	batches   [][]stats.HeroStatRecord
}

func newFakeHeroStore() *fakeHeroStore {
	return &fakeHeroStore{nextID: 1, rows: map[int64]store.HeroStatRow{}}
}

func (f *fakeHeroStore) UpsertBatch(_ context.Context, records []stats.HeroStatRecord) (store.BatchOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return store.BatchOutcome{}, f.upsertErr
	}
	f.batches = append(f.batches, records)
	var outcome store.BatchOutcome
	for i, rec := range records {
		if rec.HeroID == "reject-me" {
			outcome.Errors = append(outcome.Errors, store.BatchItemError{
				Index:   i,
				HeroID:  rec.HeroID,
				Message: "store rejected",
			})
			continue
		}
		outcome.Successful++
	}
	return outcome, nil
}

func (f *fakeHeroStore) List(_ context.Context, _ store.ListFilter) ([]store.HeroStatRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.HeroStatRow
	for _, row := range f.rows {
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeHeroStore) Get(_ context.Context, id int64) (store.HeroStatRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return store.HeroStatRow{}, store.ErrNotFound
	}
	return row, nil
}

func (f *fakeHeroStore) Create(_ context.Context, rec stats.HeroStatRecord) (store.HeroStatRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := store.HeroStatRow{ID: f.nextID, HeroStatRecord: rec}
	f.rows[f.nextID] = row
	f.nextID++
	return row, nil
}

func (f *fakeHeroStore) UpdateRates(_ context.Context, id int64, pickRate, winRate *float64) (store.HeroStatRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return store.HeroStatRow{}, store.ErrNotFound
	}
	row.PickRate = pickRate
	row.WinRate = winRate
	f.rows[id] = row
	return row, nil
}

func (f *fakeHeroStore) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

func newTestServer(st store.HeroStatStore) *Server {
	return NewServer(st, nil, Config{}, zap.NewNop())
}

func ratePtr(v float64) *float64 { return &v }

func validRecordJSON(hero string) string {
	return fmt.Sprintf(`{
		"hero_id": %q, "hero_class": "support",
		"pick_rate": 5.5, "win_rate": 50.1,
		"region": "americas", "platform": "pc",
		"gamemode": "competitive", "map": "all-maps", "tier": "all",
		"observed_at": "2026-08-01T00:00:00Z"
	}`, hero)
}

func TestServer_BatchUpsert_ReportsPerRecordOutcome(t *testing.T) {
	t.Parallel()

	st := newFakeHeroStore()
	server := newTestServer(st)

	body := "[" + validRecordJSON("ana") + "," + validRecordJSON("reject-me") + "]"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/heroes/batch", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		TotalSubmitted int                    `json:"total_submitted"`
		Successful     int                    `json:"successful"`
		Errors         []store.BatchItemError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.TotalSubmitted)
	require.Equal(t, 1, resp.Successful)
	require.Len(t, resp.Errors, 1)
	require.Equal(t, 1, resp.Errors[0].Index)
	require.Equal(t, "reject-me", resp.Errors[0].HeroID)
}

func TestServer_BatchUpsert_ValidatesBeforeStore(t *testing.T) {
	t.Parallel()

	st := newFakeHeroStore()
	server := newTestServer(st)

	// Record 0 is missing hero_id; record 1 is valid. The store must only
	// see the valid record, and the error must keep its original index.
	body := `[{"region":"americas","platform":"pc","gamemode":"competitive","map":"all-maps","observed_at":"2026-08-01T00:00:00Z"},` +
		validRecordJSON("genji") + "]"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/heroes/batch", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Successful int                    `json:"successful"`
		Errors     []store.BatchItemError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Successful)
	require.Len(t, resp.Errors, 1)
	require.Equal(t, 0, resp.Errors[0].Index)
	require.Contains(t, resp.Errors[0].Message, "hero_id is required")

	require.Len(t, st.batches, 1)
	require.Len(t, st.batches[0], 1)
	require.Equal(t, "genji", st.batches[0][0].HeroID)
}

func TestServer_BatchUpsert_InvalidJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer(newFakeHeroStore())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/heroes/batch", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_BatchUpsert_StoreFailure(t *testing.T) {
	t.Parallel()

	st := newFakeHeroStore()
	st.upsertErr = errors.New("db down")
	server := newTestServer(st)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/heroes/batch",
		bytes.NewBufferString("["+validRecordJSON("ana")+"]"))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_CreateAndGetHeroStat(t *testing.T) {
	t.Parallel()

	st := newFakeHeroStore()
	server := newTestServer(st)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/heroes", bytes.NewBufferString(validRecordJSON("kiriko")))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created store.HeroStatRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "kiriko", created.HeroID)

	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/hero/%d", created.ID), nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "kiriko")
}

func TestServer_CreateRejectsOutOfRangeRate(t *testing.T) {
	t.Parallel()

	server := newTestServer(newFakeHeroStore())
	body := `{"hero_id":"ana","region":"americas","platform":"pc","gamemode":"competitive","map":"all-maps","pick_rate":140,"observed_at":"2026-08-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/heroes", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "pick_rate")
}

func TestServer_GetUnknownIDReturns404(t *testing.T) {
	t.Parallel()

	server := newTestServer(newFakeHeroStore())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/hero/999", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_UpdateRates(t *testing.T) {
	t.Parallel()

	st := newFakeHeroStore()
	row, err := st.Create(context.Background(), stats.HeroStatRecord{
		HeroID: "ana", Region: "americas", Platform: "pc",
		Gamemode: "competitive", Map: "all-maps",
		PickRate: ratePtr(3.0), WinRate: ratePtr(49.0),
		ObservedAt: time.Unix(1700000000, 0).UTC(),
	})
	require.NoError(t, err)

	server := newTestServer(st)
	body := `{"pick_rate": 6.25, "win_rate": 52.0}`
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/v1/hero/%d", row.ID), bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var updated store.HeroStatRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.NotNil(t, updated.PickRate)
	require.InDelta(t, 6.25, *updated.PickRate, 0.0001)
}

func TestServer_DeleteHeroStat(t *testing.T) {
	t.Parallel()

	st := newFakeHeroStore()
	row, err := st.Create(context.Background(), stats.HeroStatRecord{
		HeroID: "ana", Region: "americas", Platform: "pc",
		Gamemode: "quickplay", Map: "all-maps",
		ObservedAt: time.Unix(1700000000, 0).UTC(),
	})
	require.NoError(t, err)

	server := newTestServer(st)
	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/hero/%d", row.ID), nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/hero/%d", row.ID), nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ListRejectsBadTimestamp(t *testing.T) {
	t.Parallel()

	server := newTestServer(newFakeHeroStore())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/heroes?since=yesterday", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "RFC3339")
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server := newTestServer(newFakeHeroStore())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ReadyzReportsDownstreamFailure(t *testing.T) {
	t.Parallel()

	server := NewServer(newFakeHeroStore(), func(context.Context) error {
		return errors.New("db unreachable")
	}, Config{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	server := NewServer(newFakeHeroStore(), nil, Config{APIKey: "sekrit"}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/heroes", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/heroes", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
