package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newsloom/ingestd/internal/health"
	"github.com/newsloom/ingestd/internal/ingest"
	"github.com/newsloom/ingestd/internal/store/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func newTestServer(t *testing.T, sources ...ingest.Source) *Server {
	t.Helper()
	store := memory.NewSourceStore()
	for _, src := range sources {
		require.NoError(t, store.Save(context.Background(), src))
	}
	tracker := health.New(health.DefaultConfig(), store,
		fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}, zap.NewNop())
	return NewServer(store, tracker, zap.NewNop())
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ListSources(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t,
		ingest.Source{ID: "src-a", URL: "https://a.example.com", Type: ingest.SourceTypeFeed, Status: ingest.StatusHealthy},
		ingest.Source{ID: "src-b", URL: "https://b.example.com", Type: ingest.SourceTypeWeb, Status: ingest.StatusDegraded},
	)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sources", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out []sourceSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.Equal(t, "src-a", out[0].ID)
	require.Equal(t, ingest.StatusDegraded, out[1].Status)
}

func TestServer_SourceStatus(t *testing.T) {
	t.Parallel()

	attempt := time.Date(2025, 5, 31, 9, 0, 0, 0, time.UTC)
	srv := newTestServer(t, ingest.Source{
		ID:          "src-a",
		URL:         "https://a.example.com",
		Status:      ingest.StatusFailing,
		LastAttempt: attempt,
		LastError:   "transient",
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sources/src-a/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report ingest.StatusReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, "src-a", report.SourceID)
	require.Equal(t, ingest.StatusFailing, report.Status)
	require.Equal(t, attempt, report.LastAttempt)
	require.Equal(t, "transient", report.LastError)
}

func TestServer_SourceStatus_NotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sources/missing/status", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
