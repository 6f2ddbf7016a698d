package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j0rgje/KDVcontactscraper/internal/metrics"
	"github.com/j0rgje/KDVcontactscraper/internal/store"
	"github.com/j0rgje/KDVcontactscraper/pkg/config"
	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

// stubRunner はクエリ名に "Zonnekind" を含む場合のみ失敗レコードを返します。
type stubRunner struct{}

func (stubRunner) Run(_ context.Context, queries []types.Query) []types.ExtractionRecord {
	records := make([]types.ExtractionRecord, len(queries))
	for i, q := range queries {
		if strings.Contains(q.FacilityName, "Zonnekind") {
			records[i] = types.ExtractionRecord{Query: q, Method: types.ResolutionNone, Error: "Geen website gevonden"}
			continue
		}
		records[i] = types.ExtractionRecord{
			Query:  q,
			URL:    "https://kdv-zon.nl/",
			Method: types.ResolutionPrimary,
			Emails: []string{"info@kdv-zon.nl"},
		}
	}
	return records
}

type memoryStore struct {
	mu      sync.Mutex
	runs    []types.Summary
	records map[string][]types.ExtractionRecord
	pingErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string][]types.ExtractionRecord)}
}

func (m *memoryStore) Ping(context.Context) error { return m.pingErr }

func (m *memoryStore) SaveRun(_ context.Context, summary types.Summary, records []types.ExtractionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, summary)
	m.records[summary.RunID] = records
	return nil
}

func (m *memoryStore) ListRuns(_ context.Context, limit int) ([]types.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) > limit {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

func (m *memoryStore) GetRecords(_ context.Context, runID string) ([]types.ExtractionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs, ok := m.records[runID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return recs, nil
}

var fixedNow = time.Date(2025, 3, 7, 9, 5, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	cfg := config.Default().Server
	cfg.MaxQueries = 3
	s, err := NewServer(cfg, stubRunner{}, opts...)
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(config.ServerConfig{}, nil)
	assert.Error(t, err)
}

func TestHandleScrape(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{
			name:     "valid batch",
			body:     `{"queries":[{"locatienaam":"KDV De Zon","plaats":"Utrecht"},{"locatienaam":"Zonnekind","plaats":"Utrecht"}]}`,
			wantCode: http.StatusOK,
		},
		{name: "invalid json", body: `{`, wantCode: http.StatusBadRequest, wantErr: "Invalid request body"},
		{name: "empty", body: `{"queries":[]}`, wantCode: http.StatusBadRequest, wantErr: "cannot be empty"},
		{
			name:     "missing plaats",
			body:     `{"queries":[{"locatienaam":"KDV De Zon"}]}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "query 1 requires locatienaam and plaats",
		},
		{
			name:     "too many",
			body:     `{"queries":[{"locatienaam":"a","plaats":"b"},{"locatienaam":"a","plaats":"b"},{"locatienaam":"a","plaats":"b"},{"locatienaam":"a","plaats":"b"}]}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "too many queries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newMemoryStore()
			s := newTestServer(t, WithStore(st))

			rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader(tt.body)))
			require.Equal(t, tt.wantCode, rec.Code)

			if tt.wantErr != "" {
				assert.Contains(t, rec.Body.String(), tt.wantErr)
				assert.Empty(t, st.runs)
				return
			}

			var resp scrapeResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Len(t, resp.Records, 2)
			assert.Equal(t, "KDV De Zon", resp.Records[0].Query.FacilityName)
			assert.Equal(t, "Geen website gevonden", resp.Records[1].Error)
			assert.Equal(t, 2, resp.Summary.Total)
			assert.Equal(t, 1, resp.Summary.Failed)
			assert.NotEmpty(t, resp.Summary.RunID)

			require.Len(t, st.runs, 1)
			assert.Equal(t, resp.Summary.RunID, st.runs[0].RunID)
		})
	}
}

func TestHandleExport_JSON(t *testing.T) {
	s := newTestServer(t)
	body := `{"queries":[{"locatienaam":"KDV De Zon","plaats":"Utrecht"}]}`

	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/scrape/export?format=csv", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=locatiemanager-gegevens-2025-03-07-09-05.csv`, rec.Header().Get("Content-Disposition"))
	assert.NotEmpty(t, rec.Header().Get("X-Run-ID"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "locatienaam,plaats,website"))
	assert.Contains(t, rec.Body.String(), "info@kdv-zon.nl")
}

func TestHandleExport_Upload(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "locaties.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("locatienaam;plaats\nKDV De Zon;Utrecht\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/scrape/export?format=pdf", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := do(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}

func TestHandleExport_Errors(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/scrape/export?format=docx", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "locaties.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("naam,stad\nKDV De Zon,Utrecht\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/scrape/export", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = do(t, s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "locatienaam")
}

func TestHandleRuns(t *testing.T) {
	st := newMemoryStore()
	s := newTestServer(t, WithStore(st))

	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/scrape",
		strings.NewReader(`{"queries":[{"locatienaam":"KDV De Zon","plaats":"Utrecht"}]}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	runID := st.runs[0].RunID

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []types.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].RunID)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "info@kdv-zon.nl")

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRuns_Disabled(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHandleHealthCheck(t *testing.T) {
	rec := do(t, newTestServer(t, WithStore(newMemoryStore())), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","postgres":"healthy"}`, rec.Body.String())

	rec = do(t, newTestServer(t, WithHealthCheck("redis", failingPinger{})), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","redis":"unhealthy"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestServer(t, WithMetrics(metrics.NewMetrics(reg), reg))

	do(t, s, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `kdvscraper_http_requests_total{method="GET",path="/api/health",status="200"} 1`)
}
