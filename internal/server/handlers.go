package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/j0rgje/KDVcontactscraper/internal/store"
	"github.com/j0rgje/KDVcontactscraper/pkg/scraper"
	"github.com/j0rgje/KDVcontactscraper/pkg/tabular"
	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

const (
	defaultRunsLimit = 20
	maxUploadSize    = 10 << 20
)

type scrapeRequest struct {
	Queries []types.Query `json:"queries"`
}

type scrapeResponse struct {
	Summary types.Summary            `json:"summary"`
	Records []types.ExtractionRecord `json:"records"`
}

// errBadRequest は利用者の入力に起因するエラーです。
var errBadRequest = errors.New("bad request")

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := s.run(r.Context(), req.Queries)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondWithJSON(w, http.StatusOK, resp)
}

// handleExport は JSON のクエリ一覧、または multipart の "file" (xlsx/csv) を受け取り、
// 結果を format (xlsx, csv, pdf) のファイルとして返します。
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := tabular.FormatXLSX
	if f := r.URL.Query().Get("format"); f != "" {
		parsed, err := tabular.ParseFormat(f)
		if err != nil {
			s.respondWithError(w, http.StatusBadRequest, "Unsupported format: "+f)
			return
		}
		format = parsed
	}

	queries, err := s.readExportQueries(r)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.run(r.Context(), queries)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := tabular.Write(&buf, format, resp.Records); err != nil {
		s.logger.Error("結果ファイルの生成に失敗しました", zap.String("format", string(format)), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not create export file")
		return
	}

	name := tabular.DefaultFileName(s.now(), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("X-Run-ID", resp.Summary.RunID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) readExportQueries(r *http.Request) ([]types.Query, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var req scrapeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, errors.New("Invalid request body")
		}
		return req.Queries, nil
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, errors.New("Invalid multipart form")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("Form field 'file' is required")
	}
	defer file.Close()

	inFormat, err := tabular.FormatFromPath(header.Filename)
	if err != nil || inFormat == tabular.FormatPDF {
		return nil, fmt.Errorf("Unsupported input file: %s (.xlsx or .csv)", header.Filename)
	}
	queries, err := tabular.ReadQueries(io.LimitReader(file, maxUploadSize), inFormat)
	if err != nil {
		return nil, err
	}
	return queries, nil
}

// run はクエリを検証して処理し、実行履歴を保存します。保存の失敗は応答に影響しません。
func (s *Server) run(ctx context.Context, queries []types.Query) (scrapeResponse, error) {
	if err := s.validateQueries(queries); err != nil {
		return scrapeResponse{}, err
	}

	started := s.now()
	records := s.runner.Run(ctx, queries)

	summary := scraper.Summarize(records)
	summary.RunID = uuid.New().String()
	summary.StartedAt = started
	summary.FinishedAt = s.now()

	if s.store != nil {
		if err := s.store.SaveRun(ctx, summary, records); err != nil {
			s.logger.Error("実行履歴の保存に失敗しました", zap.String("run_id", summary.RunID), zap.Error(err))
		}
	}

	s.logger.Info("バッチ処理が完了しました",
		zap.String("run_id", summary.RunID),
		zap.Int("total", summary.Total),
		zap.Int("failed", summary.Failed),
	)
	return scrapeResponse{Summary: summary, Records: records}, nil
}

func (s *Server) validateQueries(queries []types.Query) error {
	if len(queries) == 0 {
		return fmt.Errorf("%w: queries list cannot be empty", errBadRequest)
	}
	if s.config.MaxQueries > 0 && len(queries) > s.config.MaxQueries {
		return fmt.Errorf("%w: too many queries (%d > %d)", errBadRequest, len(queries), s.config.MaxQueries)
	}
	for i, q := range queries {
		if strings.TrimSpace(q.FacilityName) == "" || strings.TrimSpace(q.Locality) == "" {
			return fmt.Errorf("%w: query %d requires locatienaam and plaats", errBadRequest, i+1)
		}
	}
	return nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondWithError(w, http.StatusNotFound, "Run history is not enabled")
		return
	}

	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondWithError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("実行履歴の取得に失敗しました", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve runs")
		return
	}
	if runs == nil {
		runs = []types.Summary{}
	}
	s.respondWithJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondWithError(w, http.StatusNotFound, "Run history is not enabled")
		return
	}

	runID := chi.URLParam(r, "runID")
	records, err := s.store.GetRecords(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Run not found")
			return
		}
		s.logger.Error("実行履歴の取得に失敗しました", zap.String("run_id", runID), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve run")
		return
	}
	s.respondWithJSON(w, http.StatusOK, records)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthStatus := map[string]string{"status": "healthy"}
	code := http.StatusOK
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			healthStatus[name] = "unhealthy"
			healthStatus["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
			s.logger.Error("ヘルスチェックに失敗しました", zap.String("dependency", name), zap.Error(err))
			continue
		}
		healthStatus[name] = "healthy"
	}

	s.respondWithJSON(w, code, healthStatus)
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("レスポンスのエンコードに失敗しました", zap.Error(err))
		code = http.StatusInternalServerError
		response = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
