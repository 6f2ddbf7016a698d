package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/j0rgje/KDVcontactscraper/pkg/fetcher"
	"github.com/j0rgje/KDVcontactscraper/pkg/scraper"
	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

// クエリの結果区分
const (
	OutcomeSuccess     = "success"
	OutcomeNoWebsite   = "no_website"
	OutcomeUnreachable = "unreachable"
	OutcomeFailed      = "failed"
)

// Metrics はアプリケーションの Prometheus メトリクスを保持します。
type Metrics struct {
	QueriesTotal        *prometheus.CounterVec
	QueryDuration       *prometheus.HistogramVec
	QueriesInFlight     prometheus.Gauge
	FetchAttemptsTotal  *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics は reg にメトリクスを登録します。reg が nil の場合はデフォルトレジストリを使用します。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kdvscraper_queries_total",
			Help: "The total number of processed facility queries",
		}, []string{"outcome", "resolution"}),
		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kdvscraper_query_duration_seconds",
			Help:    "Duration of a single facility query",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120, 180},
		}, []string{"outcome"}),
		QueriesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kdvscraper_queries_in_flight",
			Help: "Current number of queries being processed",
		}),
		FetchAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kdvscraper_fetch_attempts_total",
			Help: "The total number of page fetch attempts per strategy",
		}, []string{"strategy", "status"}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kdvscraper_http_requests_total",
			Help: "Total number of API requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kdvscraper_http_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Outcome はレコードを結果区分に分類します。
func Outcome(rec types.ExtractionRecord) string {
	switch rec.Error {
	case "":
		return OutcomeSuccess
	case scraper.ErrMsgNoWebsite:
		return OutcomeNoWebsite
	case scraper.ErrMsgUnreachable:
		return OutcomeUnreachable
	default:
		return OutcomeFailed
	}
}

// QueryStarted は scraper.Observer を満たします。
func (m *Metrics) QueryStarted(_, _ int, _ types.Query) {
	m.QueriesInFlight.Inc()
}

// QueryFinished は scraper.Observer を満たします。
func (m *Metrics) QueryFinished(_, _ int, rec types.ExtractionRecord, elapsed time.Duration) {
	outcome := Outcome(rec)
	m.QueriesInFlight.Dec()
	m.QueriesTotal.WithLabelValues(outcome, string(rec.Method)).Inc()
	m.QueryDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// Instrument は取得試行ごとに FetchAttemptsTotal を加算する戦略ラッパーを返します。
func (m *Metrics) Instrument(s fetcher.Strategy) fetcher.Strategy {
	return &instrumented{inner: s, counter: m.FetchAttemptsTotal}
}

type instrumented struct {
	inner   fetcher.Strategy
	counter *prometheus.CounterVec
}

func (s *instrumented) Name() string {
	return s.inner.Name()
}

func (s *instrumented) Fetch(ctx context.Context, rawURL string) types.FetchResult {
	res := s.inner.Fetch(ctx, rawURL)
	s.counter.WithLabelValues(s.inner.Name(), string(res.Status)).Inc()
	return res
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware は API リクエストの件数と処理時間を記録する HTTP ミドルウェアです。
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := routePattern(r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// unmatchedRoute はどのルートにも一致しなかったリクエストのラベルです。
const unmatchedRoute = "unmatched"

// routePattern は chi のルートパターン (例: /api/runs/{runID}) を返します。
// パスそのものをラベルにすると系列数が増え続けるため、パターンが無い場合は unmatchedRoute にまとめます。
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}

var _ scraper.Observer = (*Metrics)(nil)
