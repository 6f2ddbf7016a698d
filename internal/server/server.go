package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/j0rgje/KDVcontactscraper/internal/metrics"
	"github.com/j0rgje/KDVcontactscraper/pkg/config"
	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

// Runner はクエリの一覧を処理し、入力順のレコードを返します。*scraper.Scraper が満たします。
type Runner interface {
	Run(ctx context.Context, queries []types.Query) []types.ExtractionRecord
}

// RunStore は実行履歴の保存先です。
type RunStore interface {
	Ping(ctx context.Context) error
	SaveRun(ctx context.Context, summary types.Summary, records []types.ExtractionRecord) error
	ListRuns(ctx context.Context, limit int) ([]types.Summary, error)
	GetRecords(ctx context.Context, runID string) ([]types.ExtractionRecord, error)
}

// Pinger は疎通確認ができる外部依存です (Redis キャッシュなど)。
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server は HTTP API の依存関係を保持します。
type Server struct {
	config     config.ServerConfig
	router     http.Handler
	httpServer *http.Server
	runner     Runner
	store      RunStore
	checks     map[string]Pinger
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
	now        func() time.Time
}

// Option は Server の設定を行うための関数型です。
type Option func(*Server)

// WithStore は実行履歴の保存先を設定します。未設定の場合、履歴は保存されません。
func WithStore(st RunStore) Option {
	return func(s *Server) {
		if st == nil {
			return
		}
		s.store = st
		s.checks["postgres"] = st
	}
}

// WithHealthCheck はヘルスチェックの対象を追加します。
func WithHealthCheck(name string, p Pinger) Option {
	return func(s *Server) { s.checks[name] = p }
}

// WithMetrics は API のメトリクスと /metrics の公開元を設定します。
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithLogger はロガーを設定します。
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer は Server を生成し、ルーティングを構成します。
func NewServer(cfg config.ServerConfig, runner Runner, opts ...Option) (*Server, error) {
	if runner == nil {
		return nil, errors.New("server.NewServer: runner cannot be nil")
	}
	s := &Server{
		config:   cfg,
		runner:   runner,
		checks:   make(map[string]Pinger),
		gatherer: prometheus.DefaultGatherer,
		logger:   zap.L(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRouter()
	return s, nil
}

// Handler はルーティング済みの http.Handler を返します。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start は HTTP サーバーを起動し、Shutdown されるまでブロックします。
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// バッチの処理時間を含むため、書き込みタイムアウトはリクエストタイムアウトより長くする
		WriteTimeout: s.config.RequestTimeout + 30*time.Second,
	}
	s.logger.Info("HTTPサーバーを起動します", zap.String("addr", s.config.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
