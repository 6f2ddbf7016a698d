package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/j0rgje/KDVcontactscraper/pkg/extract"
	"github.com/j0rgje/KDVcontactscraper/pkg/fetcher"
	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

const (
	// DefaultConcurrency は同時に処理するクエリ数です。既定では逐次処理します。
	DefaultConcurrency = 1
	// DefaultDelay はクエリ間の待機時間です。
	DefaultDelay = 1000 * time.Millisecond
	// DefaultQueryTimeout はクエリ1件あたりの処理時間の上限です。
	DefaultQueryTimeout = 3 * time.Minute
)

// レコードの error 列に出力されるメッセージ
const (
	ErrMsgNoWebsite   = "Geen website gevonden"
	ErrMsgUnreachable = "Website niet bereikbaar"
	errMsgAllFailed   = "Alle ophaalstrategieën mislukt: "
)

// ----------------------------------------------------------------------
// 依存性の定義
// ----------------------------------------------------------------------

// SiteResolver はクエリから施設のウェブサイトを特定します。
type SiteResolver interface {
	Resolve(ctx context.Context, q types.Query) types.ResolvedSite
}

// Prober はURLの到達可能性を確認します。
type Prober interface {
	Probe(ctx context.Context, rawURL string) bool
}

// ContactExtractor は取得済みページから連絡先を抽出します。
type ContactExtractor interface {
	Extract(ctx context.Context, start types.FetchResult, maxLinkDepth int) (types.Contacts, error)
}

// Observer はバッチ処理の進捗を受け取ります。
type Observer interface {
	QueryStarted(index, total int, q types.Query)
	QueryFinished(index, total int, rec types.ExtractionRecord, elapsed time.Duration)
}

// ----------------------------------------------------------------------
// Scraper
// ----------------------------------------------------------------------

// Scraper はクエリごとに Resolver → (到達確認) → 取得ラダー → Extractor を実行するバッチドライバーです。
type Scraper struct {
	resolver     SiteResolver
	prober       Prober
	ladder       *fetcher.Ladder
	extractor    ContactExtractor
	observers    []Observer
	concurrency  int
	delay        time.Duration
	queryTimeout time.Duration
	maxLinkDepth int
}

// Option は Scraper の設定を行うための関数型です。
type Option func(*Scraper)

// WithProber は取得前の到達確認を設定します。未設定の場合は確認を行いません。
func WithProber(p Prober) Option {
	return func(s *Scraper) { s.prober = p }
}

// WithConcurrency は同時実行数を設定します。
func WithConcurrency(n int) Option {
	return func(s *Scraper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithDelay はクエリ間の待機時間を設定します。0 の場合は待機しません。
func WithDelay(d time.Duration) Option {
	return func(s *Scraper) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// WithQueryTimeout はクエリ1件あたりの処理時間の上限を設定します。
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Scraper) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// WithMaxLinkDepth はリンク追跡の深さを設定します。0 の場合は取得したページのみを解析します。
func WithMaxLinkDepth(depth int) Option {
	return func(s *Scraper) {
		if depth >= 0 {
			s.maxLinkDepth = depth
		}
	}
}

// WithObservers は進捗通知先を追加します。
func WithObservers(observers ...Observer) Option {
	return func(s *Scraper) { s.observers = append(s.observers, observers...) }
}

// New は Scraper を初期化します。
func New(resolver SiteResolver, ladder *fetcher.Ladder, extractor ContactExtractor, opts ...Option) (*Scraper, error) {
	if resolver == nil || ladder == nil || extractor == nil {
		return nil, fmt.Errorf("scraper.New: resolver, ladder, extractor は必須です")
	}
	s := &Scraper{
		resolver:     resolver,
		ladder:       ladder,
		extractor:    extractor,
		concurrency:  DefaultConcurrency,
		delay:        DefaultDelay,
		queryTimeout: DefaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run はすべてのクエリを処理し、入力と同じ順序で1件ずつレコードを返します。
// 個々のクエリの失敗はレコードの Error に記録され、処理は継続します。
func (s *Scraper) Run(ctx context.Context, queries []types.Query) []types.ExtractionRecord {
	records := make([]types.ExtractionRecord, len(queries))

	limit := rate.Inf
	if s.delay > 0 {
		limit = rate.Every(s.delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, q := range queries {
		g.Go(func() error {
			records[i] = s.runQuery(ctx, limiter, i, len(queries), q)
			return nil
		})
	}
	_ = g.Wait()

	return records
}

func (s *Scraper) runQuery(ctx context.Context, limiter *rate.Limiter, index, total int, q types.Query) (rec types.ExtractionRecord) {
	start := time.Now()
	for _, o := range s.observers {
		o.QueryStarted(index, total, q)
	}

	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("クエリの処理中にパニックが発生しました",
				zap.String("locatienaam", q.FacilityName), zap.Any("panic", r))
			rec = types.ExtractionRecord{
				Query:  q,
				URL:    rec.URL,
				Method: rec.Method,
				Error:  fmt.Sprintf("onverwachte fout: %v", r),
			}
		}
		for _, o := range s.observers {
			o.QueryFinished(index, total, rec, time.Since(start))
		}
	}()

	rec = types.ExtractionRecord{Query: q, Method: types.ResolutionNone}
	if err := limiter.Wait(ctx); err != nil {
		rec.Error = err.Error()
		return rec
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	return s.Process(queryCtx, q)
}

// Process はクエリ1件を処理します。
func (s *Scraper) Process(ctx context.Context, q types.Query) types.ExtractionRecord {
	site := s.resolver.Resolve(ctx, q)
	rec := types.ExtractionRecord{Query: q, URL: site.URL, Method: site.Method}

	if !site.Found() {
		rec.Method = types.ResolutionNone
		rec.Error = ErrMsgNoWebsite
		return rec
	}

	if s.prober != nil && !s.prober.Probe(ctx, site.URL) {
		rec.Error = ErrMsgUnreachable
		return rec
	}

	page, err := s.ScrapeURL(ctx, site.URL)
	rec.Emails = page.Contacts.Emails
	rec.Phones = page.Contacts.Phones
	rec.Addresses = page.Contacts.Addresses
	rec.Managers = page.Contacts.Managers
	rec.Sources = page.Sources
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}

// Page は1つのURLに対する取得・抽出の結果です。
type Page struct {
	Contacts types.Contacts
	// Sources は combine モードでの戦略ごとの抽出結果です。
	Sources  map[string]types.Contacts
	Attempts []types.FetchResult
}

// ScrapeURL は取得ラダーでURLを取得し、連絡先を抽出します。
// ModeFirst では抽出結果が空でない最初の戦略で停止し、ModeCombine では全戦略の結果を統合します。
// 抽出中のエラーはエラーとして返しますが、それまでの部分的な結果は Page に保持されます。
func (s *Scraper) ScrapeURL(ctx context.Context, rawURL string) (Page, error) {
	extracted := make(map[string]types.Contacts)
	extractErrs := make(map[string]error)
	var accepted string

	accept := func(res types.FetchResult) bool {
		// '@' も数字も含まない本文は JavaScript で描画されるサイトとみなし、次の戦略へ
		if fetcher.LooksEmpty(res.Body) {
			return false
		}
		contacts, err := s.extractor.Extract(ctx, res, s.maxLinkDepth)
		if err != nil {
			zap.L().Warn("連絡先の抽出中にエラーが発生しました",
				zap.String("url", rawURL), zap.String("strategy", res.Method), zap.Error(err))
			extractErrs[res.Method] = err
		}
		if contacts.Empty() {
			return false
		}
		extracted[res.Method] = contacts
		if accepted == "" {
			accepted = res.Method
		}
		return true
	}

	attempts := s.ladder.Run(ctx, rawURL, accept)
	page := Page{Attempts: attempts}

	if !anyOK(attempts) {
		return page, errors.New(errMsgAllFailed + fetcher.DescribeFailures(attempts))
	}

	parts := make([]types.Contacts, 0, len(extracted))
	for _, c := range extracted {
		parts = append(parts, c)
	}
	page.Contacts = extract.Merge(parts...)

	if s.ladder.Mode() == fetcher.ModeCombine {
		page.Sources = extracted
		return page, joinErrors(extractErrs)
	}
	if accepted != "" {
		return page, extractErrs[accepted]
	}
	return page, joinErrors(extractErrs)
}

func anyOK(attempts []types.FetchResult) bool {
	for _, a := range attempts {
		if a.OK() {
			return true
		}
	}
	return false
}

func joinErrors(errs map[string]error) error {
	methods := make([]string, 0, len(errs))
	for m := range errs {
		methods = append(methods, m)
	}
	sort.Strings(methods)

	list := make([]error, 0, len(errs))
	for _, m := range methods {
		list = append(list, fmt.Errorf("%s: %w", m, errs[m]))
	}
	return errors.Join(list...)
}

// Summarize はレコードの成功・失敗件数を集計します。
func Summarize(records []types.ExtractionRecord) types.Summary {
	sum := types.Summary{Total: len(records)}
	for _, r := range records {
		if r.Failed() {
			sum.Failed++
		} else {
			sum.Succeeded++
		}
	}
	return sum
}
