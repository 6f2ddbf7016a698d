package pipeline

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shouni/go-http-kit/pkg/httpkit"
	"go.uber.org/zap"

	"github.com/j0rgje/KDVcontactscraper/internal/metrics"
	"github.com/j0rgje/KDVcontactscraper/pkg/cache"
	"github.com/j0rgje/KDVcontactscraper/pkg/config"
	"github.com/j0rgje/KDVcontactscraper/pkg/extract"
	"github.com/j0rgje/KDVcontactscraper/pkg/fetcher"
	"github.com/j0rgje/KDVcontactscraper/pkg/resolver"
	"github.com/j0rgje/KDVcontactscraper/pkg/scraper"
)

// Pipeline は設定から組み立てられた Resolver → 取得ラダー → Extractor の一式です。
type Pipeline struct {
	Scraper   *scraper.Scraper
	Resolver  *resolver.Resolver
	Ladder    *fetcher.Ladder
	Extractor *extract.Extractor
	Direct    *fetcher.Client
	// Cache は使用中のキャッシュです。cache.backend が none の場合は nil です。
	Cache cache.Cache

	closers []func() error
}

// Option は Build の設定を行うための関数型です。
type Option func(*buildOptions)

type buildOptions struct {
	metrics   *metrics.Metrics
	observers []scraper.Observer
	cache     cache.Cache
}

// WithMetrics は取得試行とクエリ結果を metrics に記録します。
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *buildOptions) { o.metrics = m }
}

// WithObservers は Scraper に進捗通知先を追加します。
func WithObservers(observers ...scraper.Observer) Option {
	return func(o *buildOptions) { o.observers = append(o.observers, observers...) }
}

// WithCache は cfg.Cache の代わりに c を使用します。
func WithCache(c cache.Cache) Option {
	return func(o *buildOptions) { o.cache = c }
}

// Build は cfg に従って依存関係を初期化します。使用後は Close を呼び出してください。
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pipeline.Build: config cannot be nil")
	}
	o := &buildOptions{}
	for _, opt := range opts {
		opt(o)
	}

	p := &Pipeline{}

	c := o.cache
	if c == nil {
		var err error
		if c, err = p.newCache(ctx, cfg.Cache); err != nil {
			return nil, err
		}
	}

	p.Cache = c

	// 1. 取得戦略 (優先順)
	p.Direct = fetcher.NewDirect(cfg.Fetch.Timeout,
		fetcher.WithMaxRetries(uint64(cfg.Fetch.MaxRetries)),
		fetcher.WithProbeTimeout(cfg.Fetch.ProbeTimeout),
		fetcher.WithMaxBodySize(cfg.Fetch.MaxBodySize),
	)

	strategies := make([]fetcher.Strategy, 0, len(cfg.Fetch.Strategies))
	var pageFetcher fetcher.Strategy
	for _, name := range cfg.Fetch.Strategies {
		s, err := p.newStrategy(name, cfg.Fetch)
		if err != nil {
			p.Close()
			return nil, err
		}
		s = fetcher.NewCached(s, c)
		if o.metrics != nil {
			s = o.metrics.Instrument(s)
		}
		if name == fetcher.StrategyDirect {
			pageFetcher = s
		}
		strategies = append(strategies, s)
	}
	if pageFetcher == nil {
		pageFetcher = fetcher.NewCached(p.Direct, c)
	}

	mode, err := fetcher.ParseMode(cfg.Fetch.Mode)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Ladder = fetcher.NewLadder(mode, strategies...)

	// 2. Extractor (サブページはデスクトップ用の直接取得で辿る)
	extractOpts := []extract.Option{extract.WithMaxLinksPerPage(cfg.Extract.MaxLinksPerPage)}
	if cfg.Extract.VerifyMX {
		extractOpts = append(extractOpts, extract.WithEmailVerifier(extract.NewMXVerifier(cfg.Extract.DNSResolver)))
	}
	p.Extractor, err = extract.NewExtractor(pageFetcher, extractOpts...)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("Extractorの初期化エラー: %w", err)
	}

	// 3. Resolver
	p.Resolver = newResolver(cfg.Search, cfg.Fetch, c)

	// 4. Scraper
	scraperOpts := []scraper.Option{
		scraper.WithConcurrency(cfg.Batch.Concurrency),
		scraper.WithDelay(cfg.Batch.Delay),
		scraper.WithQueryTimeout(cfg.Batch.QueryTimeout),
		scraper.WithMaxLinkDepth(cfg.LinkDepth()),
		scraper.WithObservers(o.observers...),
	}
	if cfg.Fetch.Probe {
		scraperOpts = append(scraperOpts, scraper.WithProber(p.Direct))
	}
	if o.metrics != nil {
		scraperOpts = append(scraperOpts, scraper.WithObservers(o.metrics))
	}
	p.Scraper, err = scraper.New(p.Resolver, p.Ladder, p.Extractor, scraperOpts...)
	if err != nil {
		p.Close()
		return nil, err
	}

	zap.L().Debug("パイプラインを初期化しました",
		zap.Strings("strategies", p.Ladder.Strategies()),
		zap.String("mode", string(mode)),
		zap.String("cache", cfg.Cache.Backend),
		zap.Int("link_depth", cfg.LinkDepth()),
	)
	return p, nil
}

func (p *Pipeline) newCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Backend {
	case config.CacheNone:
		return nil, nil
	case config.CacheRedis:
		r := cache.NewRedis(cfg.RedisAddr, cfg.TTL)
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, fmt.Errorf("Redisに接続できませんでした (%s): %w", cfg.RedisAddr, err)
		}
		p.closers = append(p.closers, r.Close)
		return r, nil
	default:
		return cache.NewMemory(cfg.TTL), nil
	}
}

func (p *Pipeline) newStrategy(name string, cfg config.FetchConfig) (fetcher.Strategy, error) {
	switch name {
	case fetcher.StrategyDirect:
		return p.Direct, nil
	case fetcher.StrategyMobile:
		return fetcher.NewMobile(cfg.Timeout,
			fetcher.WithMaxRetries(uint64(cfg.MaxRetries)),
			fetcher.WithMaxBodySize(cfg.MaxBodySize),
		), nil
	case fetcher.StrategyColly:
		return fetcher.NewColly(cfg.Timeout), nil
	case fetcher.StrategyBrowser:
		return fetcher.NewBrowser(cfg.BrowserTimeout), nil
	case fetcher.StrategyArchive:
		return fetcher.NewArchive(cfg.WaybackEndpoint, p.Direct), nil
	case fetcher.StrategyReader:
		return fetcher.NewReader(cfg.ReaderEndpoint, p.Direct), nil
	default:
		return nil, fmt.Errorf("不明な取得戦略です: %q", name)
	}
}

// newResolver は検索プロバイダーとフォールバックから Resolver を組み立てます。
// 検索APIの呼び出しはリトライせず、失敗した場合はすぐにフォールバックへ進みます。
func newResolver(cfg config.SearchConfig, fetchCfg config.FetchConfig, c cache.Cache) *resolver.Resolver {
	serp := resolver.NewSerpAPI(
		httpkit.New(cfg.Timeout, httpkit.WithMaxRetries(0)),
		cfg.SerpAPIKey,
		cfg.SerpAPIEndpoint,
	)

	fallbacks := []resolver.Fallback{
		resolver.NewDuckDuckGo(&http.Client{Timeout: cfg.Timeout}, cfg.DuckDuckGoEndpoint),
	}
	if cfg.BrowserFallback {
		fallbacks = append(fallbacks, resolver.NewBrowserSearch(fetchCfg.BrowserTimeout))
	}

	opts := []resolver.Option{
		resolver.WithFallbacks(fallbacks...),
		resolver.WithKeyword(cfg.Keyword),
		resolver.WithTimeout(cfg.Timeout),
	}
	if c != nil {
		opts = append(opts, resolver.WithCache(c))
	}
	return resolver.New(serp, opts...)
}

// Close は Build で確保した外部接続を閉じます。
func (p *Pipeline) Close() error {
	var firstErr error
	for _, closeFn := range p.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.closers = nil
	return firstErr
}
