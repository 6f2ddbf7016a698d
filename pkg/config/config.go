package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/j0rgje/KDVcontactscraper/pkg/fetcher"
)

// EnvPrefix は設定を上書きする環境変数の接頭辞です (例: KDV_BATCH_CONCURRENCY)。
const EnvPrefix = "KDV"

// Config はアプリケーション全体の設定です。
type Config struct {
	Search  SearchConfig  `mapstructure:"search"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Extract ExtractConfig `mapstructure:"extract"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Store   StoreConfig   `mapstructure:"store"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
}

// SearchConfig はウェブサイト検索の設定です。
type SearchConfig struct {
	SerpAPIKey         string        `mapstructure:"serpapi_key"`
	SerpAPIEndpoint    string        `mapstructure:"serpapi_endpoint"`
	DuckDuckGoEndpoint string        `mapstructure:"duckduckgo_endpoint"`
	Keyword            string        `mapstructure:"keyword"`
	Timeout            time.Duration `mapstructure:"timeout"`
	BrowserFallback    bool          `mapstructure:"browser_fallback"`
}

// FetchConfig はページ取得の設定です。
type FetchConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	BrowserTimeout  time.Duration `mapstructure:"browser_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	Probe           bool          `mapstructure:"probe"`
	Mode            string        `mapstructure:"mode"`
	Strategies      []string      `mapstructure:"strategies"`
	WaybackEndpoint string        `mapstructure:"wayback_endpoint"`
	ReaderEndpoint  string        `mapstructure:"reader_endpoint"`
}

// ExtractConfig は連絡先抽出の設定です。
type ExtractConfig struct {
	Deep            bool   `mapstructure:"deep"`
	MaxLinkDepth    int    `mapstructure:"max_link_depth"`
	MaxLinksPerPage int    `mapstructure:"max_links_per_page"`
	VerifyMX        bool   `mapstructure:"verify_mx"`
	DNSResolver     string `mapstructure:"dns_resolver"`
}

// BatchConfig はバッチ処理の設定です。
type BatchConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	Delay        time.Duration `mapstructure:"delay"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// CacheConfig はキャッシュの設定です。Backend は memory, redis, none のいずれかです。
type CacheConfig struct {
	Backend   string        `mapstructure:"backend"`
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// StoreConfig は実行履歴の保存先です。PostgresURL が空の場合は保存しません。
type StoreConfig struct {
	PostgresURL string `mapstructure:"postgres_url"`
}

// ServerConfig は HTTP API の設定です。
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxQueries     int           `mapstructure:"max_queries"`
}

// LogConfig はログ出力の設定です。
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// キャッシュのバックエンド
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Default は既定の設定を返します。
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			Keyword: "kinderopvang",
			Timeout: 10 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:        fetcher.DefaultHTTPTimeout,
			ProbeTimeout:   fetcher.DefaultProbeTimeout,
			BrowserTimeout: fetcher.DefaultBrowserTimeout,
			MaxRetries:     2,
			MaxBodySize:    fetcher.MaxBodySize,
			Probe:          true,
			Mode:           string(fetcher.ModeFirst),
			Strategies: []string{
				fetcher.StrategyDirect,
				fetcher.StrategyMobile,
				fetcher.StrategyColly,
				fetcher.StrategyBrowser,
				fetcher.StrategyArchive,
				fetcher.StrategyReader,
			},
			WaybackEndpoint: fetcher.DefaultWaybackEndpoint,
			ReaderEndpoint:  fetcher.DefaultReaderEndpoint,
		},
		Extract: ExtractConfig{
			MaxLinkDepth:    2,
			MaxLinksPerPage: 3,
		},
		Batch: BatchConfig{
			Concurrency:  1,
			Delay:        time.Second,
			QueryTimeout: 3 * time.Minute,
		},
		Cache: CacheConfig{
			Backend:   CacheMemory,
			RedisAddr: "localhost:6379",
			TTL:       24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 10 * time.Minute,
			MaxQueries:     200,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("search.serpapi_key", d.Search.SerpAPIKey)
	v.SetDefault("search.serpapi_endpoint", d.Search.SerpAPIEndpoint)
	v.SetDefault("search.duckduckgo_endpoint", d.Search.DuckDuckGoEndpoint)
	v.SetDefault("search.keyword", d.Search.Keyword)
	v.SetDefault("search.timeout", d.Search.Timeout)
	v.SetDefault("search.browser_fallback", d.Search.BrowserFallback)

	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.probe_timeout", d.Fetch.ProbeTimeout)
	v.SetDefault("fetch.browser_timeout", d.Fetch.BrowserTimeout)
	v.SetDefault("fetch.max_retries", d.Fetch.MaxRetries)
	v.SetDefault("fetch.max_body_size", d.Fetch.MaxBodySize)
	v.SetDefault("fetch.probe", d.Fetch.Probe)
	v.SetDefault("fetch.mode", d.Fetch.Mode)
	v.SetDefault("fetch.strategies", d.Fetch.Strategies)
	v.SetDefault("fetch.wayback_endpoint", d.Fetch.WaybackEndpoint)
	v.SetDefault("fetch.reader_endpoint", d.Fetch.ReaderEndpoint)

	v.SetDefault("extract.deep", d.Extract.Deep)
	v.SetDefault("extract.max_link_depth", d.Extract.MaxLinkDepth)
	v.SetDefault("extract.max_links_per_page", d.Extract.MaxLinksPerPage)
	v.SetDefault("extract.verify_mx", d.Extract.VerifyMX)
	v.SetDefault("extract.dns_resolver", d.Extract.DNSResolver)

	v.SetDefault("batch.concurrency", d.Batch.Concurrency)
	v.SetDefault("batch.delay", d.Batch.Delay)
	v.SetDefault("batch.query_timeout", d.Batch.QueryTimeout)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.ttl", d.Cache.TTL)

	v.SetDefault("store.postgres_url", d.Store.PostgresURL)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.max_queries", d.Server.MaxQueries)

	v.SetDefault("log.level", d.Log.Level)
}

// Load は既定値、設定ファイル (path が空でない場合)、環境変数の順に設定を読み込みます。
// SerpAPI のキーは KDV_SEARCH_SERPAPI_KEY のほか SERPAPI_API_KEY からも読み込みます。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("search.serpapi_key", EnvPrefix+"_SEARCH_SERPAPI_KEY", "SERPAPI_API_KEY"); err != nil {
		return nil, fmt.Errorf("環境変数のバインドに失敗しました: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗しました (%s): %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("設定の展開に失敗しました: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値の整合性を検証します。
func (c *Config) Validate() error {
	var errs []error

	if _, err := fetcher.ParseMode(c.Fetch.Mode); err != nil {
		errs = append(errs, err)
	}
	if len(c.Fetch.Strategies) == 0 {
		errs = append(errs, errors.New("fetch.strategies に少なくとも1つの取得戦略が必要です"))
	}
	for _, s := range c.Fetch.Strategies {
		if !fetcher.KnownStrategy(s) {
			errs = append(errs, fmt.Errorf("不明な取得戦略です: %q", s))
		}
	}
	if c.Batch.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("batch.concurrency は1以上である必要があります: %d", c.Batch.Concurrency))
	}
	if c.Extract.MaxLinkDepth < 0 {
		errs = append(errs, fmt.Errorf("extract.max_link_depth は0以上である必要があります: %d", c.Extract.MaxLinkDepth))
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheRedis, CacheNone:
	default:
		errs = append(errs, fmt.Errorf("不明なキャッシュバックエンドです: %q (memory, redis, none)", c.Cache.Backend))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("設定が不正です: %w", err)
	}
	return nil
}

// LinkDepth は deep モードが有効な場合のみリンク追跡の深さを返します。
func (c *Config) LinkDepth() int {
	if !c.Extract.Deep {
		return 0
	}
	return c.Extract.MaxLinkDepth
}
