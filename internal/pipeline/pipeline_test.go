package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j0rgje/KDVcontactscraper/internal/metrics"
	"github.com/j0rgje/KDVcontactscraper/pkg/config"
	"github.com/j0rgje/KDVcontactscraper/pkg/fetcher"
	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name           string
		mutate         func(*config.Config)
		wantStrategies []string
		wantErr        bool
	}{
		{
			name:           "defaults",
			mutate:         func(*config.Config) {},
			wantStrategies: []string{"direct", "mobile", "colly", "browser", "archive", "reader"},
		},
		{
			name: "custom order without cache",
			mutate: func(c *config.Config) {
				c.Fetch.Strategies = []string{"archive", "direct"}
				c.Cache.Backend = config.CacheNone
			},
			wantStrategies: []string{"archive", "direct"},
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *config.Config) { c.Fetch.Strategies = []string{"curl"} },
			wantErr: true,
		},
		{
			name: "unreachable redis",
			mutate: func(c *config.Config) {
				c.Cache.Backend = config.CacheRedis
				c.Cache.RedisAddr = "127.0.0.1:1"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			p, err := Build(context.Background(), cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer p.Close()

			assert.Equal(t, tt.wantStrategies, p.Ladder.Strategies())
			assert.Equal(t, fetcher.ModeFirst, p.Ladder.Mode())
			assert.NotNil(t, p.Scraper)
		})
	}
}

func TestBuild_NilConfig(t *testing.T) {
	_, err := Build(context.Background(), nil)
	assert.Error(t, err)
}

// TestPipeline_EndToEnd は検索 (DuckDuckGo 互換) からサイト取得・抽出までを通しで確認します。
func TestPipeline_EndToEnd(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><main><p>Contact: info@kdv-zon.nl, 030-1234567</p></main></body></html>`)
	}))
	defer site.Close()

	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("q") == "Zonnekind Utrecht kinderopvang" {
			fmt.Fprint(w, `<html><body></body></html>`)
			return
		}
		fmt.Fprintf(w, `<html><body><a class="result__a" href="%s/">KDV De Zon</a></body></html>`, site.URL)
	}))
	defer search.Close()

	cfg := config.Default()
	cfg.Search.DuckDuckGoEndpoint = search.URL
	cfg.Fetch.Strategies = []string{fetcher.StrategyDirect}
	cfg.Batch.Delay = 0
	cfg.Cache.Backend = config.CacheNone

	m := metrics.NewMetrics(prometheus.NewRegistry())
	p, err := Build(context.Background(), cfg, WithMetrics(m))
	require.NoError(t, err)
	defer p.Close()

	records := p.Scraper.Run(context.Background(), []types.Query{
		{FacilityName: "KDV De Zon", Locality: "Utrecht"},
		{FacilityName: "Zonnekind", Locality: "Utrecht"},
	})
	require.Len(t, records, 2)

	assert.Equal(t, types.ResolutionFallback, records[0].Method)
	assert.Equal(t, site.URL+"/", records[0].URL)
	assert.Equal(t, []string{"info@kdv-zon.nl"}, records[0].Emails)
	assert.Equal(t, []string{"+31 30 1234567"}, records[0].Phones)
	assert.Empty(t, records[0].Error)

	assert.Equal(t, types.ResolutionNone, records[1].Method)
	assert.Equal(t, "Geen website gevonden", records[1].Error)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues(metrics.OutcomeSuccess, "fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchAttemptsTotal.WithLabelValues("direct", "ok")))
}

func TestPipeline_SearchProviderIsNotRetried(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><main><p>Contact: info@kdv-zon.nl</p></main></body></html>`)
	}))
	defer site.Close()

	var serpCalls, fallbackCalls atomic.Int32
	serp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		serpCalls.Add(1)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer serp.Close()

	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fallbackCalls.Add(1)
		fmt.Fprintf(w, `<html><body><a class="result__a" href="%s/">KDV De Zon</a></body></html>`, site.URL)
	}))
	defer search.Close()

	cfg := config.Default()
	cfg.Search.SerpAPIKey = "secret"
	cfg.Search.SerpAPIEndpoint = serp.URL + "/search.json"
	cfg.Search.DuckDuckGoEndpoint = search.URL
	cfg.Fetch.Strategies = []string{fetcher.StrategyDirect}
	cfg.Fetch.MaxRetries = 3
	cfg.Batch.Delay = 0
	cfg.Cache.Backend = config.CacheNone

	p, err := Build(context.Background(), cfg, WithMetrics(metrics.NewMetrics(prometheus.NewRegistry())))
	require.NoError(t, err)
	defer p.Close()

	records := p.Scraper.Run(context.Background(), []types.Query{{FacilityName: "KDV De Zon", Locality: "Utrecht"}})
	require.Len(t, records, 1)

	assert.Equal(t, int32(1), serpCalls.Load())
	assert.Equal(t, int32(1), fallbackCalls.Load())
	assert.Equal(t, types.ResolutionFallback, records[0].Method)
	assert.Equal(t, []string{"info@kdv-zon.nl"}, records[0].Emails)
}
