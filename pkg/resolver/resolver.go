package resolver

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/j0rgje/KDVcontactscraper/pkg/cache"
	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

const (
	// DefaultTimeout は検索1回あたりのタイムアウトです。
	DefaultTimeout = 10 * time.Second
	// DefaultKeyword は検索語の末尾に付加する語です。
	DefaultKeyword = "kinderopvang"
)

// Resolver は (施設名, 所在地) の組から施設のウェブサイトを特定します。
// 主検索プロバイダーで見つからない場合は、フォールバックを順に試します。
type Resolver struct {
	primary   SearchProvider
	fallbacks []Fallback
	cache     cache.Cache
	keyword   string
	timeout   time.Duration
}

// Option は Resolver の設定を行うための関数型です。
type Option func(*Resolver)

// WithFallbacks は代替検索を優先順で設定します。
func WithFallbacks(fallbacks ...Fallback) Option {
	return func(r *Resolver) { r.fallbacks = fallbacks }
}

// WithCache は解決結果のキャッシュを設定します。
func WithCache(c cache.Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithKeyword は検索語に付加する語を設定します。
func WithKeyword(keyword string) Option {
	return func(r *Resolver) { r.keyword = strings.TrimSpace(keyword) }
}

// WithTimeout は検索1回あたりのタイムアウトを設定します。
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New は Resolver を生成します。primary は nil でも構いません (フォールバックのみで検索します)。
func New(primary SearchProvider, opts ...Option) *Resolver {
	r := &Resolver{
		primary: primary,
		keyword: DefaultKeyword,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SearchQuery は検索語 "<施設名> <所在地> <キーワード>" を組み立てます。
func (r *Resolver) SearchQuery(q types.Query) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{q.FacilityName, q.Locality, r.keyword} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Resolve はウェブサイトのURLと、それを見つけた経路を返します。
// エラーは呼び出し元に返さず、ログに記録したうえで Method=none の結果として扱います。
func (r *Resolver) Resolve(ctx context.Context, q types.Query) types.ResolvedSite {
	site := types.ResolvedSite{Query: q, Method: types.ResolutionNone}
	key := cache.Key("resolver.Resolve", q.FacilityName, q.Locality)

	if r.cache != nil {
		var cached types.ResolvedSite
		if err := cache.GetJSON(ctx, r.cache, key, &cached); err == nil && cached.Found() {
			cached.Query = q
			return cached
		}
	}

	query := r.SearchQuery(q)
	if link := r.searchPrimary(ctx, query); link != "" {
		site.URL, site.Method = link, types.ResolutionPrimary
	} else if link := r.searchFallbacks(ctx, query); link != "" {
		site.URL, site.Method = link, types.ResolutionFallback
	}

	if site.Found() && r.cache != nil {
		if err := cache.SetJSON(ctx, r.cache, key, site); err != nil {
			zap.L().Warn("解決結果のキャッシュ保存に失敗しました", zap.String("query", query), zap.Error(err))
		}
	}
	return site
}

func (r *Resolver) searchPrimary(ctx context.Context, query string) string {
	if r.primary == nil {
		return ""
	}
	searchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	hits, err := r.primary.Search(searchCtx, query)
	switch {
	case errors.Is(err, ErrMissingCredential):
		zap.L().Debug("検索APIキーが未設定のため代替検索を使用します", zap.String("query", query))
		return ""
	case err != nil:
		zap.L().Warn("検索APIでの検索に失敗しました", zap.String("query", query), zap.Error(err))
		return ""
	}

	link := firstLink(hits)
	if link == "" {
		zap.L().Info("検索APIの結果が空でした", zap.String("query", query))
	}
	return link
}

func (r *Resolver) searchFallbacks(ctx context.Context, query string) string {
	for _, fb := range r.fallbacks {
		if ctx.Err() != nil {
			return ""
		}
		// タイムアウトは各フォールバック (HTTPクライアント、ブラウザ) 側で管理する
		link, err := fb.Lookup(ctx, query)
		if err != nil {
			zap.L().Warn("代替検索に失敗しました", zap.String("fallback", fb.Name()), zap.String("query", query), zap.Error(err))
			continue
		}
		if link != "" {
			zap.L().Debug("代替検索でサイトを特定しました", zap.String("fallback", fb.Name()), zap.String("url", link))
			return link
		}
	}
	return ""
}
