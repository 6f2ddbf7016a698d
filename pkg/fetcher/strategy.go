package fetcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/j0rgje/KDVcontactscraper/pkg/cache"
	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

// 戦略名
const (
	StrategyDirect  = "direct"
	StrategyMobile  = "mobile"
	StrategyColly   = "colly"
	StrategyBrowser = "browser"
	StrategyArchive = "archive"
	StrategyReader  = "reader"
)

// KnownStrategy は name が既知の戦略名かどうかを返します。
func KnownStrategy(name string) bool {
	switch name {
	case StrategyDirect, StrategyMobile, StrategyColly, StrategyBrowser, StrategyArchive, StrategyReader:
		return true
	}
	return false
}

// Strategy はURLを独自の手段で取得する1つの取得戦略です。
// 実装はエラーを返さず、型付きの FetchResult に結果を畳み込みます。
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, rawURL string) types.FetchResult
}

// NewDirect はデスクトップ用ヘッダーで直接取得する戦略を生成します。
func NewDirect(timeout time.Duration, options ...Option) *Client {
	opts := append([]Option{WithName(StrategyDirect), WithProfiles(DesktopProfiles)}, options...)
	return New(timeout, opts...)
}

// NewMobile はモバイル端末の識別子で取得する戦略を生成します。
func NewMobile(timeout time.Duration, options ...Option) *Client {
	opts := append([]Option{WithName(StrategyMobile), WithProfiles(MobileProfiles)}, options...)
	return New(timeout, opts...)
}

// Cached は成功した取得結果をキャッシュする Strategy のラッパーです。
type Cached struct {
	inner Strategy
	cache cache.Cache
}

// NewCached は inner をキャッシュでラップします。c が nil の場合は inner をそのまま返します。
func NewCached(inner Strategy, c cache.Cache) Strategy {
	if c == nil {
		return inner
	}
	return &Cached{inner: inner, cache: c}
}

func (s *Cached) Name() string {
	return s.inner.Name()
}

func (s *Cached) Fetch(ctx context.Context, rawURL string) types.FetchResult {
	key := cache.Key("fetcher.Fetch."+s.inner.Name(), rawURL)

	var hit types.FetchResult
	err := cache.GetJSON(ctx, s.cache, key, &hit)
	if err == nil && hit.OK() {
		return hit
	}
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		zap.L().Warn("キャッシュの読み込みに失敗しました", zap.String("url", rawURL), zap.Error(err))
	}

	res := s.inner.Fetch(ctx, rawURL)
	if res.OK() {
		if err := cache.SetJSON(ctx, s.cache, key, res); err != nil {
			zap.L().Warn("キャッシュへの保存に失敗しました", zap.String("url", rawURL), zap.Error(err))
		}
	}
	return res
}
