package resolver

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/j0rgje/KDVcontactscraper/pkg/fetcher"
)

const (
	duckDuckGoSearchURL = "https://duckduckgo.com/?q="
	browserResultLinks  = `a.result__a, a[data-testid="result-title-a"]`
)

// BrowserSearch はヘッドレス Chrome で DuckDuckGo の通常版を開き、最初の結果リンクを返す Fallback です。
type BrowserSearch struct {
	timeout time.Duration
	opts    []chromedp.ExecAllocatorOption
}

// NewBrowserSearch は BrowserSearch を生成します。
func NewBrowserSearch(timeout time.Duration) *BrowserSearch {
	if timeout <= 0 {
		timeout = fetcher.DefaultBrowserTimeout
	}
	return &BrowserSearch{
		timeout: timeout,
		opts:    fetcher.BrowserAllocatorOptions(fetcher.DesktopProfiles[0].UserAgent),
	}
}

func (b *BrowserSearch) Name() string {
	return "browser-search"
}

func (b *BrowserSearch) Lookup(ctx context.Context, query string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, b.timeout)
	defer cancelTimeout()

	var href string
	var ok bool
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(duckDuckGoSearchURL+url.QueryEscape(query)),
		chromedp.WaitVisible(browserResultLinks, chromedp.ByQuery),
		chromedp.AttributeValue(browserResultLinks, "href", &href, &ok, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("ヘッドレスブラウザでの検索に失敗しました: %w", err)
	}
	if !ok {
		return "", nil
	}
	return decodeResultLink(href), nil
}
