package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

const (
	DefaultBrowserTimeout = 30 * time.Second
	// browserSettleTime は JavaScript による描画を待つ時間です。
	browserSettleTime = 2 * time.Second
)

// Browser はヘッドレス Chrome でページを描画してから HTML を取得する戦略です。
type Browser struct {
	timeout time.Duration
	opts    []chromedp.ExecAllocatorOption
}

// NewBrowser は Browser 戦略を生成します。
func NewBrowser(timeout time.Duration) *Browser {
	if timeout <= 0 {
		timeout = DefaultBrowserTimeout
	}
	return &Browser{timeout: timeout, opts: BrowserAllocatorOptions(DesktopProfiles[0].UserAgent)}
}

// BrowserAllocatorOptions はヘッドレス実行用の Chrome 起動オプションを返します。
func BrowserAllocatorOptions(userAgent string) []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
}

func (s *Browser) Name() string {
	return StrategyBrowser
}

func (s *Browser) Fetch(ctx context.Context, rawURL string) types.FetchResult {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, s.opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, s.timeout)
	defer cancelTimeout()

	var html, location string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(browserSettleTime),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return Failure(rawURL, s.Name(), fmt.Errorf("ヘッドレスブラウザでの取得に失敗しました: %w", err))
	}

	if location == "" {
		location = rawURL
	}
	return types.FetchResult{
		URL:        location,
		Status:     types.FetchOK,
		StatusCode: http.StatusOK,
		Body:       html,
		Method:     s.Name(),
	}
}
