package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/j0rgje/KDVcontactscraper/pkg/fetcher"
)

// DefaultDuckDuckGoEndpoint はJavaScript不要の DuckDuckGo HTML 版です。
const DefaultDuckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

const resultLinkSelector = "a.result__a"

// Fallback は認証情報不要の代替検索です。見つからない場合は空文字列を返します。
type Fallback interface {
	Name() string
	Lookup(ctx context.Context, query string) (string, error)
}

// DuckDuckGo は DuckDuckGo の HTML 検索結果から最初のリンクを取り出す Fallback です。
type DuckDuckGo struct {
	client   fetcher.Doer
	endpoint string
	profile  fetcher.HeaderProfile
}

// NewDuckDuckGo は DuckDuckGo フォールバックを生成します。
func NewDuckDuckGo(client fetcher.Doer, endpoint string) *DuckDuckGo {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if endpoint == "" {
		endpoint = DefaultDuckDuckGoEndpoint
	}
	return &DuckDuckGo{client: client, endpoint: endpoint, profile: fetcher.DesktopProfiles[0]}
}

func (d *DuckDuckGo) Name() string {
	return "duckduckgo"
}

// Lookup は検索フォームを POST し、広告を除いた最初の結果のURLを返します。
func (d *DuckDuckGo) Lookup(ctx context.Context, query string) (string, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("リクエスト作成失敗: %w", err)
	}
	d.profile.Apply(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("DuckDuckGo への検索リクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &fetcher.HTTPStatusError{StatusCode: resp.StatusCode, Body: snippet}
	}

	body, err := fetcher.ReadBody(resp, fetcher.MaxBodySize)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("検索結果のHTML解析に失敗しました: %w", err)
	}

	var link string
	doc.Find(resultLinkSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		link = decodeResultLink(href)
		return link == ""
	})
	return link, nil
}

// decodeResultLink は DuckDuckGo のリダイレクトURL (/l/?uddg=...) から遷移先を取り出します。
// 広告 (y.js) や解析できないURLの場合は空文字列を返します。
func decodeResultLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return decodeResultLink(target)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") {
		return ""
	}
	return u.String()
}
