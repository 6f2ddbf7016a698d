package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

const (
	// DefaultMaxLinkDepth はリンク追跡の最大深さです。
	DefaultMaxLinkDepth = 2
	// DefaultMaxLinksPerPage は1ページから追跡する新規リンクの最大数です。
	DefaultMaxLinksPerPage = 3

	minAddressTagLength = 5
	maxAddressTagLength = 200
)

// Extractor は、ページ本文から連絡先 (メール、電話、住所、責任者) を抽出します。
// deep モードでは連絡先系のサブページを PageFetcher で取得し、幅優先で辿ります。
type Extractor struct {
	fetcher         PageFetcher
	patterns        *PatternTable
	verifier        EmailVerifier
	maxLinksPerPage int
}

// Option は Extractor の設定を行うための関数型です。
type Option func(*Extractor)

// WithPatterns は抽出パターンのテーブルを置き換えます。
func WithPatterns(t *PatternTable) Option {
	return func(e *Extractor) { e.patterns = t }
}

// WithEmailVerifier はメールドメインの検証器を設定します。
func WithEmailVerifier(v EmailVerifier) Option {
	return func(e *Extractor) { e.verifier = v }
}

// WithMaxLinksPerPage は1ページあたりの追跡リンク数を設定します。
func WithMaxLinksPerPage(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxLinksPerPage = n
		}
	}
}

// NewExtractor は、新しい Extractor のインスタンスを生成します。
func NewExtractor(fetcher PageFetcher, opts ...Option) (*Extractor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("extract.NewExtractor: PageFetcher cannot be nil")
	}
	e := &Extractor{
		fetcher:         fetcher,
		patterns:        DefaultPatterns(),
		maxLinksPerPage: DefaultMaxLinksPerPage,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type pageTask struct {
	url   string
	depth int
}

// Extract は取得済みのページから連絡先を抽出します。maxLinkDepth が1以上の場合、
// 同一サイトの連絡先系リンクを1ページあたり最大 maxLinksPerPage 件、maxLinkDepth の深さまで辿ります。
// start.URL はリダイレクト後の最終URLであり、同一サイトの判定とリンク解決の基準になります。
// 一致が無いことはエラーではありません。予期しない失敗が起きた場合もそれまでの結果は保持されます。
func (e *Extractor) Extract(ctx context.Context, start types.FetchResult, maxLinkDepth int) (contacts types.Contacts, err error) {
	c := newCollector()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("抽出中に予期しないエラーが発生しました: %v", r)
		}
		e.verifyEmails(ctx, c)
		contacts = c.contacts()
	}()

	if !start.OK() {
		return types.Contacts{}, fmt.Errorf("取得に成功していないページは抽出できません (status: %s)", start.Status)
	}

	queue := []pageTask{{url: start.URL, depth: 0}}
	visited := map[string]bool{start.URL: true}
	var errs []error

	for len(queue) > 0 {
		task := queue[0]
		queue = queue[1:]

		page := start
		if task.depth > 0 {
			if ctx.Err() != nil {
				break
			}
			page = e.fetcher.Fetch(ctx, task.url)
			if !page.OK() {
				zap.L().Debug("サブページの取得に失敗したためスキップします",
					zap.String("url", task.url), zap.String("status", string(page.Status)))
				continue
			}
			// リダイレクト先のURLを相対リンクの基準にする
			if page.URL == "" {
				page.URL = task.url
			}
			visited[page.URL] = true
		}

		links, perr := e.extractPage(c, page.Body, page.URL, page.Method)
		if perr != nil {
			errs = append(errs, perr)
			continue
		}
		if task.depth >= maxLinkDepth {
			continue
		}

		added := 0
		for _, link := range links {
			if added >= e.maxLinksPerPage {
				break
			}
			if visited[link] {
				continue
			}
			visited[link] = true
			queue = append(queue, pageTask{url: link, depth: task.depth + 1})
			added++
		}
	}

	return types.Contacts{}, errors.Join(errs...)
}

// ExtractPage は1ページ分のHTMLから連絡先を抽出します。リンクは辿りません。
func (e *Extractor) ExtractPage(body, pageURL, source string) (types.Contacts, error) {
	c := newCollector()
	_, err := e.extractPage(c, body, pageURL, source)
	return c.contacts(), err
}

// extractPage は1ページを解析して c に結果を追加し、辿る候補のリンクを返します。
func (e *Extractor) extractPage(c *collector, body, pageURL, source string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTML解析に失敗しました (URL: %s): %w", pageURL, err)
	}

	// ナビゲーションやフッターを除去する前に、明示的なリンクと住所要素を拾う
	e.collectAnchors(c, doc, source, pageURL)
	e.collectAddressTags(c, doc, source, pageURL)

	var links []string
	if base, err := url.Parse(pageURL); err == nil && base.Host != "" {
		links = contactLinks(doc, base)
	}

	removeNoise(doc)
	lines := textLines(findMainContent(doc))
	if len(lines) == 0 {
		lines = readabilityLines(body, pageURL)
	}

	for _, line := range lines {
		e.patterns.Apply(c, line, source, pageURL)
	}
	extractManagers(c, lines, source, pageURL)

	return links, nil
}

// collectAnchors は mailto: と tel: リンクから連絡先を抽出します。
func (e *Extractor) collectAnchors(c *collector, doc *goquery.Document, source, pageURL string) {
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		switch {
		case hasScheme(href, "mailto:"):
			if v, ok := NormalizeEmail(href); ok {
				c.add(types.Match{Category: types.CategoryEmail, Value: v, Pattern: "mailto-link", Confidence: 1.0, Source: source, PageURL: pageURL})
			}
		case hasScheme(href, "tel:"):
			raw, _ := url.PathUnescape(href[len("tel:"):])
			if v, ok := NormalizePhone(raw, false); ok {
				c.add(types.Match{Category: types.CategoryPhone, Value: v, Pattern: "tel-link", Confidence: 1.0, Source: source, PageURL: pageURL})
			}
		}
	})
}

// collectAddressTags は <address> 要素の内容を住所として記録します。
func (e *Extractor) collectAddressTags(c *collector, doc *goquery.Document, source, pageURL string) {
	doc.Find("address").Each(func(_ int, s *goquery.Selection) {
		v := strings.Join(textLines(s), ", ")
		if len(v) < minAddressTagLength || len(v) > maxAddressTagLength {
			return
		}
		c.add(types.Match{Category: types.CategoryAddress, Value: v, Pattern: "address-tag", Confidence: 0.9, Source: source, PageURL: pageURL})
	})
}

func (e *Extractor) verifyEmails(ctx context.Context, c *collector) {
	if e.verifier == nil {
		return
	}
	c.retain(types.CategoryEmail, func(addr string) bool {
		domain := addr[strings.LastIndexByte(addr, '@')+1:]
		return e.verifier.VerifyDomain(ctx, domain)
	})
}
