package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	textUtils "github.com/shouni/go-utils/text"
	"golang.org/x/net/html"
)

const (
	mainContentSelectors = "article, main, div[role='main'], #main, #content, .main-content, .entry-content, .page-content"
	noiseTags            = "script, style, noscript, iframe, svg, template, nav, footer, header, aside, form"

	// minMainContentLength 未満のテキストしか持たないメイン領域は無視し、body 全体を使います。
	minMainContentLength = 40
	maxNoiseTextLength   = 3000
)

// noiseWords は class/id に含まれているとノイズ要素とみなす語です。
var noiseWords = []string{
	"cookie", "consent", "banner", "newsletter", "popup", "modal", "social", "share",
	"breadcrumb", "menu", "navbar", "footer", "sidebar", "advert",
}

// blockElements は前後で行を区切る要素です。
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true, "dd": true,
	"div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true, "figure": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "header": true,
	"hr": true, "li": true, "main": true, "ol": true, "p": true, "section": true, "table": true,
	"td": true, "th": true, "tr": true, "ul": true,
}

// removeNoise はタグ名と class/id の部分一致でノイズ要素を除去します。
func removeNoise(doc *goquery.Document) {
	doc.Find(noiseTags).Remove()

	doc.Find("body *[class], body *[id]").Each(func(_ int, s *goquery.Selection) {
		if isNoise(s) {
			s.Remove()
		}
	})
}

func isNoise(s *goquery.Selection) bool {
	// ページ全体を包むラッパー (例: class="site has-sidebar") は除去しない
	if s.Is(mainContentSelectors) || s.Find(mainContentSelectors).Length() > 0 {
		return false
	}
	if len(s.Text()) > maxNoiseTextLength {
		return false
	}
	class, _ := s.Attr("class")
	id, _ := s.Attr("id")
	attrs := strings.ToLower(class + " " + id)
	for _, w := range noiseWords {
		if strings.Contains(attrs, w) {
			return true
		}
	}
	return false
}

// findMainContent はメインコンテンツ領域を返します。見つからない場合は body 全体を返します。
func findMainContent(doc *goquery.Document) *goquery.Selection {
	main := doc.Find(mainContentSelectors).First()
	if main.Length() > 0 && len(strings.TrimSpace(main.Text())) >= minMainContentLength {
		return main
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		return doc.Selection
	}
	return body
}

// textLines はブロック要素で区切った行単位のテキストを返します。空行は除外されます。
func textLines(sel *goquery.Selection) []string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeText(&b, n)
	}
	return splitLines(b.String())
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if blockElements[n.Data] {
			b.WriteByte('\n')
			defer b.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
}

func splitLines(s string) []string {
	var lines []string
	for _, raw := range strings.Split(s, "\n") {
		line := normalizeLine(raw)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func normalizeLine(s string) string {
	s = textUtils.NormalizeText(s)
	return strings.Join(strings.Fields(s), " ")
}

// readabilityLines は go-readability で本文を推定し、その行を返します。
// クリーニング後のテキストが空だった場合のフォールバックです。
func readabilityLines(rawHTML, pageURL string) []string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	article, err := readability.FromReader(strings.NewReader(rawHTML), parsed)
	if err != nil || article.Content == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return nil
	}
	return textLines(doc.Selection)
}
