package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// contactKeywords はアンカーテキストまたはURLに含まれていると連絡先系ページとみなす語です。
var contactKeywords = []string{
	"contact", "team", "over ons", "over-ons", "overons", "about", "medewerkers",
	"organisatie", "locatie", "wie zijn wij", "wie-zijn-wij", "impressum",
}

// contactLinks は同一オリジンで連絡先・チーム・概要ページらしきリンクを文書順に返します。
// フラグメントは除去し、重複は1件にまとめます。
func contactLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || hasScheme(href, "mailto:", "tel:", "javascript:") {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		if (abs.Scheme != "http" && abs.Scheme != "https") || !sameSite(base, abs) {
			return
		}

		label := strings.ToLower(s.Text() + " " + abs.Path)
		if !containsAny(label, contactKeywords) {
			return
		}

		u := abs.String()
		if seen[u] || u == base.String() {
			return
		}
		seen[u] = true
		links = append(links, u)
	})
	return links
}

// sameSite はホスト名が一致するかを "www." の有無を無視して判定します。
func sameSite(a, b *url.URL) bool {
	return strings.TrimPrefix(strings.ToLower(a.Hostname()), "www.") ==
		strings.TrimPrefix(strings.ToLower(b.Hostname()), "www.")
}

func hasScheme(href string, schemes ...string) bool {
	lower := strings.ToLower(href)
	for _, s := range schemes {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
