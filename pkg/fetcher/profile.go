package fetcher

import (
	"net/http"
	"sync"
)

// HeaderProfile はリクエストに付与するブラウザ風の識別ヘッダー一式です。
type HeaderProfile struct {
	Name           string
	UserAgent      string
	Accept         string
	AcceptLanguage string
}

const (
	acceptHTML     = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	acceptLanguage = "nl-NL,nl;q=0.9,en-US;q=0.8,en;q=0.7"
)

// DesktopProfiles はデスクトップブラウザの識別子です。
var DesktopProfiles = []HeaderProfile{
	{
		Name:           "chrome-windows",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Accept:         acceptHTML,
		AcceptLanguage: acceptLanguage,
	},
	{
		Name:           "safari-macos",
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		Accept:         acceptHTML,
		AcceptLanguage: acceptLanguage,
	},
	{
		Name:           "firefox-linux",
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
		Accept:         acceptHTML,
		AcceptLanguage: acceptLanguage,
	},
}

// MobileProfiles はモバイル端末の識別子です。デスクトップ向けにブロックされるサイトで使用します。
var MobileProfiles = []HeaderProfile{
	{
		Name:           "safari-iphone",
		UserAgent:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
		Accept:         acceptHTML,
		AcceptLanguage: acceptLanguage,
	},
	{
		Name:           "chrome-android",
		UserAgent:      "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
		Accept:         acceptHTML,
		AcceptLanguage: acceptLanguage,
	},
}

// Rotator はヘッダープロファイルを順番に払い出します。並行利用に対して安全です。
type Rotator struct {
	mu       sync.Mutex
	profiles []HeaderProfile
	index    int
}

// NewRotator は Rotator を生成します。profiles が空の場合は DesktopProfiles を使用します。
func NewRotator(profiles []HeaderProfile) *Rotator {
	if len(profiles) == 0 {
		profiles = DesktopProfiles
	}
	return &Rotator{profiles: profiles}
}

// Next は次のプロファイルを返します。
func (r *Rotator) Next() HeaderProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.profiles[r.index]
	r.index = (r.index + 1) % len(r.profiles)
	return p
}

// Apply はプロファイルのヘッダーをリクエストに設定します。
func (p HeaderProfile) Apply(req *http.Request) {
	req.Header.Set("User-Agent", p.UserAgent)
	req.Header.Set("Accept", p.Accept)
	req.Header.Set("Accept-Language", p.AcceptLanguage)
}
