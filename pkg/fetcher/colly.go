package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

// Colly は colly のネットワークスタックでページを取得する戦略です。
// net/http クライアントとは異なるリクエストの組み立て方をするため、一部のブロックを回避できます。
type Colly struct {
	timeout time.Duration
	rotator *Rotator
}

// NewColly は Colly 戦略を生成します。
func NewColly(timeout time.Duration) *Colly {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &Colly{timeout: timeout, rotator: NewRotator(DesktopProfiles)}
}

func (s *Colly) Name() string {
	return StrategyColly
}

func (s *Colly) Fetch(ctx context.Context, rawURL string) types.FetchResult {
	profile := s.rotator.Next()

	c := colly.NewCollector(
		colly.UserAgent(profile.UserAgent),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(s.timeout)
	c.DetectCharset = true

	var (
		body     []byte
		status   int
		landed   = rawURL
		fetchErr error
	)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", profile.Accept)
		r.Headers.Set("Accept-Language", profile.AcceptLanguage)
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
		if r.Request != nil && r.Request.URL != nil {
			landed = r.Request.URL.String()
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	if err := c.Visit(rawURL); err != nil && fetchErr == nil {
		fetchErr = err
	}

	if status != 0 && (status < 200 || status > 299) {
		return Failure(rawURL, s.Name(), &HTTPStatusError{StatusCode: status})
	}
	if fetchErr != nil {
		return Failure(rawURL, s.Name(), fmt.Errorf("collyによる取得に失敗しました: %w", fetchErr))
	}

	return types.FetchResult{
		URL:        landed,
		Status:     types.FetchOK,
		StatusCode: http.StatusOK,
		Body:       string(body),
		Method:     s.Name(),
	}
}
