package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/j0rgje/KDVcontactscraper/pkg/retry"
	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

const (
	DefaultHTTPTimeout  = 15 * time.Second
	DefaultProbeTimeout = 10 * time.Second
	MaxBodySize         = int64(5 * 1024 * 1024)

	// rateLimitBackoffFactor は 429 応答後の待機時間に掛ける倍率です。
	rateLimitBackoffFactor = 3.0
)

// Doer は、標準の *http.Client.Do() と互換性のあるHTTPクライアントのインターフェースです。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPStatusError は 2xx 以外のステータスコードを示すエラーです。
type HTTPStatusError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	const maxShown = 256
	body := strings.TrimSpace(string(e.Body))
	if len(body) > maxShown {
		body = body[:maxShown] + "..."
	}
	if body == "" {
		return fmt.Sprintf("HTTPステータスコードエラー: %d, ボディなし", e.StatusCode)
	}
	return fmt.Sprintf("HTTPステータスコードエラー: %d, ボディ: %s", e.StatusCode, body)
}

// Retryable はボット対策 (403)、レート制限 (429)、サーバーエラー (5xx) の場合に true を返します。
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode == http.StatusForbidden ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// Client はヘッダーのローテーションと指数バックオフによるリトライを行うHTTPフェッチャーです。
// Fetch は決してエラーを返さず、型付きの FetchResult に結果を畳み込みます。
type Client struct {
	name         string
	httpClient   Doer
	timeout      time.Duration
	probeTimeout time.Duration
	retryConfig  retry.Config
	rotator      *Rotator
	maxBodySize  int64
}

// Option は Client の設定を行うための関数型です。
type Option func(*Client)

// WithHTTPClient はカスタムの Doer を設定します。
func WithHTTPClient(doer Doer) Option {
	return func(c *Client) { c.httpClient = doer }
}

// WithMaxRetries は最大リトライ回数を設定します。
func WithMaxRetries(max uint64) Option {
	return func(c *Client) { c.retryConfig.MaxRetries = max }
}

// WithRetryConfig はリトライ設定全体を置き換えます。Scale が未設定の場合は 429 用の倍率を補います。
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) {
		if cfg.Scale == nil {
			cfg.Scale = rateLimitScale
		}
		c.retryConfig = cfg
	}
}

// WithProfiles はローテーションに使用するヘッダープロファイルを設定します。
func WithProfiles(profiles []HeaderProfile) Option {
	return func(c *Client) { c.rotator = NewRotator(profiles) }
}

// WithName は FetchResult.Method に記録される戦略名を設定します。
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithProbeTimeout は HEAD による到達確認のタイムアウトを設定します。
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.probeTimeout = d
		}
	}
}

// WithMaxBodySize は読み込むレスポンスボディの上限を設定します。
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// New は新しい Client を生成します。timeout は1回の試行ごとのタイムアウトです。
func New(timeout time.Duration, options ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	retryCfg := retry.DefaultConfig()
	retryCfg.Scale = rateLimitScale

	c := &Client{
		name:         StrategyDirect,
		httpClient:   &http.Client{Timeout: timeout},
		timeout:      timeout,
		probeTimeout: DefaultProbeTimeout,
		retryConfig:  retryCfg,
		rotator:      NewRotator(DesktopProfiles),
		maxBodySize:  MaxBodySize,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Name は戦略名を返します。
func (c *Client) Name() string {
	return c.name
}

// Fetch はURLを GET で取得します。403/429/タイムアウト/5xx はヘッダーを変えてリトライし、
// 上限に達した場合は型付きの失敗ステータスを返します。
// 成功時の URL はリダイレクト後の最終URLです。
func (c *Client) Fetch(ctx context.Context, rawURL string) types.FetchResult {
	var body, landed string

	op := func() error {
		var fetchErr error
		body, landed, fetchErr = c.doFetch(ctx, rawURL)
		return fetchErr
	}

	err := retry.Do(ctx, c.retryConfig, fmt.Sprintf("URL(%s)のフェッチ", rawURL), op, c.shouldRetry(ctx))
	if err != nil {
		zap.L().Debug("ページ取得に失敗しました",
			zap.String("strategy", c.name), zap.String("url", rawURL), zap.Error(err))
		return Failure(rawURL, c.name, err)
	}

	return types.FetchResult{
		URL:        landed,
		Status:     types.FetchOK,
		StatusCode: http.StatusOK,
		Body:       body,
		Method:     c.name,
	}
}

// FetchBytes は Fetch の結果をバイト配列として返します。失敗時はエラーを返します。
func (c *Client) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	res := c.Fetch(ctx, rawURL)
	if !res.OK() {
		return nil, fmt.Errorf("URL(%s)の取得に失敗しました: %s", rawURL, res.Err)
	}
	return []byte(res.Body), nil
}

// doFetch は実際の一度のHTTP GETリクエストを実行し、デコード済みのボディとリダイレクト後の最終URLを返します。
func (c *Client) doFetch(ctx context.Context, rawURL string) (string, string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("GETリクエスト作成に失敗しました: %w", err)
	}
	c.rotator.Next().Apply(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("HTTPリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", "", &HTTPStatusError{StatusCode: resp.StatusCode, Body: snippet}
	}

	body, err := ReadBody(resp, c.maxBodySize)
	if err != nil {
		return "", "", err
	}
	return body, finalURL(resp, rawURL), nil
}

// finalURL はリダイレクトを辿った後のリクエストURLを返します。不明な場合は rawURL です。
func finalURL(resp *http.Response, rawURL string) string {
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return rawURL
}

// ReadBody はレスポンスボディを上限付きで読み込み、Content-Type の文字コードから UTF-8 に変換します。
func ReadBody(resp *http.Response, limit int64) (string, error) {
	if limit <= 0 {
		limit = MaxBodySize
	}
	limited := io.LimitReader(resp.Body, limit)
	reader, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = limited
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み込みに失敗しました: %w", err)
	}
	return string(data), nil
}

// Probe は HEAD リクエストでURLの到達可能性を確認します。
// 2xx、3xx、403、405 は到達可能として扱います。
func (c *Client) Probe(ctx context.Context, rawURL string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	c.rotator.Next().Apply(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		zap.L().Debug("到達確認に失敗しました", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	resp.Body.Close()

	return reachable(resp.StatusCode)
}

func reachable(code int) bool {
	switch {
	case code >= 200 && code < 400:
		return true
	case code == http.StatusForbidden, code == http.StatusMethodNotAllowed:
		return true
	default:
		return false
	}
}

// shouldRetry はエラーがリトライ対象かどうかを判定する関数を返します。
// 呼び出し元のコンテキストが終了している場合はリトライしません。
func (c *Client) shouldRetry(parent context.Context) retry.ShouldRetryFunc {
	return func(err error) bool {
		if err == nil || parent.Err() != nil {
			return false
		}
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) {
			return statusErr.Retryable()
		}
		return isTimeout(err)
	}
}

func rateLimitScale(err error) float64 {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		return rateLimitBackoffFactor
	}
	return 1
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Failure はエラーを型付きの失敗結果に変換します。
func Failure(rawURL, method string, err error) types.FetchResult {
	res := types.FetchResult{URL: rawURL, Method: method}
	if err != nil {
		res.Err = err.Error()
	}

	var statusErr *HTTPStatusError
	switch {
	case errors.As(err, &statusErr):
		res.Status = types.FetchHTTPError
		res.StatusCode = statusErr.StatusCode
	case isTimeout(err):
		res.Status = types.FetchTimeout
	default:
		res.Status = types.FetchNetworkError
	}
	return res
}
