package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultSerpAPIEndpoint は SerpAPI の検索エンドポイントです。
const DefaultSerpAPIEndpoint = "https://serpapi.com/search.json"

// ErrMissingCredential は検索APIのキーが設定されていないことを示します。
var ErrMissingCredential = errors.New("検索APIのキーが設定されていません")

// SearchHit は検索結果1件を正規化したものです。
type SearchHit struct {
	Link    string `json:"link"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// SearchProvider は検索クエリに対して順位付きの結果を返す外部サービスです。
type SearchProvider interface {
	Search(ctx context.Context, query string) ([]SearchHit, error)
}

// BytesFetcher は URL からレスポンスボディを取得する機能です。*httpkit.Client はこのインターフェースを満たします。
type BytesFetcher interface {
	FetchBytes(url string, ctx context.Context) ([]byte, error)
}

// serpAPIResponse は SerpAPI のレスポンスのうち使用する部分です。
type serpAPIResponse struct {
	Error          string      `json:"error"`
	OrganicResults []SearchHit `json:"organic_results"`
}

// SerpAPI は SerpAPI (Google エンジン) を使う SearchProvider です。
type SerpAPI struct {
	client   BytesFetcher
	apiKey   string
	endpoint string
}

// NewSerpAPI は SerpAPI プロバイダーを生成します。endpoint が空の場合は DefaultSerpAPIEndpoint を使用します。
func NewSerpAPI(client BytesFetcher, apiKey, endpoint string) *SerpAPI {
	if endpoint == "" {
		endpoint = DefaultSerpAPIEndpoint
	}
	return &SerpAPI{client: client, apiKey: apiKey, endpoint: endpoint}
}

// Search はオランダ向けの Google 検索を実行し、自然検索の結果を順位順で返します。
func (s *SerpAPI) Search(ctx context.Context, query string) ([]SearchHit, error) {
	if strings.TrimSpace(s.apiKey) == "" {
		return nil, ErrMissingCredential
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("gl", "nl")
	params.Set("hl", "nl")
	params.Set("api_key", s.apiKey)

	body, err := s.client.FetchBytes(s.endpoint+"?"+params.Encode(), ctx)
	if err != nil {
		return nil, fmt.Errorf("SerpAPI へのリクエストに失敗しました: %w", redact(err, s.apiKey))
	}

	var resp serpAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("SerpAPI レスポンスのJSON解析に失敗しました: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("SerpAPI がエラーを返しました: %s", resp.Error)
	}
	return resp.OrganicResults, nil
}

const redactedValue = "REDACTED"

// redactedError は秘密の値を伏せたメッセージを持つエラーです。
// 元のエラーは errors.Is の判定にのみ使用し、Unwrap では公開しません。
type redactedError struct {
	msg   string
	cause error
}

func (e *redactedError) Error() string {
	return e.msg
}

func (e *redactedError) Is(target error) bool {
	return errors.Is(e.cause, target)
}

// redact は err のメッセージから secret (URLエンコード済みの形を含む) を伏せます。
// net/http のエラーはリクエストURLをそのまま含むため、クエリ文字列のAPIキーが漏れないようにします。
func redact(err error, secret string) error {
	if err == nil || secret == "" {
		return err
	}
	msg := err.Error()
	for _, v := range []string{url.QueryEscape(secret), url.PathEscape(secret), secret} {
		msg = strings.ReplaceAll(msg, v, redactedValue)
	}
	return &redactedError{msg: msg, cause: err}
}

func firstLink(hits []SearchHit) string {
	for _, h := range hits {
		if link := strings.TrimSpace(h.Link); link != "" {
			return link
		}
	}
	return ""
}
