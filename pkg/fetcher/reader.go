package fetcher

import (
	"context"
	"strings"

	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

// DefaultReaderEndpoint はページをテキストに変換して返すリーダープロキシです。
const DefaultReaderEndpoint = "https://r.jina.ai/"

// Reader はリーダープロキシ経由でページ本文を取得する戦略です。
type Reader struct {
	endpoint string
	client   *Client
}

// NewReader は Reader 戦略を生成します。
func NewReader(endpoint string, client *Client) *Reader {
	if endpoint == "" {
		endpoint = DefaultReaderEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return &Reader{endpoint: endpoint, client: client}
}

func (s *Reader) Name() string {
	return StrategyReader
}

func (s *Reader) Fetch(ctx context.Context, rawURL string) types.FetchResult {
	res := s.client.Fetch(ctx, s.endpoint+rawURL)
	res.URL = rawURL
	res.Method = s.Name()
	return res
}
