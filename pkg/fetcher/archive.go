package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

// DefaultWaybackEndpoint は Wayback Machine の可用性APIです。
const DefaultWaybackEndpoint = "https://archive.org/wayback/available"

// ErrNotArchived はURLのスナップショットがアーカイブに存在しないことを示します。
var ErrNotArchived = errors.New("アーカイブされていません")

// waybackSnapshotRe はスナップショットURLのタイムスタンプ部分に一致します。
var waybackSnapshotRe = regexp.MustCompile(`/web/(\d{14})/`)

type waybackResponse struct {
	ArchivedSnapshots struct {
		Closest *struct {
			Available bool   `json:"available"`
			URL       string `json:"url"`
			Timestamp string `json:"timestamp"`
			Status    string `json:"status"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

// Archive は第三者のアーカイブサービスに保存されたページのコピーを取得する戦略です。
// ライブサイトにはアクセスしません。
type Archive struct {
	endpoint string
	client   *Client
}

// NewArchive は Archive 戦略を生成します。endpoint が空の場合は Wayback Machine を使用します。
func NewArchive(endpoint string, client *Client) *Archive {
	if endpoint == "" {
		endpoint = DefaultWaybackEndpoint
	}
	return &Archive{endpoint: endpoint, client: client}
}

func (s *Archive) Name() string {
	return StrategyArchive
}

func (s *Archive) Fetch(ctx context.Context, rawURL string) types.FetchResult {
	snapshot, err := s.lookup(ctx, rawURL)
	if errors.Is(err, ErrNotArchived) {
		res := Failure(rawURL, s.Name(), err)
		res.Status = types.FetchHTTPError
		res.StatusCode = http.StatusNotFound
		return res
	}
	if err != nil {
		return Failure(rawURL, s.Name(), err)
	}

	res := s.client.Fetch(ctx, snapshot)
	res.URL = rawURL
	res.Method = s.Name()
	return res
}

// lookup はURLの最新スナップショットのURLを返します。アーカイブされていない場合はエラーです。
func (s *Archive) lookup(ctx context.Context, rawURL string) (string, error) {
	q := url.Values{}
	q.Set("url", rawURL)

	data, err := s.client.FetchBytes(ctx, s.endpoint+"?"+q.Encode())
	if err != nil {
		return "", fmt.Errorf("アーカイブの照会に失敗しました: %w", err)
	}

	var resp waybackResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("アーカイブ応答の解析に失敗しました: %w", err)
	}

	closest := resp.ArchivedSnapshots.Closest
	if closest == nil || !closest.Available || closest.URL == "" {
		return "", fmt.Errorf("%w: %s", ErrNotArchived, rawURL)
	}

	// id_ 修飾子でツールバーを含まない元のHTMLを要求する
	return waybackSnapshotRe.ReplaceAllString(closest.URL, "/web/${1}id_/"), nil
}
