package types

import "time"

// Query は検索対象となる保育施設 (locatienaam, plaats) の組を表します。
type Query struct {
	FacilityName string `json:"locatienaam"`
	Locality     string `json:"plaats"`
}

// ResolutionMethod はウェブサイトの特定に使われた経路を示します。
type ResolutionMethod string

const (
	ResolutionPrimary  ResolutionMethod = "primary"
	ResolutionFallback ResolutionMethod = "fallback"
	ResolutionNone     ResolutionMethod = "none"
)

// ResolvedSite は Resolver の出力です。URL が空の場合はサイトが見つからなかったことを示します。
type ResolvedSite struct {
	Query  Query
	URL    string
	Method ResolutionMethod
}

// Found はサイトが特定できたかどうかを返します。
func (r ResolvedSite) Found() bool {
	return r.URL != ""
}

// FetchStatus はページ取得の結果種別です。
type FetchStatus string

const (
	FetchOK           FetchStatus = "ok"
	FetchHTTPError    FetchStatus = "http_error"
	FetchTimeout      FetchStatus = "timeout"
	FetchNetworkError FetchStatus = "network_error"
)

// FetchResult は1回のページ取得の正規化された結果です。
// Body は Status が FetchOK の場合のみ設定されます。
type FetchResult struct {
	URL        string
	Status     FetchStatus
	StatusCode int
	Body       string
	Method     string // 取得に使用した戦略名
	Err        string
}

// OK は取得が成功したかどうかを返します。
func (r FetchResult) OK() bool {
	return r.Status == FetchOK
}

// 抽出カテゴリ
const (
	CategoryEmail   = "email"
	CategoryPhone   = "phone"
	CategoryAddress = "address"
	CategoryManager = "manager"
)

// Match は抽出された1件の値とその出所 (パターン名、信頼度、ページ) を保持します。
type Match struct {
	Category   string  `json:"category"`
	Value      string  `json:"value"`
	Pattern    string  `json:"pattern"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
	PageURL    string  `json:"page_url,omitempty"`
}

// Contacts は1つ以上のページから抽出された連絡先の集合です。
// 各スライスは重複なし・ソート済みで保持されます。
type Contacts struct {
	Emails    []string `json:"emails"`
	Phones    []string `json:"phones"`
	Addresses []string `json:"addresses"`
	Managers  []string `json:"managers"`
	Matches   []Match  `json:"matches,omitempty"`
}

// Empty は有用な連絡先が1件も含まれていない場合に true を返します。
func (c Contacts) Empty() bool {
	return len(c.Emails) == 0 && len(c.Phones) == 0 && len(c.Addresses) == 0 && len(c.Managers) == 0
}

// ExtractionRecord はクエリ1件に対する最終結果です。
// 入力クエリごとに必ず1件生成されます。
type ExtractionRecord struct {
	Query     Query               `json:"query"`
	URL       string              `json:"website"`
	Method    ResolutionMethod    `json:"resolution"`
	Emails    []string            `json:"emails"`
	Phones    []string            `json:"phones"`
	Addresses []string            `json:"addresses"`
	Managers  []string            `json:"managers"`
	Sources   map[string]Contacts `json:"sources,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Failed はレコードがエラーを保持しているかを返します。
func (r ExtractionRecord) Failed() bool {
	return r.Error != ""
}

// Summary はバッチ実行の集計です。
type Summary struct {
	RunID      string    `json:"run_id"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
