package extract

import (
	"context"

	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

// ----------------------------------------------------------------------
// 依存性の定義 (DIP)
// ----------------------------------------------------------------------

// PageFetcher は、リンク先のサブページを取得する機能のインターフェースです。
// fetcher.Strategy はこのインターフェースを満たします。
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) types.FetchResult
}

// EmailVerifier はメールアドレスのドメインが実在するかを検証します。
type EmailVerifier interface {
	VerifyDomain(ctx context.Context, domain string) bool
}
