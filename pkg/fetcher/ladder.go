package fetcher

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

// Mode はフォールバックラダーの実行方式です。
type Mode string

const (
	// ModeFirst は優先順に試行し、有用な結果が得られた時点で停止します。
	ModeFirst Mode = "first"
	// ModeCombine は全ての戦略を試行し、結果を呼び出し元で統合します。
	ModeCombine Mode = "combine"
)

// ParseMode は文字列を Mode に変換します。
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFirst, "":
		return ModeFirst, nil
	case ModeCombine:
		return ModeCombine, nil
	default:
		return "", fmt.Errorf("不明なフェッチモードです: %q (first または combine)", s)
	}
}

// AcceptFunc は成功した取得結果が有用かどうかを判定します。
// false を返すと ModeFirst では次の戦略にエスカレートします。
type AcceptFunc func(types.FetchResult) bool

// Ladder は固定の優先順で並んだ取得戦略の列です。
type Ladder struct {
	strategies []Strategy
	mode       Mode
}

// NewLadder は Ladder を生成します。
func NewLadder(mode Mode, strategies ...Strategy) *Ladder {
	if mode == "" {
		mode = ModeFirst
	}
	return &Ladder{strategies: strategies, mode: mode}
}

func (l *Ladder) Mode() Mode {
	return l.mode
}

// Strategies は戦略名を優先順で返します。
func (l *Ladder) Strategies() []string {
	names := make([]string, 0, len(l.strategies))
	for _, s := range l.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Run は戦略を順に実行し、全ての試行結果を実行順で返します。
// 成功した結果には accept が呼ばれます。ModeFirst では accept が true を返した時点で停止し、
// ModeCombine では全戦略を実行します。
func (l *Ladder) Run(ctx context.Context, rawURL string, accept AcceptFunc) []types.FetchResult {
	attempts := make([]types.FetchResult, 0, len(l.strategies))

	for _, s := range l.strategies {
		if ctx.Err() != nil {
			attempts = append(attempts, Failure(rawURL, s.Name(), ctx.Err()))
			break
		}

		res := s.Fetch(ctx, rawURL)
		attempts = append(attempts, res)

		if !res.OK() {
			zap.L().Info("取得戦略が失敗しました。次の戦略を試行します",
				zap.String("strategy", s.Name()),
				zap.String("url", rawURL),
				zap.String("status", string(res.Status)),
				zap.Int("status_code", res.StatusCode))
			continue
		}

		useful := accept == nil || accept(res)
		if useful && l.mode == ModeFirst {
			break
		}
		if !useful {
			zap.L().Info("取得結果から有用な情報が見つかりませんでした",
				zap.String("strategy", s.Name()), zap.String("url", rawURL))
		}
	}
	return attempts
}

// DescribeFailures は失敗した試行を "戦略: ステータス" 形式で連結します。
func DescribeFailures(attempts []types.FetchResult) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		if a.OK() {
			continue
		}
		status := string(a.Status)
		if a.StatusCode != 0 {
			status = fmt.Sprintf("%s(%d)", status, a.StatusCode)
		}
		parts = append(parts, a.Method+": "+status)
	}
	return strings.Join(parts, "; ")
}

// LooksEmpty はボディにメールアドレスや電話番号の手掛かり ('@' や数字) が無い場合に true を返します。
// JavaScript で描画されるサイトの判定に使用します。
func LooksEmpty(body string) bool {
	return !strings.ContainsAny(body, "@0123456789")
}
