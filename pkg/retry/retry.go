package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxRetries は初回試行を除いたリトライ回数です (合計3回の試行)。
	DefaultMaxRetries = 2

	InitialBackoffInterval = 500 * time.Millisecond
	MaxBackoffInterval     = 8 * time.Second
)

// Operation はリトライ可能な処理を表す関数です。成功時は nil を返します。
type Operation func() error

// ShouldRetryFunc はエラーを受け取り、そのエラーがリトライ可能かどうかを判定する関数です。
type ShouldRetryFunc func(error) bool

// ScaleFunc は直前のエラーに応じて次の待機時間に掛ける倍率を返します。
// 例えばレート制限 (429) の場合に通常より長く待つために使用します。
type ScaleFunc func(error) float64

// Config はリトライ動作を設定するための構造体です。
type Config struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Scale           ScaleFunc
}

// DefaultConfig は推奨されるデフォルト設定を返します。
func DefaultConfig() Config {
	return Config{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: InitialBackoffInterval,
		MaxInterval:     MaxBackoffInterval,
	}
}

// scaledBackOff は直前のエラーに応じて待機時間を伸縮させる BackOff です。
type scaledBackOff struct {
	backoff.BackOff
	scale   ScaleFunc
	lastErr *error
}

func (s *scaledBackOff) NextBackOff() time.Duration {
	next := s.BackOff.NextBackOff()
	if next == backoff.Stop || s.scale == nil || *s.lastErr == nil {
		return next
	}
	factor := s.scale(*s.lastErr)
	if factor <= 0 {
		return next
	}
	return time.Duration(float64(next) * factor)
}

// newBackOffPolicy は設定からバックオフポリシーを組み立てます。
func newBackOffPolicy(ctx context.Context, cfg Config, lastErr *error) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = 0

	var bo backoff.BackOff = b
	if cfg.Scale != nil {
		bo = &scaledBackOff{BackOff: b, scale: cfg.Scale, lastErr: lastErr}
	}
	bo = backoff.WithMaxRetries(bo, cfg.MaxRetries)
	return backoff.WithContext(bo, ctx)
}

// Do は指数バックオフとカスタムエラー判定を使用して操作をリトライします。
// shouldRetryFn が false を返したエラーは即座に返され、リトライされません。
func Do(ctx context.Context, cfg Config, operationName string, op Operation, shouldRetryFn ShouldRetryFunc) error {
	var (
		lastErr   error
		permanent bool
	)

	bo := newBackOffPolicy(ctx, cfg, &lastErr)

	retryableOp := func() error {
		err := op()
		if err == nil {
			lastErr = nil
			return nil
		}
		lastErr = err

		if shouldRetryFn != nil && shouldRetryFn(err) {
			return err
		}

		permanent = true
		return backoff.Permanent(err)
	}

	err := backoff.Retry(retryableOp, bo)
	if err == nil {
		return nil
	}

	if permanent {
		return fmt.Errorf("%sに失敗しました (リトライ対象外): %w", operationName, lastErr)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if lastErr != nil && !errors.Is(lastErr, err) {
			return fmt.Errorf("%sに失敗しました: コンテキストタイムアウト/キャンセル: %w (最終エラー: %v)", operationName, err, lastErr)
		}
		return fmt.Errorf("%sに失敗しました: コンテキストタイムアウト/キャンセル: %w", operationName, err)
	}

	return fmt.Errorf("%sに失敗しました: 最大リトライ回数 (%d回) に到達。最終エラー: %w", operationName, cfg.MaxRetries, lastErr)
}
