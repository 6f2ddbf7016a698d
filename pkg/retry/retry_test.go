package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, uint64(DefaultMaxRetries), cfg.MaxRetries)
	require.Equal(t, InitialBackoffInterval, cfg.InitialInterval)
	require.Equal(t, MaxBackoffInterval, cfg.MaxInterval)
	require.Nil(t, cfg.Scale)
}

func TestNewBackOffPolicy(t *testing.T) {
	var lastErr error
	cfg := Config{MaxRetries: 5, InitialInterval: 10 * time.Millisecond, MaxInterval: 500 * time.Millisecond}

	bo := newBackOffPolicy(context.Background(), cfg, &lastErr)
	require.NotNil(t, bo)
}

func TestScaledBackOff(t *testing.T) {
	lastErr := errors.New("rate limited")
	cfg := Config{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Scale:           func(error) float64 { return 3 },
	}

	bo := newBackOffPolicy(context.Background(), cfg, &lastErr)
	next := bo.NextBackOff()

	// RandomizationFactor 0.5 のため、100ms*0.5*3 以上であることのみ検証
	assert.GreaterOrEqual(t, next, 150*time.Millisecond)
}

func TestDo(t *testing.T) {
	testCfg := Config{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
	errRetryable := errors.New("retryable error")
	errFatal := errors.New("fatal error")

	tests := []struct {
		name         string
		ctx          func() context.Context
		operation    func(calls *int) Operation
		shouldRetry  ShouldRetryFunc
		wantErr      error
		wantContains string
		wantCalls    int
	}{
		{
			name: "successful operation",
			ctx:  context.Background,
			operation: func(calls *int) Operation {
				return func() error { *calls++; return nil }
			},
			shouldRetry: func(error) bool { return false },
			wantCalls:   1,
		},
		{
			name: "retryable error then success",
			ctx:  context.Background,
			operation: func(calls *int) Operation {
				return func() error {
					*calls++
					if *calls < 3 {
						return errRetryable
					}
					return nil
				}
			},
			shouldRetry: func(err error) bool { return errors.Is(err, errRetryable) },
			wantCalls:   3,
		},
		{
			name: "non retryable error stops immediately",
			ctx:  context.Background,
			operation: func(calls *int) Operation {
				return func() error { *calls++; return errFatal }
			},
			shouldRetry:  func(error) bool { return false },
			wantErr:      errFatal,
			wantContains: "リトライ対象外",
			wantCalls:    1,
		},
		{
			name: "max retries exceeded",
			ctx:  context.Background,
			operation: func(calls *int) Operation {
				return func() error { *calls++; return errRetryable }
			},
			shouldRetry:  func(error) bool { return true },
			wantErr:      errRetryable,
			wantContains: "最大リトライ回数 (2回) に到達",
			wantCalls:    3,
		},
		{
			name: "context canceled",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			operation: func(calls *int) Operation {
				return func() error { *calls++; return errRetryable }
			},
			shouldRetry:  func(error) bool { return true },
			wantErr:      context.Canceled,
			wantContains: "コンテキストタイムアウト/キャンセル",
			wantCalls:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(tt.ctx(), testCfg, "test_operation", tt.operation(&calls), tt.shouldRetry)

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.wantContains)
		})
	}
}
