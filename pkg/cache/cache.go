package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrMiss はキャッシュにエントリが存在しないことを示します。
var ErrMiss = errors.New("cache: miss")

// Cache はバイト列を保存するコンテンツアドレス型キャッシュです。
// キーは Key で生成したハッシュを使用します。
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Key は関数名と引数から決定的なキャッシュキーを生成します。
// 引数は前後の空白を除去し小文字化してから結合されます。
func Key(fn string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, fn)
	for _, a := range args {
		parts = append(parts, strings.ToLower(strings.TrimSpace(a)))
	}
	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "\x00")))
	return fn + ":" + hex.EncodeToString(h.Sum(nil))
}

// GetJSON はキャッシュから値を取得し、v にデコードします。
func GetJSON(ctx context.Context, c Cache, key string, v any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("キャッシュ値のデコードに失敗しました: %w", err)
	}
	return nil
}

// SetJSON は v をJSONとしてキャッシュに保存します。
func SetJSON(ctx context.Context, c Cache, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("キャッシュ値のエンコードに失敗しました: %w", err)
	}
	return c.Set(ctx, key, data)
}

// Memory はプロセス内のスレッドセーフなキャッシュです。1回の実行中は無効化されません。
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory は Memory キャッシュを生成します。ttl が0の場合、エントリは失効しません。
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, ErrMiss
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Len は保持しているエントリ数を返します。
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
