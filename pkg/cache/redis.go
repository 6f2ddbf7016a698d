package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "kdv:"

// Redis は go-redis を使った共有キャッシュです。複数の実行間で結果を再利用できます。
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis は指定アドレスに接続する Redis キャッシュを生成します。
func NewRedis(addr string, ttl time.Duration) *Redis {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &Redis{client: rdb, ttl: ttl}
}

// NewRedisFromClient は既存のクライアントから Redis キャッシュを生成します。
func NewRedisFromClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redisからの取得に失敗しました: %w", err)
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, redisKeyPrefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redisへの保存に失敗しました: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
