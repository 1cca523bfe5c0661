package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps session keys in Redis with a TTL, for setups where several
// daemon instances watch the same browser and need to share counter state.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(addr, password string, db int, prefix string, ttl time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis store: connect %s: %w", addr, err)
	}
	return &RedisStore{client: rdb, prefix: prefix, ttl: ttl}, nil
}

func (r *RedisStore) key(k string) string { return r.prefix + ":" + k }

func (r *RedisStore) Get(ctx context.Context, key string) (json.RawMessage, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis store: get %s: %w", key, err)
	}
	return json.RawMessage(data), nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis store: marshal %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.key(key), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis store: set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis store: del %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis store: clear: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis store: scan: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }
