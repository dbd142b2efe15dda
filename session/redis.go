package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "session"

// RedisBackend stores each value under <prefix>:<namespace>:<key>, with the
// namespace and key escaped by KeySegment.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisBackend(client redis.UniversalClient, prefix string, ttl time.Duration) (*RedisBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("session: redis client is required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisBackend{client: client, prefix: prefix, ttl: ttl}, nil
}

// DialRedis parses a redis:// URL and verifies the connection.
func DialRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("session: invalid redis url: %w", err)
	}
	options.DialTimeout = 5 * time.Second
	options.ReadTimeout = 3 * time.Second
	options.WriteTimeout = 3 * time.Second
	options.MaxRetries = 3

	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: redis ping: %w", err)
	}
	return client, nil
}

func (b *RedisBackend) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	value, err := b.client.Get(ctx, b.redisKey(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, namespace, key string, value []byte) error {
	return b.client.Set(ctx, b.redisKey(namespace, key), value, b.ttl).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, namespace, key string) error {
	return b.client.Del(ctx, b.redisKey(namespace, key)).Err()
}

func (b *RedisBackend) redisKey(namespace, key string) string {
	return b.prefix + ":" + KeySegment(namespace) + ":" + KeySegment(key)
}

var _ Backend = (*RedisBackend)(nil)
