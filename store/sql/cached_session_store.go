package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-messenger/session"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const sessionCacheKeyPrefix = "go-messenger::session::v1"

// CachedSessionStore puts a read-through cache in front of a session
// backend. Writes and deletes go to the base backend first and then drop
// the cached entry.
type CachedSessionStore struct {
	base  session.Backend
	cache repositorycache.CacheService
}

type cachedSessionValue struct {
	Value []byte
	Found bool
}

func NewCachedSessionStore(base session.Backend, cacheService repositorycache.CacheService) (*CachedSessionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base session backend is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: session cache service is required")
	}
	return &CachedSessionStore{base: base, cache: cacheService}, nil
}

// SessionCacheKey returns go-messenger::session::v1::<namespace>::<key> with
// each segment escaped by session.KeySegment. Segments are used as stored;
// the base backend does not trim them either.
func SessionCacheKey(namespace, key string) (string, error) {
	if namespace == "" || key == "" {
		return "", fmt.Errorf("sqlstore: session namespace and key are required")
	}
	return strings.Join([]string{
		sessionCacheKeyPrefix,
		session.KeySegment(namespace),
		session.KeySegment(key),
	}, "::"), nil
}

func (s *CachedSessionStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, false, fmt.Errorf("sqlstore: cached session store is not configured")
	}
	cacheKey, err := SessionCacheKey(namespace, key)
	if err != nil {
		return nil, false, err
	}
	cached, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (cachedSessionValue, error) {
		value, found, fetchErr := s.base.Get(ctx, namespace, key)
		if fetchErr != nil {
			return cachedSessionValue{}, fetchErr
		}
		return cachedSessionValue{Value: cloneBytes(value), Found: found}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return cloneBytes(cached.Value), cached.Found, nil
}

func (s *CachedSessionStore) Set(ctx context.Context, namespace, key string, value []byte) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached session store is not configured")
	}
	if err := s.base.Set(ctx, namespace, key, value); err != nil {
		return err
	}
	return s.invalidate(ctx, namespace, key)
}

func (s *CachedSessionStore) Delete(ctx context.Context, namespace, key string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached session store is not configured")
	}
	if err := s.base.Delete(ctx, namespace, key); err != nil {
		return err
	}
	return s.invalidate(ctx, namespace, key)
}

func (s *CachedSessionStore) invalidate(ctx context.Context, namespace, key string) error {
	cacheKey, err := SessionCacheKey(namespace, key)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
