package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRedisBackendKeyLayout(t *testing.T) {
	backend := &RedisBackend{prefix: "session"}
	if got := backend.redisKey("42.1", "step"); got != "session:42.1:step" {
		t.Fatalf("expected session:42.1:step, got %q", got)
	}
}

func TestRedisBackendKeysDoNotCollide(t *testing.T) {
	backend := &RedisBackend{prefix: "session"}
	store := NewStore(backend)

	first := backend.redisKey(store.Session("42", "1:step").Namespace(), "x")
	second := backend.redisKey(store.Session("42", "1").Namespace(), "step:x")
	if first == second {
		t.Fatalf("expected distinct keys, both were %q", first)
	}
	if got := backend.redisKey("a%3Ab", "k"); got == backend.redisKey("a:b", "k") {
		t.Fatalf("expected escaped percent to stay distinct, got %q", got)
	}
}

func TestNewRedisBackendRequiresClient(t *testing.T) {
	if _, err := NewRedisBackend(nil, "", 0); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestRedisBackendRoundTrip(t *testing.T) {
	url := os.Getenv("MESSENGER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("MESSENGER_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := DialRedis(ctx, url)
	if err != nil {
		t.Fatalf("dial redis: %v", err)
	}
	defer client.Close()

	backend, err := NewRedisBackend(client, "test-"+uuid.NewString(), time.Minute)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	s := NewStore(backend).Session("42", "1")

	got, err := GetOr(ctx, s, "step", "start")
	if err != nil {
		t.Fatalf("get default: %v", err)
	}
	if got != "start" {
		t.Fatalf("expected default start, got %q", got)
	}

	if err := s.Set(ctx, "step", "menu"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err = GetOr(ctx, s, "step", "start")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "menu" {
		t.Fatalf("expected menu, got %q", got)
	}

	if err := s.Delete(ctx, "step"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, err := s.Lookup(ctx, "step"); err != nil || found {
		t.Fatalf("expected deleted key, found=%v err=%v", found, err)
	}
}
