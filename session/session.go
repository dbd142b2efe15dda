// Package session provides per-conversation key/value state for bot handlers.
// Every conversation, identified by the (recipient, sender) pair of an event,
// gets its own namespace in a pluggable backend. Values are stored as JSON.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-messenger/core"
)

// Backend is the storage contract. Get reports found=false for keys that were
// never set or were deleted; a stored JSON null is found.
type Backend interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
}

var keySegmentEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// KeySegment escapes '%' and ':' so segments joined with ':' stay
// unambiguous.
func KeySegment(segment string) string {
	return keySegmentEscaper.Replace(segment)
}

type Store struct {
	backend Backend
}

func NewStore(backend Backend) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	return &Store{backend: backend}
}

func (s *Store) Backend() Backend {
	if s == nil {
		return nil
	}
	return s.backend
}

// Session returns the session scoped to one channel and conversation.
func (s *Store) Session(recipient, sender string) *Session {
	key := core.ConversationKey{
		Recipient: strings.TrimSpace(recipient),
		Sender:    strings.TrimSpace(sender),
	}
	return &Session{backend: s.Backend(), key: key}
}

// ForEvent returns the session of the event's conversation.
func (s *Store) ForEvent(event core.Event) *Session {
	key := event.ConversationKey()
	return s.Session(key.Recipient, key.Sender)
}

type Session struct {
	backend Backend
	key     core.ConversationKey
}

func (s *Session) Namespace() string {
	return s.key.Namespace()
}

func (s *Session) Key() core.ConversationKey {
	return s.key
}

// Lookup returns the raw stored value and whether it exists. It never
// creates an entry.
func (s *Session) Lookup(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if err := s.ready(key); err != nil {
		return nil, false, err
	}
	raw, found, err := s.backend.Get(ctx, s.Namespace(), key)
	if err != nil {
		return nil, false, fmt.Errorf("session: get %q: %w", key, err)
	}
	if !found {
		return nil, false, nil
	}
	return json.RawMessage(raw), true, nil
}

func (s *Session) Set(ctx context.Context, key string, value any) error {
	if err := s.ready(key); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("session: encode %q: %w", key, err)
	}
	if err := s.backend.Set(ctx, s.Namespace(), key, raw); err != nil {
		return fmt.Errorf("session: set %q: %w", key, err)
	}
	return nil
}

func (s *Session) Delete(ctx context.Context, key string) error {
	if err := s.ready(key); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, s.Namespace(), key); err != nil {
		return fmt.Errorf("session: delete %q: %w", key, err)
	}
	return nil
}

func (s *Session) ready(key string) error {
	if s == nil || s.backend == nil {
		return fmt.Errorf("session: backend is not configured")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("session: key is required")
	}
	return nil
}

// Get decodes the value stored under key. found is false when the key was
// never set; a stored null decodes to the zero value with found=true.
func Get[T any](ctx context.Context, s *Session, key string) (T, bool, error) {
	var out T
	raw, found, err := s.Lookup(ctx, key)
	if err != nil || !found {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, true, fmt.Errorf("session: decode %q: %w", key, err)
	}
	return out, true, nil
}

// GetOr returns def when key is absent, without writing it.
func GetOr[T any](ctx context.Context, s *Session, key string, def T) (T, error) {
	value, found, err := Get[T](ctx, s, key)
	if err != nil {
		return def, err
	}
	if !found {
		return def, nil
	}
	return value, nil
}
