package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SessionStore is a session.Backend over messenger_sessions. One row holds
// one JSON value per (namespace, key).
type SessionStore struct {
	db   *bun.DB
	repo repository.Repository[*sessionRecord]

	// TTL bounds how long a value stays readable after its last write.
	// Zero keeps values forever.
	TTL time.Duration
	Now func() time.Time
}

func NewSessionStore(db *bun.DB) (*SessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*sessionRecord](db, sessionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid session repository wiring: %w", err)
		}
	}
	return &SessionStore{db: db, repo: repo, Now: time.Now}, nil
}

func (s *SessionStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if err := s.ready(namespace, key); err != nil {
		return nil, false, err
	}
	record := &sessionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.namespace = ?", namespace).
		Where("?TableAlias.session_key = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if record.ExpiresAt != nil && !record.ExpiresAt.After(s.now()) {
		return nil, false, nil
	}
	return []byte(record.Value), true, nil
}

// Set writes the value, replacing any previous value for the key.
func (s *SessionStore) Set(ctx context.Context, namespace, key string, value []byte) error {
	if err := s.ready(namespace, key); err != nil {
		return err
	}
	now := s.now()
	record := &sessionRecord{
		ID:         uuid.NewString(),
		Namespace:  namespace,
		SessionKey: key,
		Value:      string(value),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if s.TTL > 0 {
		expiresAt := now.Add(s.TTL)
		record.ExpiresAt = &expiresAt
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (namespace, session_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *SessionStore) Delete(ctx context.Context, namespace, key string) error {
	if err := s.ready(namespace, key); err != nil {
		return err
	}
	_, err := s.db.NewDelete().
		Model((*sessionRecord)(nil)).
		Where("namespace = ?", namespace).
		Where("session_key = ?", key).
		Exec(ctx)
	return err
}

// Count returns how many live values a namespace holds.
func (s *SessionStore) Count(ctx context.Context, namespace string) (int, error) {
	if s == nil || s.repo == nil {
		return 0, fmt.Errorf("sqlstore: session store is not configured")
	}
	_, total, err := s.repo.List(ctx,
		repository.SelectBy("namespace", "=", strings.TrimSpace(namespace)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where("?TableAlias.expires_at IS NULL").
					WhereOr("?TableAlias.expires_at > ?", s.now())
			})
		}),
	)
	return total, err
}

// PurgeExpired removes values whose TTL has elapsed.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*sessionRecord)(nil)).
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", s.now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SessionStore) ready(namespace, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: session store is not configured")
	}
	if strings.TrimSpace(namespace) == "" || strings.TrimSpace(key) == "" {
		return fmt.Errorf("sqlstore: session namespace and key are required")
	}
	return nil
}

func (s *SessionStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
