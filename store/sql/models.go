package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type queueMessageRecord struct {
	bun.BaseModel `bun:"table:messenger_queue_messages,alias:mqm"`

	ID             string     `bun:"id,pk"`
	Exchange       string     `bun:"exchange,notnull"`
	Queue          string     `bun:"queue,notnull"`
	RoutingKey     string     `bun:"routing_key,notnull"`
	JobID          string     `bun:"job_id,notnull"`
	ScriptPath     string     `bun:"script_path,notnull"`
	IdempotencyKey string     `bun:"idempotency_key,notnull"`
	Parameters     string     `bun:"parameters,notnull"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	AvailableAt    time.Time  `bun:"available_at,notnull"`
	LeaseToken     *string    `bun:"lease_token"`
	LeaseUntil     *time.Time `bun:"lease_until,nullzero"`
	LastError      string     `bun:"last_error,notnull"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type sessionRecord struct {
	bun.BaseModel `bun:"table:messenger_sessions,alias:ms"`

	ID         string     `bun:"id,pk"`
	Namespace  string     `bun:"namespace,notnull"`
	SessionKey string     `bun:"session_key,notnull"`
	Value      string     `bun:"value,notnull"`
	ExpiresAt  *time.Time `bun:"expires_at,nullzero"`
	CreatedAt  time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
