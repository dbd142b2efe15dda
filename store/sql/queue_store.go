package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	job "github.com/goliatone/go-job"
	jobqueue "github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-messenger/core"
	"github.com/goliatone/go-messenger/queue"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	queueStatusReady  = "ready"
	queueStatusLeased = "leased"
	queueStatusDead   = "dead"

	defaultLeaseTimeout = 30 * time.Second
	defaultPollInterval = 250 * time.Millisecond
)

// QueueStore is the durable queue.Broker. Messages are rows in
// messenger_queue_messages; a claim leases one row, and an expired lease
// makes the row claimable again.
type QueueStore struct {
	db   *bun.DB
	repo repository.Repository[*queueMessageRecord]

	LeaseTimeout time.Duration
	PollInterval time.Duration
	Now          func() time.Time
}

func NewQueueStore(db *bun.DB) (*QueueStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*queueMessageRecord](db, queueMessageHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid queue repository wiring: %w", err)
		}
	}
	return &QueueStore{
		db:           db,
		repo:         repo,
		LeaseTimeout: defaultLeaseTimeout,
		PollInterval: defaultPollInterval,
		Now:          time.Now,
	}, nil
}

// Open declares the binding. Queues are implicit in the table, so this
// only validates the binding.
func (s *QueueStore) Open(_ context.Context, binding core.QueueBinding) (queue.Queue, error) {
	return s.Queue(binding)
}

func (s *QueueStore) Queue(binding core.QueueBinding) (*SQLQueue, error) {
	if s == nil || s.db == nil {
		return nil, core.BrokerUnavailable(nil, "sqlstore: queue store is not configured", nil)
	}
	if err := binding.Validate(); err != nil {
		return nil, core.ConfigurationError(err, "sqlstore: invalid queue binding", nil)
	}
	return &SQLQueue{store: s, binding: binding.Normalized()}, nil
}

func (s *QueueStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *QueueStore) leaseTimeout() time.Duration {
	if s.LeaseTimeout > 0 {
		return s.LeaseTimeout
	}
	return defaultLeaseTimeout
}

func (s *QueueStore) pollInterval() time.Duration {
	if s.PollInterval > 0 {
		return s.PollInterval
	}
	return defaultPollInterval
}

// SQLQueue is one binding on the queue table.
type SQLQueue struct {
	store   *QueueStore
	binding core.QueueBinding
}

// Enqueue inserts the message. A message whose idempotency key is already
// stored is accepted without a second row.
func (q *SQLQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return core.InvalidRequest("sqlstore: execution message is required", nil)
	}
	params, err := json.Marshal(msg.Parameters)
	if err != nil {
		return core.InvalidRequest("sqlstore: encode message parameters", map[string]any{"cause": err.Error()})
	}
	idempotencyKey := strings.TrimSpace(msg.IdempotencyKey)
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	now := q.store.now()
	record := &queueMessageRecord{
		ID:             uuid.NewString(),
		Exchange:       q.binding.Exchange,
		Queue:          q.binding.Queue,
		RoutingKey:     q.binding.RoutingKey,
		JobID:          msg.JobID,
		ScriptPath:     msg.ScriptPath,
		IdempotencyKey: idempotencyKey,
		Parameters:     string(params),
		Status:         queueStatusReady,
		AvailableAt:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := q.store.repo.Create(ctx, record); err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}

// Dequeue polls until a message can be claimed or ctx is done.
func (q *SQLQueue) Dequeue(ctx context.Context) (jobqueue.Delivery, error) {
	for {
		delivery, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if delivery != nil {
			return delivery, nil
		}
		if err := core.SleepContext(ctx, q.store.pollInterval()); err != nil {
			return nil, err
		}
	}
}

func (q *SQLQueue) claim(ctx context.Context) (*sqlDelivery, error) {
	now := q.store.now()
	token := uuid.NewString()
	leaseUntil := now.Add(q.store.leaseTimeout())

	var records []queueMessageRecord
	err := q.store.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM messenger_queue_messages
	WHERE exchange = ?
	  AND queue = ?
	  AND ((status = ? AND available_at <= ?) OR (status = ? AND lease_until <= ?))
	ORDER BY available_at ASC, created_at ASC
	LIMIT 1
)
UPDATE messenger_queue_messages
SET status = ?, attempts = attempts + 1, lease_token = ?, lease_until = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND ((status = ? AND available_at <= ?) OR (status = ? AND lease_until <= ?))
RETURNING
	id,
	exchange,
	queue,
	routing_key,
	job_id,
	script_path,
	idempotency_key,
	parameters,
	status,
	attempts,
	available_at,
	lease_token,
	lease_until,
	last_error,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			q.binding.Exchange,
			q.binding.Queue,
			queueStatusReady, now, queueStatusLeased, now,
			queueStatusLeased, token, leaseUntil, now,
			queueStatusReady, now, queueStatusLeased, now,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, core.BrokerUnavailable(err, "sqlstore: claim queue message", map[string]any{"queue": q.binding.Queue})
	}
	if len(records) == 0 {
		return nil, nil
	}
	record := records[0]
	msg, err := recordToExecutionMessage(record)
	if err != nil {
		// An undecodable row can never be delivered; settle it as dead so
		// the lease does not keep it claimable.
		dead := jobqueue.NackOptions{DeadLetter: true, Reason: err.Error()}
		if nackErr := q.nack(ctx, record.ID, token, dead); nackErr != nil {
			return nil, errors.Join(err, nackErr)
		}
		return nil, err
	}
	return &sqlDelivery{queue: q, id: record.ID, token: token, attempt: record.Attempts, message: msg}, nil
}

func (q *SQLQueue) ack(ctx context.Context, id, token string) error {
	res, err := q.store.db.NewDelete().
		Model((*queueMessageRecord)(nil)).
		Where("id = ?", id).
		Where("lease_token = ?", token).
		Where("status = ?", queueStatusLeased).
		Exec(ctx)
	if err != nil {
		return core.BrokerUnavailable(err, "sqlstore: ack queue message", map[string]any{"message_id": id})
	}
	return requireAffected(res, id)
}

func (q *SQLQueue) nack(ctx context.Context, id, token string, opts jobqueue.NackOptions) error {
	now := q.store.now()
	status := queueStatusReady
	if opts.DeadLetter {
		status = queueStatusDead
	}
	res, err := q.store.db.NewUpdate().
		Model((*queueMessageRecord)(nil)).
		Set("status = ?", status).
		Set("available_at = ?", now.Add(opts.Delay)).
		Set("lease_token = NULL").
		Set("lease_until = NULL").
		Set("last_error = ?", strings.TrimSpace(opts.Reason)).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("lease_token = ?", token).
		Where("status = ?", queueStatusLeased).
		Exec(ctx)
	if err != nil {
		return core.BrokerUnavailable(err, "sqlstore: nack queue message", map[string]any{"message_id": id})
	}
	return requireAffected(res, id)
}

// Stats counts rows per status for this binding.
func (q *SQLQueue) Stats(ctx context.Context) (queue.Stats, error) {
	var rows []struct {
		Status string `bun:"status"`
		Count  int    `bun:"count"`
	}
	err := q.store.db.NewSelect().
		Model((*queueMessageRecord)(nil)).
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS count").
		Where("exchange = ?", q.binding.Exchange).
		Where("queue = ?", q.binding.Queue).
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return queue.Stats{}, err
	}
	var stats queue.Stats
	for _, row := range rows {
		switch row.Status {
		case queueStatusReady:
			stats.Ready = row.Count
		case queueStatusLeased:
			stats.Leased = row.Count
		case queueStatusDead:
			stats.DeadLettered = row.Count
		}
	}
	return stats, nil
}

// DeadLetters lists dead-lettered messages, oldest first.
func (q *SQLQueue) DeadLetters(ctx context.Context, limit int) ([]queue.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []queueMessageRecord
	err := q.store.db.NewSelect().
		Model(&records).
		Where("?TableAlias.exchange = ?", q.binding.Exchange).
		Where("?TableAlias.queue = ?", q.binding.Queue).
		Where("?TableAlias.status = ?", queueStatusDead).
		OrderExpr("?TableAlias.updated_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]queue.DeadLetter, 0, len(records))
	for _, record := range records {
		msg, err := recordToExecutionMessage(record)
		if err != nil {
			msg = &job.ExecutionMessage{
				JobID:          record.JobID,
				ScriptPath:     record.ScriptPath,
				IdempotencyKey: record.IdempotencyKey,
			}
		}
		out = append(out, queue.DeadLetter{Message: msg, Attempts: record.Attempts, Reason: record.LastError})
	}
	return out, nil
}

// Requeue moves dead-lettered messages back to ready and resets attempts.
func (q *SQLQueue) Requeue(ctx context.Context) (int64, error) {
	now := q.store.now()
	res, err := q.store.db.NewUpdate().
		Model((*queueMessageRecord)(nil)).
		Set("status = ?", queueStatusReady).
		Set("attempts = 0").
		Set("available_at = ?", now).
		Set("updated_at = ?", now).
		Where("exchange = ?", q.binding.Exchange).
		Where("queue = ?", q.binding.Queue).
		Where("status = ?", queueStatusDead).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type sqlDelivery struct {
	queue   *SQLQueue
	id      string
	token   string
	attempt int
	message *job.ExecutionMessage
	settled atomic.Bool
}

func (d *sqlDelivery) Message() *job.ExecutionMessage {
	cloned := *d.message
	cloned.Parameters = copyAnyMap(d.message.Parameters)
	return &cloned
}

func (d *sqlDelivery) Attempt() int { return d.attempt }

func (d *sqlDelivery) Ack(ctx context.Context) error {
	if !d.settled.CompareAndSwap(false, true) {
		return fmt.Errorf("sqlstore: delivery already settled")
	}
	return d.queue.ack(ctx, d.id, d.token)
}

func (d *sqlDelivery) Nack(ctx context.Context, opts jobqueue.NackOptions) error {
	if !d.settled.CompareAndSwap(false, true) {
		return fmt.Errorf("sqlstore: delivery already settled")
	}
	return d.queue.nack(ctx, d.id, d.token, opts)
}

func recordToExecutionMessage(record queueMessageRecord) (*job.ExecutionMessage, error) {
	params := map[string]any{}
	if strings.TrimSpace(record.Parameters) != "" {
		if err := json.Unmarshal([]byte(record.Parameters), &params); err != nil {
			return nil, core.MalformedPayload("sqlstore: decode message parameters", err, map[string]any{
				"message_id": record.ID,
			})
		}
	}
	return &job.ExecutionMessage{
		JobID:          record.JobID,
		ScriptPath:     record.ScriptPath,
		Parameters:     params,
		IdempotencyKey: record.IdempotencyKey,
	}, nil
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func requireAffected(res rowsAffected, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: lease for message %q expired or already settled", id)
	}
	return nil
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
