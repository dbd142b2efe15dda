package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	jobqueue "github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-messenger/core"
	"github.com/google/uuid"
)

const defaultMemoryPollInterval = 50 * time.Millisecond

// MemoryBroker is an in-process broker with lease based redelivery. It keeps
// the at-least-once contract within one process; use the SQL backend when
// messages must survive a restart.
type MemoryBroker struct {
	LeaseTimeout time.Duration
	PollInterval time.Duration
	Now          func() time.Time

	mu     sync.Mutex
	queues map[string]*MemoryQueue
}

func NewMemoryBroker(leaseTimeout time.Duration) *MemoryBroker {
	return &MemoryBroker{
		LeaseTimeout: leaseTimeout,
		PollInterval: defaultMemoryPollInterval,
		Now:          time.Now,
		queues:       map[string]*MemoryQueue{},
	}
}

// Open declares the binding's queue if absent.
func (b *MemoryBroker) Open(_ context.Context, binding core.QueueBinding) (Queue, error) {
	return b.Queue(binding)
}

func (b *MemoryBroker) Queue(binding core.QueueBinding) (*MemoryQueue, error) {
	if b == nil {
		return nil, core.BrokerUnavailable(nil, "queue: memory broker is nil", nil)
	}
	if err := binding.Validate(); err != nil {
		return nil, core.ConfigurationError(err, "queue: invalid binding", nil)
	}
	key := binding.Key()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queues == nil {
		b.queues = map[string]*MemoryQueue{}
	}
	if q, ok := b.queues[key]; ok {
		return q, nil
	}
	q := &MemoryQueue{
		broker:  b,
		binding: binding.Normalized(),
		leased:  map[string]*memoryItem{},
		notify:  make(chan struct{}, 1),
	}
	b.queues[key] = q
	return q, nil
}

func (b *MemoryBroker) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

type memoryItem struct {
	id          string
	message     *job.ExecutionMessage
	attempts    int
	availableAt time.Time
	leaseToken  string
	leaseUntil  time.Time
	lastError   string
}

// MemoryQueue implements the go-job enqueue/dequeue contracts for one binding.
type MemoryQueue struct {
	broker  *MemoryBroker
	binding core.QueueBinding

	mu     sync.Mutex
	ready  []*memoryItem
	leased map[string]*memoryItem
	dead   []*memoryItem
	notify chan struct{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return core.InvalidRequest("queue: execution message is required", nil)
	}
	item := &memoryItem{
		id:          uuid.NewString(),
		message:     cloneExecutionMessage(msg),
		availableAt: q.broker.now(),
	}
	q.mu.Lock()
	q.ready = append(q.ready, item)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Dequeue blocks until a message is available or ctx is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (jobqueue.Delivery, error) {
	for {
		if delivery := q.tryLease(); delivery != nil {
			return delivery, nil
		}
		timer := time.NewTimer(q.pollInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (q *MemoryQueue) tryLease() *memoryDelivery {
	now := q.broker.now()
	q.mu.Lock()
	defer q.mu.Unlock()

	for token, item := range q.leased {
		if !item.leaseUntil.IsZero() && !now.Before(item.leaseUntil) {
			delete(q.leased, token)
			item.leaseToken = ""
			item.availableAt = now
			q.ready = append(q.ready, item)
		}
	}
	for i, item := range q.ready {
		if item.availableAt.After(now) {
			continue
		}
		q.ready = append(q.ready[:i], q.ready[i+1:]...)
		item.attempts++
		item.leaseToken = uuid.NewString()
		if q.broker.LeaseTimeout > 0 {
			item.leaseUntil = now.Add(q.broker.LeaseTimeout)
		}
		q.leased[item.leaseToken] = item
		return &memoryDelivery{queue: q, item: item, token: item.leaseToken, attempt: item.attempts}
	}
	return nil
}

func (q *MemoryQueue) settle(token string, opts *jobqueue.NackOptions) error {
	q.mu.Lock()
	item, ok := q.leased[token]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("queue: delivery lease expired or already settled")
	}
	delete(q.leased, token)
	item.leaseToken = ""
	if opts != nil {
		item.lastError = opts.Reason
		switch {
		case opts.DeadLetter:
			q.dead = append(q.dead, item)
		default:
			item.availableAt = q.broker.now().Add(opts.Delay)
			q.ready = append(q.ready, item)
		}
	}
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) pollInterval() time.Duration {
	if q.broker.PollInterval > 0 {
		return q.broker.PollInterval
	}
	return defaultMemoryPollInterval
}

// Stats reports ready, leased and dead-lettered counts.
func (q *MemoryQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Ready: len(q.ready), Leased: len(q.leased), DeadLettered: len(q.dead)}
}

// DeadLetters returns the messages parked after exhausting retries.
func (q *MemoryQueue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, 0, len(q.dead))
	for _, item := range q.dead {
		out = append(out, DeadLetter{
			Message:  cloneExecutionMessage(item.message),
			Attempts: item.attempts,
			Reason:   item.lastError,
		})
	}
	return out
}

type memoryDelivery struct {
	queue   *MemoryQueue
	item    *memoryItem
	token   string
	attempt int
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return cloneExecutionMessage(d.item.message)
}

func (d *memoryDelivery) Attempt() int {
	return d.attempt
}

func (d *memoryDelivery) Ack(context.Context) error {
	return d.queue.settle(d.token, nil)
}

func (d *memoryDelivery) Nack(_ context.Context, opts jobqueue.NackOptions) error {
	return d.queue.settle(d.token, &opts)
}

var (
	_ Broker            = (*MemoryBroker)(nil)
	_ Queue             = (*MemoryQueue)(nil)
	_ jobqueue.Delivery = (*memoryDelivery)(nil)
	_ AttemptReporter   = (*memoryDelivery)(nil)
)
