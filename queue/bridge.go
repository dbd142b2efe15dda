// Package queue implements the durable publish/consume bridge between the
// webhook gateway, bot workers and outbound senders. Messages are JSON
// payloads carried in go-job execution messages; deliveries are acked only
// after the handler returns without error.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	jobqueue "github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-messenger/core"
)

// Queue is one declared binding on a backend.
type Queue interface {
	jobqueue.Enqueuer
	jobqueue.Dequeuer
}

// Broker declares queues for bindings.
type Broker interface {
	Open(ctx context.Context, binding core.QueueBinding) (Queue, error)
}

// Handler processes one message. Returning nil acks the delivery; any error
// nacks it for redelivery or dead-lettering per the retry policy.
type Handler func(ctx context.Context, msg Message) error

type Stats struct {
	Ready        int
	Leased       int
	DeadLettered int
}

type DeadLetter struct {
	Message  *job.ExecutionMessage
	Attempts int
	Reason   string
}

type Option func(*Bridge)

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(b *Bridge) {
		b.policy = policy
	}
}

func WithPool(workers, buffer int) Option {
	return func(b *Bridge) {
		b.workers = workers
		b.buffer = buffer
	}
}

func WithHook(hook worker.Hook) Option {
	return func(b *Bridge) {
		if hook != nil {
			b.hook = hook
		}
	}
}

func WithObserver(observer core.Observer) Option {
	return func(b *Bridge) {
		b.observer = observer
	}
}

// WithReconnectDelay sets the pause after a failed dequeue.
func WithReconnectDelay(delay time.Duration) Option {
	return func(b *Bridge) {
		b.reconnectDelay = delay
	}
}

type Bridge struct {
	broker         Broker
	policy         RetryPolicy
	workers        int
	buffer         int
	reconnectDelay time.Duration
	hook           worker.Hook
	observer       core.Observer

	mu     sync.Mutex
	queues map[string]Queue
}

func NewBridge(broker Broker, opts ...Option) *Bridge {
	b := &Bridge{
		broker:         broker,
		policy:         DefaultRetryPolicy(),
		workers:        4,
		buffer:         16,
		reconnectDelay: time.Second,
		hook:           NopHook{},
		observer:       core.NewObserver("queue", nil, nil),
		queues:         map[string]Queue{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Publish serializes payload and enqueues it on the binding's queue,
// declaring the queue if absent.
func (b *Bridge) Publish(ctx context.Context, binding core.QueueBinding, payload any) error {
	q, err := b.open(ctx, binding)
	if err != nil {
		return err
	}
	msg, err := Encode(binding, payload)
	if err != nil {
		return err
	}
	if err := q.Enqueue(ctx, msg); err != nil {
		b.observer.Count(ctx, "publish.failed", map[string]string{"queue": binding.Queue})
		return core.BrokerUnavailable(err, "queue: publish failed", map[string]any{
			"queue":      binding.Queue,
			"message_id": msg.IdempotencyKey,
		})
	}
	b.observer.Count(ctx, "publish.total", map[string]string{"queue": binding.Queue})
	return nil
}

// Consume drains the binding until ctx is cancelled. Deliveries flow through
// a bounded pool; when every worker is busy and the buffer is full the
// dequeue loop blocks.
func (b *Bridge) Consume(ctx context.Context, binding core.QueueBinding, handler Handler) error {
	if handler == nil {
		return core.InvalidRequest("queue: consume handler is required", nil)
	}
	q, err := b.open(ctx, binding)
	if err != nil {
		return err
	}
	pool := NewPool(b.workers, b.buffer, b.hook)
	b.observer.Info(ctx, "queue consumer started", map[string]any{
		"queue":   binding.Queue,
		"workers": pool.Workers(),
		"buffer":  pool.Buffer(),
	})
	err = pool.Run(ctx, b.dequeueLoop(q, binding), b.process(binding, handler))
	b.observer.Info(context.Background(), "queue consumer stopped", map[string]any{"queue": binding.Queue})
	return err
}

func (b *Bridge) dequeueLoop(q Queue, binding core.QueueBinding) DequeueFunc {
	return func(ctx context.Context) (jobqueue.Delivery, error) {
		for {
			delivery, err := q.Dequeue(ctx)
			if err == nil {
				return delivery, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.observer.Warn(ctx, "queue dequeue failed", core.ErrorFields(
				core.BrokerUnavailable(err, "queue: dequeue failed", nil),
				map[string]any{"queue": binding.Queue},
			))
			if sleepErr := core.SleepContext(ctx, b.reconnectDelay); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}
}

func (b *Bridge) process(binding core.QueueBinding, handler Handler) ProcessFunc {
	return func(ctx context.Context, delivery jobqueue.Delivery) Outcome {
		msg, err := FromDelivery(delivery)
		if err == nil {
			err = safeHandle(ctx, handler, msg)
		}
		attempt := AttemptOf(delivery)
		tags := map[string]string{"queue": binding.Queue}
		if err == nil {
			if ackErr := delivery.Ack(ctx); ackErr != nil {
				b.observer.Error(ctx, "queue ack failed", core.ErrorFields(ackErr, map[string]any{
					"queue":      binding.Queue,
					"message_id": msg.ID,
				}))
				return Outcome{Attempt: attempt, Err: ackErr}
			}
			b.observer.Count(ctx, "consume.acked", tags)
			return Outcome{Attempt: attempt}
		}

		opts := b.policy.NackFor(err, attempt)
		fields := core.ErrorFields(err, map[string]any{
			"queue":       binding.Queue,
			"message_id":  msg.ID,
			"attempt":     attempt,
			"dead_letter": opts.DeadLetter,
			"delay_ms":    opts.Delay.Milliseconds(),
		})
		if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
			fields["nack_error"] = core.RedactString(nackErr.Error())
		}
		if opts.DeadLetter {
			b.observer.Error(ctx, "queue message dead-lettered", fields)
			b.observer.Count(ctx, "consume.dead_lettered", tags)
		} else {
			b.observer.Warn(ctx, "queue message requeued", fields)
			b.observer.Count(ctx, "consume.requeued", tags)
		}
		return Outcome{Attempt: attempt, Err: err, Retry: !opts.DeadLetter, Delay: opts.Delay}
	}
}

func (b *Bridge) open(ctx context.Context, binding core.QueueBinding) (Queue, error) {
	if b == nil || b.broker == nil {
		return nil, core.BrokerUnavailable(nil, "queue: broker is not configured", nil)
	}
	if err := binding.Validate(); err != nil {
		return nil, core.ConfigurationError(err, "queue: invalid binding", nil)
	}
	key := binding.Key()
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[key]; ok {
		return q, nil
	}
	q, err := b.broker.Open(ctx, binding)
	if err != nil {
		return nil, core.BrokerUnavailable(err, "queue: declare queue", map[string]any{"queue": binding.Queue})
	}
	b.queues[key] = q
	return q, nil
}

func safeHandle(ctx context.Context, handler Handler, msg Message) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = core.InternalError(fmt.Errorf("%v", recovered), "queue: handler panicked", map[string]any{
				"message_id": msg.ID,
			})
		}
	}()
	return handler(ctx, msg)
}

var _ core.Publisher = (*Bridge)(nil)
