package queue

import (
	"context"
	"time"

	jobqueue "github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	"golang.org/x/sync/errgroup"
)

type DequeueFunc func(ctx context.Context) (jobqueue.Delivery, error)

type ProcessFunc func(ctx context.Context, delivery jobqueue.Delivery) Outcome

// Outcome reports how a delivery was settled.
type Outcome struct {
	Attempt int
	Err     error
	Retry   bool
	Delay   time.Duration
}

// Pool runs a fixed number of workers fed through a bounded buffer.
type Pool struct {
	workers int
	buffer  int
	hook    worker.Hook
	now     func() time.Time
}

func NewPool(workers, buffer int, hook worker.Hook) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	if hook == nil {
		hook = NopHook{}
	}
	return &Pool{workers: workers, buffer: buffer, hook: hook, now: time.Now}
}

func (p *Pool) Workers() int { return p.workers }

func (p *Pool) Buffer() int { return p.buffer }

// Run dequeues until ctx is cancelled or dequeue fails, then waits for the
// workers. Deliveries still buffered at shutdown are nacked for immediate
// redelivery.
func (p *Pool) Run(ctx context.Context, dequeue DequeueFunc, process ProcessFunc) error {
	work := make(chan jobqueue.Delivery, p.buffer)
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer close(work)
		for {
			delivery, err := dequeue(groupCtx)
			if err != nil {
				if groupCtx.Err() != nil {
					return nil
				}
				return err
			}
			select {
			case work <- delivery:
			case <-groupCtx.Done():
				release(delivery)
				return nil
			}
		}
	})

	for i := 0; i < p.workers; i++ {
		group.Go(func() error {
			for delivery := range work {
				if groupCtx.Err() != nil {
					release(delivery)
					continue
				}
				p.runOne(groupCtx, delivery, process)
			}
			return nil
		})
	}
	return group.Wait()
}

func (p *Pool) runOne(ctx context.Context, delivery jobqueue.Delivery, process ProcessFunc) {
	started := p.now()
	event := worker.Event{
		Message:   delivery.Message(),
		Delivery:  delivery,
		Attempt:   AttemptOf(delivery),
		StartedAt: started,
	}
	p.hook.OnStart(ctx, event)

	outcome := process(ctx, delivery)
	event.Attempt = outcome.Attempt
	event.Err = outcome.Err
	event.Delay = outcome.Delay
	event.Duration = p.now().Sub(started)
	switch {
	case outcome.Err == nil:
		p.hook.OnSuccess(ctx, event)
	case outcome.Retry:
		p.hook.OnRetry(ctx, event)
	default:
		p.hook.OnFailure(ctx, event)
	}
}

func release(delivery jobqueue.Delivery) {
	if delivery == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = delivery.Nack(ctx, jobqueue.NackOptions{Requeue: true, Reason: "consumer shutting down"})
}

type NopHook struct{}

func (NopHook) OnStart(context.Context, worker.Event)   {}
func (NopHook) OnSuccess(context.Context, worker.Event) {}
func (NopHook) OnFailure(context.Context, worker.Event) {}
func (NopHook) OnRetry(context.Context, worker.Event)   {}

var _ worker.Hook = NopHook{}
