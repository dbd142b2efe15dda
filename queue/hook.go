package queue

import (
	"context"

	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-messenger/core"
)

// LogHook reports worker lifecycle events to an observer.
type LogHook struct {
	Observer core.Observer
}

func (h LogHook) OnStart(ctx context.Context, event worker.Event) {
	h.Observer.Debug(ctx, "queue job started", eventFields(event))
}

func (h LogHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.Observer.Since(ctx, "job.duration_ms", event.StartedAt, map[string]string{"status": "success"})
	h.Observer.Debug(ctx, "queue job succeeded", eventFields(event))
}

func (h LogHook) OnFailure(ctx context.Context, event worker.Event) {
	h.Observer.Since(ctx, "job.duration_ms", event.StartedAt, map[string]string{"status": "failure"})
	h.Observer.Error(ctx, "queue job failed", core.ErrorFields(event.Err, eventFields(event)))
}

func (h LogHook) OnRetry(ctx context.Context, event worker.Event) {
	h.Observer.Since(ctx, "job.duration_ms", event.StartedAt, map[string]string{"status": "retry"})
	h.Observer.Warn(ctx, "queue job scheduled for retry", core.ErrorFields(event.Err, eventFields(event)))
}

func eventFields(event worker.Event) map[string]any {
	fields := map[string]any{
		"attempt":     event.Attempt,
		"duration_ms": event.Duration.Milliseconds(),
	}
	if event.Delay > 0 {
		fields["delay_ms"] = event.Delay.Milliseconds()
	}
	if event.Message != nil {
		fields["job_id"] = event.Message.JobID
		fields["message_id"] = event.Message.IdempotencyKey
	}
	return fields
}

var _ worker.Hook = LogHook{}
