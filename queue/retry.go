package queue

import (
	"strings"
	"time"

	jobqueue "github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-messenger/core"
)

// RetryPolicy bounds redelivery so a poisoned message cannot loop forever.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		BaseDelay:       2 * time.Second,
		MaxDelay:        time.Minute,
		DeadLetterOnMax: true,
	}
}

// Backoff returns the exponential delay before the next attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts jobqueue.NackOptions, attempt int) jobqueue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// NackFor builds the nack options for a failed attempt. Errors that can
// never succeed on redelivery go straight to the dead letter state.
func (p RetryPolicy) NackFor(err error, attempt int) jobqueue.NackOptions {
	opts := jobqueue.NackOptions{
		Delay:   p.Backoff(attempt),
		Requeue: true,
	}
	if err != nil {
		opts.Reason = core.RedactString(err.Error())
	}
	if permanent(err) {
		opts.Requeue = false
		opts.DeadLetter = true
		opts.Delay = 0
	}
	return p.NormalizeAttempt(opts, attempt)
}

func permanent(err error) bool {
	return core.IsMalformedPayload(err) ||
		core.IsInvalidRequest(err) ||
		core.IsUnknownChannel(err) ||
		core.IsPlatformError(err)
}
