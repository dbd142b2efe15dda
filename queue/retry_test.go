package queue

import (
	"errors"
	"strings"
	"testing"
	"time"

	jobqueue "github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-messenger/core"
)

func TestNackRetryPolicyBoundaries(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:     3,
		MaxDelay:        10 * time.Second,
		DeadLetterOnMax: true,
	}

	opts := policy.NormalizeAttempt(jobqueue.NackOptions{
		Delay:   30 * time.Second,
		Requeue: true,
		Reason:  " transient ",
	}, 1)
	if opts.Delay != 10*time.Second {
		t.Fatalf("expected delay to be bounded, got %s", opts.Delay)
	}
	if !opts.Requeue || opts.DeadLetter {
		t.Fatalf("expected requeue before max attempts, got %+v", opts)
	}
	if opts.Reason != "transient" {
		t.Fatalf("expected trimmed reason, got %q", opts.Reason)
	}

	opts = policy.NormalizeAttempt(jobqueue.NackOptions{Delay: time.Second, Requeue: true}, 3)
	if opts.Requeue {
		t.Fatalf("expected no requeue once max attempts is reached")
	}
	if !opts.DeadLetter {
		t.Fatalf("expected dead letter on max attempts")
	}
}

func TestRetryPolicyBackoffIsExponentialAndCapped(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	cases := map[int]time.Duration{
		0: time.Second,
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 5 * time.Second,
		9: 5 * time.Second,
	}
	for attempt, want := range cases {
		if got := policy.Backoff(attempt); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}

func TestNackForDeadLettersPermanentErrors(t *testing.T) {
	policy := DefaultRetryPolicy()

	opts := policy.NackFor(core.MalformedPayload("bad", nil, nil), 1)
	if !opts.DeadLetter || opts.Requeue {
		t.Fatalf("expected malformed payload to dead-letter, got %+v", opts)
	}
	opts = policy.NackFor(core.PlatformError("rejected", 100, nil), 1)
	if !opts.DeadLetter {
		t.Fatalf("expected platform error to dead-letter, got %+v", opts)
	}
	opts = policy.NackFor(errors.New("timeout"), 1)
	if opts.DeadLetter || !opts.Requeue {
		t.Fatalf("expected transient error to requeue, got %+v", opts)
	}
	if opts.Delay != policy.BaseDelay {
		t.Fatalf("expected base delay, got %s", opts.Delay)
	}
}

func TestNackForRedactsTokensInReason(t *testing.T) {
	policy := DefaultRetryPolicy()
	err := errors.New(`Post "https://graph.example/me/messages?access_token=PAGE-SECRET-TOKEN": connection refused`)

	opts := policy.NackFor(err, 1)
	if strings.Contains(opts.Reason, "PAGE-SECRET-TOKEN") {
		t.Fatalf("expected token to be redacted, got %q", opts.Reason)
	}
	if !strings.Contains(opts.Reason, "connection refused") {
		t.Fatalf("expected failure detail to survive, got %q", opts.Reason)
	}
}
