package core

import (
	"context"
	"time"
)

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// Sender delivers one outbound request to the platform, directly or through
// the outbound queue.
type Sender interface {
	Send(ctx context.Context, req OutboundRequest) (SendResult, error)
}

// SettingsClient posts thread-level settings for a page.
type SettingsClient interface {
	ThreadSettings(ctx context.Context, settings ThreadSettings) error
}

type ProfileClient interface {
	Profile(ctx context.Context, userID string, fields ...string) (Profile, error)
}

// Publisher writes a JSON payload to a queue binding.
type Publisher interface {
	Publish(ctx context.Context, binding QueueBinding, payload any) error
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
