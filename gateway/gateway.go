// Package gateway implements the webhook surface: the subscription
// challenge, notification fan-out to channels, and the inbound worker.
package gateway

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-messenger/core"
)

const ModeSubscribe = "subscribe"

type ChallengeQuery struct {
	Mode        string
	VerifyToken string
	Challenge   string
}

// Response is what the webhook returns to the platform: 200 or 403.
type Response struct {
	StatusCode int
	Body       string
}

// DeadLetterEnvelope is published for events that cannot be routed.
type DeadLetterEnvelope struct {
	core.InboundEnvelope
	Reason     string    `json:"reason"`
	ErrorCode  string    `json:"error_code"`
	ReceivedAt time.Time `json:"received_at"`
}

type Stats struct {
	Notifications  int64
	Malformed      int64
	Ignored        int64
	Dispatched     int64
	DispatchFailed int64
	UnknownChannel int64
	DeadLettered   int64
	Unauthorized   int64
}

type Option func(*Gateway)

func WithDispatcher(dispatcher Dispatcher) Option {
	return func(g *Gateway) {
		if dispatcher != nil {
			g.dispatcher = dispatcher
		}
	}
}

// WithDeadLetter routes unknown-channel events to binding.
func WithDeadLetter(publisher core.Publisher, binding core.QueueBinding) Option {
	return func(g *Gateway) {
		g.deadLetters = publisher
		g.deadLetterBinding = binding.Normalized()
	}
}

func WithObserver(observer core.Observer) Option {
	return func(g *Gateway) {
		g.observer = observer
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

type Gateway struct {
	verifyToken       string
	registry          *Registry
	dispatcher        Dispatcher
	deadLetters       core.Publisher
	deadLetterBinding core.QueueBinding
	observer          core.Observer
	now               func() time.Time

	notifications  atomic.Int64
	malformed      atomic.Int64
	ignored        atomic.Int64
	dispatched     atomic.Int64
	dispatchFailed atomic.Int64
	unknownChannel atomic.Int64
	deadLettered   atomic.Int64
	unauthorized   atomic.Int64
}

func New(verifyToken string, registry *Registry, opts ...Option) (*Gateway, error) {
	verifyToken = strings.TrimSpace(verifyToken)
	if verifyToken == "" {
		return nil, core.ConfigurationError(nil, "gateway: verify token is required", nil)
	}
	if registry == nil {
		return nil, core.ConfigurationError(nil, "gateway: registry is required", nil)
	}
	g := &Gateway{
		verifyToken: verifyToken,
		registry:    registry,
		dispatcher:  SyncDispatcher{},
		observer:    core.NewObserver("gateway", nil, nil),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

func (g *Gateway) Registry() *Registry { return g.registry }

// HandleChallenge answers the subscription handshake.
func (g *Gateway) HandleChallenge(ctx context.Context, q ChallengeQuery) Response {
	tokenMatches := subtle.ConstantTimeCompare([]byte(q.VerifyToken), []byte(g.verifyToken)) == 1
	if q.Mode == ModeSubscribe && tokenMatches {
		g.observer.Info(ctx, "received hub challenge", nil)
		return Response{StatusCode: http.StatusOK, Body: q.Challenge}
	}
	g.observer.Warn(ctx, "invalid hub challenge", map[string]any{"mode": q.Mode})
	return Response{StatusCode: http.StatusForbidden}
}

// HandleNotification fans a webhook body out to channels. Failures are
// logged and counted; the response is always 200.
func (g *Gateway) HandleNotification(ctx context.Context, body []byte) Response {
	g.notifications.Add(1)
	ok := Response{StatusCode: http.StatusOK}

	notification, err := core.ParseNotification(body)
	if err != nil {
		g.malformed.Add(1)
		g.observer.Warn(ctx, "malformed notification", core.ErrorFields(err, nil))
		g.observer.Count(ctx, "notification.malformed", nil)
		return ok
	}
	if notification.Object != core.ObjectPage {
		g.ignored.Add(1)
		g.observer.Debug(ctx, "ignoring notification object", map[string]any{"object": notification.Object})
		return ok
	}

	for _, entry := range notification.Entry {
		for _, event := range entry.Messaging {
			g.dispatch(ctx, entry, event)
		}
	}
	return ok
}

func (g *Gateway) dispatch(ctx context.Context, entry core.Entry, event core.Event) {
	channelID := strings.TrimSpace(event.Recipient.ID)
	if channelID == "" {
		channelID = strings.TrimSpace(entry.ID)
	}
	fields := map[string]any{
		"channel_id": channelID,
		"entry_id":   entry.ID,
		"sender_id":  event.Sender.ID,
		"event_kind": string(event.Kind()),
	}

	channel, err := g.registry.Resolve(channelID)
	if err != nil {
		g.unknownChannel.Add(1)
		g.observer.Warn(ctx, "unable to select bot for channel", core.ErrorFields(err, fields))
		g.observer.Count(ctx, "event.unknown_channel", nil)
		g.deadLetter(ctx, channelID, event, err)
		return
	}

	if err := g.dispatcher.Dispatch(ctx, channel, event); err != nil {
		g.dispatchFailed.Add(1)
		g.observer.Error(ctx, "event dispatch failed", core.ErrorFields(err, fields))
		g.observer.Count(ctx, "event.dispatch_failed", nil)
		return
	}
	g.dispatched.Add(1)
	g.observer.Count(ctx, "event.dispatched", nil)
}

func (g *Gateway) deadLetter(ctx context.Context, channelID string, event core.Event, cause error) {
	if g.deadLetters == nil || g.deadLetterBinding.Queue == "" {
		return
	}
	envelope := DeadLetterEnvelope{
		InboundEnvelope: core.InboundEnvelope{ChannelID: channelID, Event: event},
		Reason:          core.RedactString(cause.Error()),
		ErrorCode:       core.MapError(cause).TextCode,
		ReceivedAt:      g.now().UTC(),
	}
	if err := g.deadLetters.Publish(ctx, g.deadLetterBinding, envelope); err != nil {
		g.observer.Error(ctx, "dead-letter publish failed", core.ErrorFields(err, map[string]any{
			"channel_id": channelID,
		}))
		return
	}
	g.deadLettered.Add(1)
}

// rejectBody records a body that could not be read.
func (g *Gateway) rejectBody(ctx context.Context, err error) Response {
	g.notifications.Add(1)
	g.malformed.Add(1)
	g.observer.Warn(ctx, "unreadable notification body", core.ErrorFields(
		core.MalformedPayload("gateway: read notification body", err, nil), nil,
	))
	return Response{StatusCode: http.StatusOK}
}

// rejectSignature answers 403 for a body whose signature did not verify.
func (g *Gateway) rejectSignature(ctx context.Context, err error) Response {
	g.notifications.Add(1)
	g.unauthorized.Add(1)
	g.observer.Warn(ctx, "notification signature rejected", core.ErrorFields(err, nil))
	return Response{StatusCode: http.StatusForbidden}
}

func (g *Gateway) Stats() Stats {
	return Stats{
		Notifications:  g.notifications.Load(),
		Malformed:      g.malformed.Load(),
		Ignored:        g.ignored.Load(),
		Dispatched:     g.dispatched.Load(),
		DispatchFailed: g.dispatchFailed.Load(),
		UnknownChannel: g.unknownChannel.Load(),
		DeadLettered:   g.deadLettered.Load(),
		Unauthorized:   g.unauthorized.Load(),
	}
}
