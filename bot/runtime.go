package bot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-messenger/core"
	"github.com/goliatone/go-messenger/session"
)

// Deps are the collaborators a runtime shares across events of a channel.
type Deps struct {
	Sessions *session.Store
	Sender   core.Sender
	Settings core.SettingsClient
	Profiles core.ProfileClient
	Observer core.Observer
}

// Runtime drives one bot instance.
type Runtime struct {
	config   Config
	bot      Bot
	sessions *session.Store
	sender   core.Sender
	settings core.SettingsClient
	profiles core.ProfileClient
	observer core.Observer
}

func NewRuntime(cfg Config, bot Bot, deps Deps) *Runtime {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.NewStore(nil)
	}
	return &Runtime{
		config:   cfg,
		bot:      bot,
		sessions: sessions,
		sender:   deps.Sender,
		settings: deps.Settings,
		profiles: deps.Profiles,
		observer: deps.Observer,
	}
}

func (r *Runtime) Config() Config { return r.config }

func (r *Runtime) Bot() Bot { return r.bot }

// HandleEvent classifies event and invokes exactly one hook.
func (r *Runtime) HandleEvent(ctx context.Context, event core.Event) error {
	conv := r.conversation(event)
	kind := event.Kind()
	startedAt := time.Now()
	fields := map[string]any{
		"channel_id": r.config.PageID(),
		"sender_id":  event.Sender.ID,
		"event_kind": string(kind),
	}

	var err error
	switch kind {
	case core.EventOptin:
		if h, ok := r.bot.(AuthenticationHandler); ok {
			err = h.HandleAuthentication(ctx, conv)
		}
	case core.EventMessage:
		if h, ok := r.bot.(MessageHandler); ok {
			err = h.HandleMessage(ctx, conv)
		}
	case core.EventDelivery:
		if h, ok := r.bot.(DeliveryHandler); ok {
			err = h.HandleDelivery(ctx, conv)
		}
	case core.EventPostback:
		if h, ok := r.bot.(PostbackHandler); ok {
			err = h.HandlePostback(ctx, conv)
		} else {
			err = r.Postback(ctx, conv)
		}
	case core.EventRead:
		if h, ok := r.bot.(ReadHandler); ok {
			err = h.HandleRead(ctx, conv)
		}
	case core.EventAccountLinking:
		if h, ok := r.bot.(AccountLinkingHandler); ok {
			err = h.HandleAccountLinking(ctx, conv)
		}
	default:
		r.observer.Warn(ctx, "unknown event", fields)
		r.observer.Count(ctx, "event.unknown", nil)
		return nil
	}

	tags := map[string]string{"event_kind": string(kind)}
	r.observer.Since(ctx, "event.duration", startedAt, tags)
	if err != nil {
		r.observer.Error(ctx, "bot hook failed", core.ErrorFields(err, fields))
		r.observer.Count(ctx, "event.failed", tags)
		return err
	}
	r.observer.Debug(ctx, "bot hook completed", fields)
	return nil
}

// Postback is the default postback behavior: resolve the event id, run the
// start hook for get_started, then every matching route in order.
func (r *Runtime) Postback(ctx context.Context, conv *Conversation) error {
	if conv.Event.Postback == nil {
		return nil
	}
	eventID := PostbackEventID(conv.Event.Postback.Payload)

	var errs []error
	if eventID == core.GetStartedPayload {
		if err := r.Start(ctx, conv); err != nil {
			errs = append(errs, err)
		}
	}
	matched := 0
	for _, route := range r.routes() {
		if route.Match == nil || route.Handle == nil || !route.Match.Match(eventID) {
			continue
		}
		matched++
		if err := route.Handle(ctx, conv, eventID); err != nil {
			errs = append(errs, err)
		}
	}
	if matched == 0 && eventID != core.GetStartedPayload {
		r.observer.Debug(ctx, "postback matched no route", map[string]any{
			"channel_id": r.config.PageID(),
			"event_id":   eventID,
		})
	}
	return errors.Join(errs...)
}

// Start runs the bot's start hook, or sends the configured start message.
func (r *Runtime) Start(ctx context.Context, conv *Conversation) error {
	if h, ok := r.bot.(StartHandler); ok {
		return h.HandleStart(ctx, conv)
	}
	message := strings.TrimSpace(r.config.StartMessage())
	if message == "" {
		return nil
	}
	_, err := conv.Send(ctx, core.TextMessage(r.config.StartMessage()))
	return err
}

// Configure applies greeting, get-started and persistent menu settings.
// It is safe to call repeatedly.
func (r *Runtime) Configure(ctx context.Context) error {
	if r.settings == nil {
		return core.ConfigurationError(nil, "bot: settings client is required to configure a channel", map[string]any{
			"channel_id": r.config.PageID(),
		})
	}
	var settings []core.ThreadSettings
	if greeting := strings.TrimSpace(r.config.Greeting()); greeting != "" {
		settings = append(settings, core.GreetingSettings(greeting))
	}
	settings = append(settings, core.GetStartedSettings())
	if menu := r.config.PersistentMenu(); len(menu) > 0 {
		settings = append(settings, core.PersistentMenuSettings(menu))
	}
	for _, setting := range settings {
		if err := r.settings.ThreadSettings(ctx, setting); err != nil {
			return err
		}
	}
	r.observer.Info(ctx, "channel configured", map[string]any{
		"channel_id": r.config.PageID(),
		"settings":   len(settings),
	})
	return nil
}

// PostbackEventID reads {"event": "..."} from payload, or returns the raw
// payload when it is not that shape.
func PostbackEventID(payload string) string {
	var structured struct {
		Event *string `json:"event"`
	}
	if err := json.Unmarshal([]byte(payload), &structured); err == nil && structured.Event != nil {
		return *structured.Event
	}
	return payload
}

func (r *Runtime) routes() []Route {
	routes := r.config.Routes()
	if router, ok := r.bot.(Router); ok {
		routes = append(routes, router.PostbackRoutes()...)
	}
	return routes
}

func (r *Runtime) conversation(event core.Event) *Conversation {
	return &Conversation{
		Event:   event,
		Session: r.sessions.ForEvent(event),
		Config:  r.config,
		runtime: r,
	}
}

func (r *Runtime) send(ctx context.Context, req core.OutboundRequest) (core.SendResult, error) {
	if r.sender == nil {
		return core.SendResult{}, core.ConfigurationError(nil, "bot: sender is not configured", map[string]any{
			"channel_id": r.config.PageID(),
		})
	}
	return r.sender.Send(ctx, req)
}
