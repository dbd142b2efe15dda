// Package messenger assembles the webhook gateway, bot channels, queue
// consumers and outbound senders into a Hub built from core.Config.
package messenger

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-messenger/bot"
	"github.com/goliatone/go-messenger/command"
	"github.com/goliatone/go-messenger/core"
	"github.com/goliatone/go-messenger/gateway"
	"github.com/goliatone/go-messenger/queue"
	"github.com/goliatone/go-messenger/sender"
	"github.com/goliatone/go-messenger/session"
	"github.com/goliatone/go-messenger/transport"
	"github.com/goliatone/go-messenger/webhooks"
)

type Config = core.Config

type BotConfig = core.BotConfig

func DefaultConfig() Config {
	return core.DefaultConfig()
}

type Option func(*Hub)

func WithLogger(logger core.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(h *Hub) {
		if provider != nil {
			h.loggerProvider = provider
		}
	}
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(h *Hub) {
		if metrics != nil {
			h.metrics = metrics
		}
	}
}

// WithHTTPClient replaces the client used for Graph API calls.
func WithHTTPClient(client transport.HTTPDoer) Option {
	return func(h *Hub) {
		if client != nil {
			h.httpClient = client
		}
	}
}

// WithBot registers a bot factory under the kind name used in config files.
func WithBot(kind string, factory bot.Factory) Option {
	return func(h *Hub) {
		kind = strings.TrimSpace(kind)
		if kind != "" && factory != nil {
			h.factories[kind] = factory
		}
	}
}

// WithRoutes adds postback routes to the channel serving pageID.
func WithRoutes(pageID string, routes ...bot.Route) Option {
	return func(h *Hub) {
		pageID = strings.TrimSpace(pageID)
		h.routes[pageID] = append(h.routes[pageID], routes...)
	}
}

func WithSessionBackend(backend session.Backend) Option {
	return func(h *Hub) {
		if backend != nil {
			h.sessionBackend = backend
		}
	}
}

// WithBroker sets the queue backend. Without it a memory broker is used
// for the memory transport.
func WithBroker(broker queue.Broker) Option {
	return func(h *Hub) {
		if broker != nil {
			h.broker = broker
		}
	}
}

// WithSleeper replaces the wait used before retrying a rate-limited send.
func WithSleeper(sleep core.Sleeper) Option {
	return func(h *Hub) {
		if sleep != nil {
			h.sleep = sleep
		}
	}
}

// Hub owns every runtime component of one deployment.
type Hub struct {
	config core.Config

	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	httpClient     transport.HTTPDoer
	sleep          core.Sleeper
	factories      map[string]bot.Factory
	routes         map[string][]bot.Route
	sessionBackend session.Backend
	broker         queue.Broker

	sessions  *session.Store
	bridge    *queue.Bridge
	adapter   core.TransportAdapter
	registry  *gateway.Registry
	gateway   *gateway.Gateway
	inbound   *gateway.InboundWorker
	outbound  *sender.OutboundConsumer
	configure *command.ConfigureChannelCommand
}

// New validates cfg and builds the hub. Every configured bot must name a
// registered kind; an empty kind selects the echo bot.
func New(cfg core.Config, opts ...Option) (*Hub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, core.ConfigurationError(err, "messenger: invalid config", nil)
	}
	h := &Hub{
		config:    cfg,
		metrics:   core.NopMetricsRecorder{},
		factories: map[string]bot.Factory{bot.KindEcho: bot.NewEchoBot},
		routes:    map[string][]bot.Route{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if err := h.build(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Hub) observer(name string) core.Observer {
	logger := core.ResolveLogger("messenger."+name, h.loggerProvider, h.logger)
	return core.NewObserver("messenger."+name, logger, h.metrics)
}

func (h *Hub) build() error {
	h.sessions = session.NewStore(h.sessionBackend)
	h.adapter = transport.NewRESTAdapter(h.httpClient, h.config.RequestTimeout)

	if h.queueEnabled() {
		if h.broker == nil {
			if !strings.EqualFold(strings.TrimSpace(h.config.Queue.Transport), core.QueueTransportMemory) {
				return core.ConfigurationError(nil, "messenger: queue transport requires a broker", map[string]any{
					"transport": h.config.Queue.Transport,
				})
			}
			memory := queue.NewMemoryBroker(h.config.Queue.LeaseTimeout)
			memory.PollInterval = h.config.Queue.PollInterval
			h.broker = memory
		}
		h.bridge = queue.NewBridge(h.broker,
			queue.WithPool(h.config.Queue.Workers, h.config.Queue.Buffer),
			queue.WithRetryPolicy(queue.RetryPolicy{
				MaxAttempts:     h.config.Queue.MaxAttempts,
				BaseDelay:       h.config.Queue.RetryDelay,
				MaxDelay:        h.config.Queue.MaxRetryDelay,
				DeadLetterOnMax: true,
			}),
			queue.WithHook(queue.LogHook{Observer: h.observer("queue")}),
			queue.WithObserver(h.observer("queue")),
		)
	}

	h.registry = gateway.NewRegistry()
	for _, botCfg := range h.config.Bots {
		if err := h.registerBot(botCfg); err != nil {
			return err
		}
	}

	gatewayOpts := []gateway.Option{gateway.WithObserver(h.observer("gateway"))}
	if h.config.UseMessageQueue {
		gatewayOpts = append(gatewayOpts, gateway.WithDispatcher(gateway.NewQueueDispatcher(h.bridge, h.config.Queue.Inbound)))
	}
	if h.bridge != nil && !h.config.Queue.DeadLetter.IsZero() {
		gatewayOpts = append(gatewayOpts, gateway.WithDeadLetter(h.bridge, h.config.Queue.DeadLetter))
	}
	gw, err := gateway.New(h.config.VerifyToken, h.registry, gatewayOpts...)
	if err != nil {
		return err
	}
	h.gateway = gw
	h.inbound = gateway.NewInboundWorker(h.registry, h.observer("inbound"))
	h.outbound = sender.NewOutboundConsumer(sender.ClientFactory(h.clientOptions("outbound")...), h.observer("outbound"))
	h.configure = command.NewConfigureChannelCommand(h.registry)
	return nil
}

func (h *Hub) queueEnabled() bool {
	return h.config.UseMessageQueue || h.config.Queue.UseOutboundQueue
}

func (h *Hub) clientOptions(name string) []sender.ClientOption {
	opts := []sender.ClientOption{
		sender.WithTransport(h.adapter),
		sender.WithBaseURL(h.config.GraphURL),
		sender.WithRateLimitBackoff(h.config.RateLimitBackoff),
		sender.WithObserver(h.observer(name)),
	}
	if h.sleep != nil {
		opts = append(opts, sender.WithSleeper(h.sleep))
	}
	return opts
}

func (h *Hub) registerBot(in core.BotConfig) error {
	kind := strings.TrimSpace(in.Bot)
	if kind == "" {
		kind = bot.KindEcho
		in.Bot = kind
	}
	factory, ok := h.factories[kind]
	if !ok {
		return core.ConfigurationError(nil, "messenger: unknown bot kind", map[string]any{
			"page_id": in.PageID,
			"bot":     kind,
		})
	}
	cfg := bot.NewConfig(in, bot.WithRoutes(h.routes[strings.TrimSpace(in.PageID)]...))
	client := sender.NewClient(cfg.AccessToken(), h.clientOptions("sender")...)

	var out core.Sender = client
	if h.config.Queue.UseOutboundQueue {
		out = sender.NewQueueSender(h.bridge, h.config.Queue.Outbound, cfg.PageID(), cfg.AccessToken())
	}
	return h.registry.Register(gateway.Registration{
		Factory: factory,
		Config:  cfg,
		Deps: bot.Deps{
			Sessions: h.sessions,
			Sender:   out,
			Settings: client,
			Profiles: client,
			Observer: h.observer("bot"),
		},
	})
}

func (h *Hub) Config() core.Config { return h.config }

func (h *Hub) Gateway() *gateway.Gateway { return h.gateway }

func (h *Hub) Registry() *gateway.Registry { return h.registry }

func (h *Hub) Sessions() *session.Store { return h.sessions }

// Bridge is nil when neither queue is enabled.
func (h *Hub) Bridge() *queue.Bridge { return h.bridge }

// Handler returns the HTTP handler serving the webhook path and /healthz.
func (h *Hub) Handler() http.Handler {
	var opts []gateway.HTTPOption
	if verifier := webhooks.NewSignatureVerifier(h.config.AppSecret); verifier.Enabled() {
		opts = append(opts, gateway.WithBodyVerifier(verifier))
	}
	return gateway.NewHTTPHandler(h.gateway, h.config.WebhookPath(), h.config.HTTP.MaxBodyBytes, opts...)
}

// ConfigureAll posts thread settings for every channel. A channel whose
// configuration fails is unregistered and reported; the others keep
// serving.
func (h *Hub) ConfigureAll(ctx context.Context) map[string]error {
	failed := map[string]error{}
	observer := h.observer("configure")
	for _, channelID := range h.registry.Channels() {
		err := h.configure.Execute(ctx, command.ConfigureChannelMessage{ChannelID: channelID})
		if err == nil {
			observer.Info(ctx, "channel configured", map[string]any{"channel_id": channelID})
			continue
		}
		h.registry.Unregister(channelID)
		failed[channelID] = err
		observer.Error(ctx, "channel disabled after configuration failure", core.ErrorFields(err, map[string]any{
			"channel_id": channelID,
		}))
	}
	return failed
}

// ConsumeInbound runs the inbound worker until ctx is done. It returns
// immediately when the gateway dispatches synchronously.
func (h *Hub) ConsumeInbound(ctx context.Context) error {
	if !h.config.UseMessageQueue {
		return nil
	}
	return h.bridge.Consume(ctx, h.config.Queue.Inbound, h.inbound.Handle)
}

// ConsumeOutbound runs the outbound consumer until ctx is done. It returns
// immediately when senders call the platform directly.
func (h *Hub) ConsumeOutbound(ctx context.Context) error {
	if !h.config.Queue.UseOutboundQueue {
		return nil
	}
	return h.bridge.Consume(ctx, h.config.Queue.Outbound, h.outbound.Handle)
}

// Server returns an http.Server for the configured address.
func (h *Hub) Server() *http.Server {
	return &http.Server{
		Addr:              h.config.HTTP.Addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Kinds lists the registered bot kinds.
func (h *Hub) Kinds() []string {
	out := make([]string, 0, len(h.factories))
	for kind := range h.factories {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}
