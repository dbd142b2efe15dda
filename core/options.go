package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
	"gopkg.in/yaml.v3"
)

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type StaticConfigLoader struct {
	Values map[string]any
}

func (l StaticConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return copyAnyMap(l.Values), nil
}

// YAMLFileLoader reads a YAML config file. Duration strings such as "5s"
// are converted to time.Duration before the config is built.
type YAMLFileLoader struct {
	Path string
}

func (l YAMLFileLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ConfigurationError(err, "core: read config file", map[string]any{"path": path})
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, ConfigurationError(err, "core: parse config file", map[string]any{"path": path})
	}
	if err := normalizeDurations(raw); err != nil {
		return nil, ConfigurationError(err, "core: parse config durations", map[string]any{"path": path})
	}
	return raw, nil
}

const (
	EnvVerifyToken = "MESSENGER_VERIFY_TOKEN"
	EnvAppSecret   = "MESSENGER_APP_SECRET"
	EnvHTTPAddr    = "MESSENGER_HTTP_ADDR"
	EnvDatabaseDSN = "MESSENGER_DATABASE_DSN"
	EnvRedisURL    = "MESSENGER_REDIS_URL"
	EnvGraphURL    = "MESSENGER_GRAPH_URL"
)

// EnvLoader maps MESSENGER_* environment variables onto config keys.
type EnvLoader struct {
	Lookup func(key string) (string, bool)
}

func (l EnvLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw := map[string]any{}
	set := func(env string, path ...string) {
		value, ok := lookup(env)
		if !ok || strings.TrimSpace(value) == "" {
			return
		}
		setPath(raw, strings.TrimSpace(value), path...)
	}
	set(EnvVerifyToken, "hub_verify_token")
	set(EnvAppSecret, "app_secret")
	set(EnvHTTPAddr, "http", "addr")
	set(EnvDatabaseDSN, "database", "dsn")
	set(EnvRedisURL, "session", "redis_url")
	set(EnvGraphURL, "graph_url")
	return raw, nil
}

// GoOptionsResolver layers defaults, file values and runtime overrides,
// later layers winning, then builds and validates the result.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, file map[string]any, runtime map[string]any) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			copyAnyMap(file),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			copyAnyMap(runtime),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// LoadConfig resolves the runtime config from the given loaders.
func LoadConfig(ctx context.Context, file RawConfigLoader, runtime RawConfigLoader) (Config, error) {
	defaults := DefaultConfig()
	var fileValues, runtimeValues map[string]any
	var err error
	if file != nil {
		if fileValues, err = file.LoadRaw(ctx); err != nil {
			return Config{}, err
		}
	}
	if runtime != nil {
		if runtimeValues, err = runtime.LoadRaw(ctx); err != nil {
			return Config{}, err
		}
	}
	return GoOptionsResolver{}.Resolve(defaults, fileValues, runtimeValues)
}

func configToLayerMap(cfg Config) map[string]any {
	bots := make([]any, 0, len(cfg.Bots))
	for _, bot := range cfg.Bots {
		menu := make([]any, 0, len(bot.PersistentMenu))
		for _, item := range bot.PersistentMenu {
			menu = append(menu, map[string]any{
				"type":    item.Type,
				"title":   item.Title,
				"payload": item.Payload,
				"url":     item.URL,
			})
		}
		bots = append(bots, map[string]any{
			"page_id":         bot.PageID,
			"access_token":    bot.AccessToken,
			"bot":             bot.Bot,
			"start_message":   bot.StartMessage,
			"greeting":        bot.Greeting,
			"persistent_menu": menu,
			"args":            copyAnyMap(bot.Args),
		})
	}
	return map[string]any{
		"service_name":       cfg.ServiceName,
		"hub_verify_token":   cfg.VerifyToken,
		"app_secret":         cfg.AppSecret,
		"webhook":            cfg.Webhook,
		"graph_url":          cfg.GraphURL,
		"request_timeout":    cfg.RequestTimeout,
		"rate_limit_backoff": cfg.RateLimitBackoff,
		"use_message_queue":  cfg.UseMessageQueue,
		"http": map[string]any{
			"addr":           cfg.HTTP.Addr,
			"max_body_bytes": cfg.HTTP.MaxBodyBytes,
		},
		"queue": map[string]any{
			"transport":          cfg.Queue.Transport,
			"inbound":            bindingToLayerMap(cfg.Queue.Inbound),
			"outbound":           bindingToLayerMap(cfg.Queue.Outbound),
			"dead_letter":        bindingToLayerMap(cfg.Queue.DeadLetter),
			"use_outbound_queue": cfg.Queue.UseOutboundQueue,
			"workers":            cfg.Queue.Workers,
			"buffer":             cfg.Queue.Buffer,
			"max_attempts":       cfg.Queue.MaxAttempts,
			"retry_delay":        cfg.Queue.RetryDelay,
			"max_retry_delay":    cfg.Queue.MaxRetryDelay,
			"lease_timeout":      cfg.Queue.LeaseTimeout,
			"poll_interval":      cfg.Queue.PollInterval,
		},
		"session": map[string]any{
			"backend":    cfg.Session.Backend,
			"redis_url":  cfg.Session.RedisURL,
			"key_prefix": cfg.Session.KeyPrefix,
			"ttl":        cfg.Session.TTL,
			"cache_ttl":  cfg.Session.CacheTTL,
		},
		"database": map[string]any{
			"driver": cfg.Database.Driver,
			"dsn":    cfg.Database.DSN,
			"debug":  cfg.Database.Debug,
		},
		"bots": bots,
	}
}

func bindingToLayerMap(binding QueueBinding) map[string]any {
	return map[string]any{
		"transport":   binding.Transport,
		"exchange":    binding.Exchange,
		"queue":       binding.Queue,
		"routing_key": binding.RoutingKey,
		"durable":     binding.Durable,
	}
}

var durationKeys = map[string][]string{
	"":        {"request_timeout", "rate_limit_backoff"},
	"queue":   {"retry_delay", "max_retry_delay", "lease_timeout", "poll_interval"},
	"session": {"ttl", "cache_ttl"},
}

func normalizeDurations(raw map[string]any) error {
	for section, keys := range durationKeys {
		target := raw
		if section != "" {
			nested, ok := raw[section].(map[string]any)
			if !ok {
				continue
			}
			target = nested
		}
		for _, key := range keys {
			value, ok := target[key].(string)
			if !ok {
				continue
			}
			parsed, err := time.ParseDuration(strings.TrimSpace(value))
			if err != nil {
				return fmt.Errorf("%s: %w", strings.TrimPrefix(section+"."+key, "."), err)
			}
			target[key] = parsed
		}
	}
	return nil
}

func setPath(target map[string]any, value any, path ...string) {
	if len(path) == 0 {
		return
	}
	current := target
	for _, segment := range path[:len(path)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[segment] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
