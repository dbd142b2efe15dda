package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultGraphURL         = "https://graph.facebook.com/v2.6"
	DefaultRequestTimeout   = 10 * time.Second
	DefaultRateLimitBackoff = 5 * time.Second
	DefaultWebhookPath      = "webhook"

	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
	SessionBackendSQL    = "sql"

	DatabaseDriverSQLite   = "sqlite3"
	DatabaseDriverPostgres = "postgres"
)

type HTTPConfig struct {
	Addr         string `koanf:"addr" mapstructure:"addr"`
	MaxBodyBytes int64  `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
}

type QueueConfig struct {
	Transport        string        `koanf:"transport" mapstructure:"transport"`
	Inbound          QueueBinding  `koanf:"inbound" mapstructure:"inbound"`
	Outbound         QueueBinding  `koanf:"outbound" mapstructure:"outbound"`
	DeadLetter       QueueBinding  `koanf:"dead_letter" mapstructure:"dead_letter"`
	UseOutboundQueue bool          `koanf:"use_outbound_queue" mapstructure:"use_outbound_queue"`
	Workers          int           `koanf:"workers" mapstructure:"workers"`
	Buffer           int           `koanf:"buffer" mapstructure:"buffer"`
	MaxAttempts      int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	RetryDelay       time.Duration `koanf:"retry_delay" mapstructure:"retry_delay"`
	MaxRetryDelay    time.Duration `koanf:"max_retry_delay" mapstructure:"max_retry_delay"`
	LeaseTimeout     time.Duration `koanf:"lease_timeout" mapstructure:"lease_timeout"`
	PollInterval     time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
}

type SessionConfig struct {
	Backend   string        `koanf:"backend" mapstructure:"backend"`
	RedisURL  string        `koanf:"redis_url" mapstructure:"redis_url"`
	KeyPrefix string        `koanf:"key_prefix" mapstructure:"key_prefix"`
	TTL       time.Duration `koanf:"ttl" mapstructure:"ttl"`
	CacheTTL  time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

// BotConfig registers one page (channel) and the bot kind that serves it.
type BotConfig struct {
	PageID         string         `koanf:"page_id" mapstructure:"page_id"`
	AccessToken    string         `koanf:"access_token" mapstructure:"access_token"`
	Bot            string         `koanf:"bot" mapstructure:"bot"`
	StartMessage   string         `koanf:"start_message" mapstructure:"start_message"`
	Greeting       string         `koanf:"greeting" mapstructure:"greeting"`
	PersistentMenu []CallToAction `koanf:"persistent_menu" mapstructure:"persistent_menu"`
	Args           map[string]any `koanf:"args" mapstructure:"args"`
}

// Config is resolved once at startup and passed by value afterwards.
type Config struct {
	ServiceName      string         `koanf:"service_name" mapstructure:"service_name"`
	VerifyToken      string         `koanf:"hub_verify_token" mapstructure:"hub_verify_token"`
	AppSecret        string         `koanf:"app_secret" mapstructure:"app_secret"`
	Webhook          string         `koanf:"webhook" mapstructure:"webhook"`
	GraphURL         string         `koanf:"graph_url" mapstructure:"graph_url"`
	RequestTimeout   time.Duration  `koanf:"request_timeout" mapstructure:"request_timeout"`
	RateLimitBackoff time.Duration  `koanf:"rate_limit_backoff" mapstructure:"rate_limit_backoff"`
	UseMessageQueue  bool           `koanf:"use_message_queue" mapstructure:"use_message_queue"`
	HTTP             HTTPConfig     `koanf:"http" mapstructure:"http"`
	Queue            QueueConfig    `koanf:"queue" mapstructure:"queue"`
	Session          SessionConfig  `koanf:"session" mapstructure:"session"`
	Database         DatabaseConfig `koanf:"database" mapstructure:"database"`
	Bots             []BotConfig    `koanf:"bots" mapstructure:"bots"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:      "messenger",
		Webhook:          DefaultWebhookPath,
		GraphURL:         DefaultGraphURL,
		RequestTimeout:   DefaultRequestTimeout,
		RateLimitBackoff: DefaultRateLimitBackoff,
		HTTP: HTTPConfig{
			Addr:         ":8080",
			MaxBodyBytes: 1 << 20,
		},
		Queue: QueueConfig{
			Transport: QueueTransportMemory,
			Inbound: QueueBinding{
				Exchange:   DefaultExchange,
				Queue:      DefaultInboundQueue,
				RoutingKey: DefaultInboundQueue,
				Durable:    true,
			},
			Outbound: QueueBinding{
				Exchange:   DefaultExchange,
				Queue:      DefaultOutboundQueue,
				RoutingKey: DefaultOutboundQueue,
				Durable:    true,
			},
			DeadLetter: QueueBinding{
				Exchange:   DefaultExchange,
				Queue:      DefaultDeadLetterQueue,
				RoutingKey: DefaultDeadLetterQueue,
				Durable:    true,
			},
			Workers:       8,
			Buffer:        64,
			MaxAttempts:   5,
			RetryDelay:    2 * time.Second,
			MaxRetryDelay: time.Minute,
			LeaseTimeout:  time.Minute,
			PollInterval:  250 * time.Millisecond,
		},
		Session: SessionConfig{
			Backend:   SessionBackendMemory,
			KeyPrefix: "session",
			CacheTTL:  time.Minute,
		},
		Database: DatabaseConfig{
			Driver: DatabaseDriverSQLite,
			DSN:    "file:messenger.db?cache=shared&_foreign_keys=on",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.VerifyToken) == "" {
		return fmt.Errorf("core: hub_verify_token is required")
	}
	if strings.Trim(strings.TrimSpace(c.Webhook), "/") == "" {
		return fmt.Errorf("core: webhook path is required")
	}
	if c.RequestTimeout < 0 || c.RateLimitBackoff < 0 {
		return fmt.Errorf("core: timeouts must not be negative")
	}
	if err := c.Queue.validate(c.UseMessageQueue); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Session.Backend)) {
	case "", SessionBackendMemory, SessionBackendSQL:
	case SessionBackendRedis:
		if strings.TrimSpace(c.Session.RedisURL) == "" {
			return fmt.Errorf("core: session.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("core: unsupported session backend %q", c.Session.Backend)
	}
	seen := make(map[string]struct{}, len(c.Bots))
	for i, bot := range c.Bots {
		pageID := strings.TrimSpace(bot.PageID)
		if pageID == "" {
			return fmt.Errorf("core: bots[%d].page_id is required", i)
		}
		if strings.TrimSpace(bot.AccessToken) == "" {
			return fmt.Errorf("core: bots[%d].access_token is required", i)
		}
		if _, exists := seen[pageID]; exists {
			return fmt.Errorf("core: duplicate page_id %q", pageID)
		}
		seen[pageID] = struct{}{}
	}
	return nil
}

func (q QueueConfig) validate(enabled bool) error {
	if !enabled && !q.UseOutboundQueue {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(q.Transport)) {
	case QueueTransportMemory, QueueTransportSQL:
	default:
		return fmt.Errorf("core: unsupported queue transport %q", q.Transport)
	}
	if q.Workers <= 0 {
		return fmt.Errorf("core: queue.workers must be positive")
	}
	if q.Buffer < 0 {
		return fmt.Errorf("core: queue.buffer must not be negative")
	}
	names := map[string]string{}
	for label, binding := range map[string]QueueBinding{
		"inbound":     q.Inbound,
		"outbound":    q.Outbound,
		"dead_letter": q.DeadLetter,
	} {
		if binding.IsZero() {
			if label == "dead_letter" {
				continue
			}
			return fmt.Errorf("core: queue.%s.queue is required", label)
		}
		key := binding.Key()
		if other, exists := names[key]; exists {
			return fmt.Errorf("core: queue.%s and queue.%s must use distinct queues", other, label)
		}
		names[key] = label
	}
	return nil
}

// WebhookPath returns the route path with a single leading slash.
func (c Config) WebhookPath() string {
	return "/" + strings.Trim(strings.TrimSpace(c.Webhook), "/")
}

// Bot returns the configuration registered for pageID.
func (c Config) Bot(pageID string) (BotConfig, bool) {
	pageID = strings.TrimSpace(pageID)
	for _, bot := range c.Bots {
		if strings.TrimSpace(bot.PageID) == pageID {
			return bot, true
		}
	}
	return BotConfig{}, false
}
