// Package bot runs per-channel bot handlers: event classification, the
// optional lifecycle hooks, postback routing, replies and thread settings.
package bot

import (
	"strings"

	"github.com/goliatone/go-messenger/core"
)

// Config is the immutable per-channel configuration handed to bot
// factories. Accessors return copies.
type Config struct {
	pageID       string
	accessToken  string
	kind         string
	startMessage string
	greeting     string
	menu         []core.CallToAction
	routes       []Route
	args         map[string]any
}

type ConfigOption func(*Config)

// WithRoutes appends postback routes evaluated before the bot's own routes.
func WithRoutes(routes ...Route) ConfigOption {
	return func(c *Config) {
		c.routes = append(c.routes, routes...)
	}
}

func NewConfig(in core.BotConfig, opts ...ConfigOption) Config {
	cfg := Config{
		pageID:       strings.TrimSpace(in.PageID),
		accessToken:  strings.TrimSpace(in.AccessToken),
		kind:         strings.TrimSpace(in.Bot),
		startMessage: in.StartMessage,
		greeting:     in.Greeting,
		menu:         append([]core.CallToAction(nil), in.PersistentMenu...),
		args:         copyArgs(in.Args),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (c Config) PageID() string       { return c.pageID }
func (c Config) AccessToken() string  { return c.accessToken }
func (c Config) Kind() string         { return c.kind }
func (c Config) StartMessage() string { return c.startMessage }
func (c Config) Greeting() string     { return c.greeting }

func (c Config) PersistentMenu() []core.CallToAction {
	return append([]core.CallToAction(nil), c.menu...)
}

func (c Config) Routes() []Route {
	return append([]Route(nil), c.routes...)
}

// Arg returns a free-form bot argument from the config file.
func (c Config) Arg(key string) (any, bool) {
	value, ok := c.args[key]
	return value, ok
}

func (c Config) StringArg(key, def string) string {
	value, ok := c.args[key]
	if !ok {
		return def
	}
	if s, ok := value.(string); ok {
		return s
	}
	return def
}

func (c Config) Args() map[string]any {
	return copyArgs(c.args)
}

func (c Config) Validate() error {
	if c.pageID == "" {
		return core.ConfigurationError(nil, "bot: page id is required", nil)
	}
	if c.accessToken == "" {
		return core.ConfigurationError(nil, "bot: access token is required", map[string]any{"page_id": c.pageID})
	}
	return nil
}

func copyArgs(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
