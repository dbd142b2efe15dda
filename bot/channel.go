package bot

import (
	"context"

	"github.com/goliatone/go-messenger/core"
	"github.com/goliatone/go-messenger/session"
)

// Channel binds a factory to one page. Every event gets a fresh bot from
// the factory; deps are shared.
type Channel struct {
	factory Factory
	config  Config
	deps    Deps
}

func NewChannel(factory Factory, cfg Config, deps Deps) (*Channel, error) {
	if factory == nil {
		return nil, core.ConfigurationError(nil, "bot: factory is required", map[string]any{"page_id": cfg.PageID()})
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewStore(nil)
	}
	return &Channel{factory: factory, config: cfg, deps: deps}, nil
}

func (c *Channel) ID() string { return c.config.PageID() }

func (c *Channel) Config() Config { return c.config }

func (c *Channel) Runtime() (*Runtime, error) {
	instance, err := c.factory(c.config)
	if err != nil {
		return nil, core.ConfigurationError(err, "bot: factory failed", map[string]any{"page_id": c.config.PageID()})
	}
	return NewRuntime(c.config, instance, c.deps), nil
}

func (c *Channel) HandleEvent(ctx context.Context, event core.Event) error {
	rt, err := c.Runtime()
	if err != nil {
		return err
	}
	return rt.HandleEvent(ctx, event)
}

func (c *Channel) Configure(ctx context.Context) error {
	rt, err := c.Runtime()
	if err != nil {
		return err
	}
	return rt.Configure(ctx)
}
