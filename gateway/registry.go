package gateway

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-messenger/bot"
	"github.com/goliatone/go-messenger/core"
)

// Registration describes one channel: its bot factory, config and the
// outbound collaborators its runtimes share.
type Registration struct {
	Factory bot.Factory
	Config  bot.Config
	Deps    bot.Deps
}

// Registry maps channel ids to bot channels. It is written at startup and
// read concurrently afterwards.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*bot.Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: map[string]*bot.Channel{}}
}

func (r *Registry) Register(reg Registration) error {
	channel, err := bot.NewChannel(reg.Factory, reg.Config, reg.Deps)
	if err != nil {
		return err
	}
	return r.RegisterChannel(channel)
}

func (r *Registry) RegisterChannel(channel *bot.Channel) error {
	if r == nil {
		return core.InternalError(nil, "gateway: registry is nil", nil)
	}
	if channel == nil {
		return core.InvalidRequest("gateway: channel is nil", nil)
	}
	id := strings.TrimSpace(channel.ID())
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[id]; exists {
		return goerrors.New("gateway: channel already registered", goerrors.CategoryConflict).
			WithCode(http.StatusConflict).
			WithTextCode(core.ErrorConfiguration).
			WithMetadata(map[string]any{"channel_id": id})
	}
	r.channels[id] = channel
	return nil
}

// Unregister removes a channel. It reports whether the channel existed.
func (r *Registry) Unregister(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	channelID = strings.TrimSpace(channelID)
	if _, ok := r.channels[channelID]; !ok {
		return false
	}
	delete(r.channels, channelID)
	return true
}

// Resolve returns the channel for id, or UnknownChannel.
func (r *Registry) Resolve(channelID string) (*bot.Channel, error) {
	channelID = strings.TrimSpace(channelID)
	r.mu.RLock()
	channel, ok := r.channels[channelID]
	r.mu.RUnlock()
	if !ok {
		return nil, core.UnknownChannel(channelID)
	}
	return channel, nil
}

func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) HandleEvent(ctx context.Context, channelID string, event core.Event) error {
	channel, err := r.Resolve(channelID)
	if err != nil {
		return err
	}
	return channel.HandleEvent(ctx, event)
}

func (r *Registry) ConfigureChannel(ctx context.Context, channelID string) error {
	channel, err := r.Resolve(channelID)
	if err != nil {
		return err
	}
	return channel.Configure(ctx)
}
