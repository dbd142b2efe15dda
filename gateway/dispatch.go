package gateway

import (
	"context"
	"fmt"

	"github.com/goliatone/go-messenger/bot"
	"github.com/goliatone/go-messenger/core"
)

// Dispatcher hands a resolved event to its channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, channel *bot.Channel, event core.Event) error
}

// SyncDispatcher runs the channel handler in the request goroutine.
type SyncDispatcher struct{}

func (SyncDispatcher) Dispatch(ctx context.Context, channel *bot.Channel, event core.Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = core.InternalError(fmt.Errorf("%v", recovered), "gateway: handler panicked", map[string]any{
				"channel_id": channel.ID(),
			})
		}
	}()
	return channel.HandleEvent(ctx, event)
}

// QueueDispatcher publishes events to the inbound binding for the
// inbound worker to consume.
type QueueDispatcher struct {
	Publisher core.Publisher
	Binding   core.QueueBinding
}

func NewQueueDispatcher(publisher core.Publisher, binding core.QueueBinding) *QueueDispatcher {
	return &QueueDispatcher{Publisher: publisher, Binding: binding.Normalized()}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, channel *bot.Channel, event core.Event) error {
	if d == nil || d.Publisher == nil {
		return core.BrokerUnavailable(nil, "gateway: inbound publisher is not configured", nil)
	}
	envelope := core.InboundEnvelope{ChannelID: channel.ID(), Event: event}
	if err := d.Publisher.Publish(ctx, d.Binding, envelope); err != nil {
		if core.IsBrokerUnavailable(err) {
			return err
		}
		return core.BrokerUnavailable(err, "gateway: publish inbound event", map[string]any{
			"channel_id": channel.ID(),
		})
	}
	return nil
}

var (
	_ Dispatcher = SyncDispatcher{}
	_ Dispatcher = (*QueueDispatcher)(nil)
)
