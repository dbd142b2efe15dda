package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-messenger/core"
)

// EventHandler routes an event to the bot registered for a channel.
type EventHandler interface {
	HandleEvent(ctx context.Context, channelID string, event core.Event) error
}

// SenderFactory returns a sender bound to one channel access token.
type SenderFactory func(channelID, accessToken string) core.Sender

type ChannelConfigurer interface {
	ConfigureChannel(ctx context.Context, channelID string) error
}

type HandleEventCommand struct {
	handler EventHandler
}

func NewHandleEventCommand(handler EventHandler) *HandleEventCommand {
	return &HandleEventCommand{handler: handler}
}

func (c *HandleEventCommand) Execute(ctx context.Context, msg HandleEventMessage) error {
	if c == nil || c.handler == nil {
		return commandDependencyError("command: event handler is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.handler.HandleEvent(ctx, msg.ChannelID, msg.Event)
}

type SendOutboundCommand struct {
	senders SenderFactory
}

func NewSendOutboundCommand(senders SenderFactory) *SendOutboundCommand {
	return &SendOutboundCommand{senders: senders}
}

func (c *SendOutboundCommand) Execute(ctx context.Context, msg SendOutboundMessage) error {
	if c == nil || c.senders == nil {
		return commandDependencyError("command: sender factory is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	sender := c.senders(msg.Envelope.ChannelID, msg.Envelope.AccessToken)
	if sender == nil {
		return commandDependencyError("command: sender factory returned nil")
	}
	out, err := sender.Send(ctx, msg.Envelope.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ConfigureChannelCommand struct {
	configurer ChannelConfigurer
}

func NewConfigureChannelCommand(configurer ChannelConfigurer) *ConfigureChannelCommand {
	return &ConfigureChannelCommand{configurer: configurer}
}

func (c *ConfigureChannelCommand) Execute(ctx context.Context, msg ConfigureChannelMessage) error {
	if c == nil || c.configurer == nil {
		return commandDependencyError("command: channel configurer is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.configurer.ConfigureChannel(ctx, msg.ChannelID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
