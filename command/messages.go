package command

import (
	"strings"

	"github.com/goliatone/go-messenger/core"
)

const (
	TypeHandleEvent      = "messenger.command.event.handle"
	TypeSendOutbound     = "messenger.command.outbound.send"
	TypeConfigureChannel = "messenger.command.channel.configure"
)

// HandleEventMessage carries one inbound messaging event for a channel. Only
// the channel is required, matching synchronous dispatch.
type HandleEventMessage struct {
	ChannelID string
	Event     core.Event
}

func (HandleEventMessage) Type() string { return TypeHandleEvent }

func (m HandleEventMessage) Validate() error {
	if strings.TrimSpace(m.ChannelID) == "" {
		return commandValidationError("channel_id", "channel id is required")
	}
	return nil
}

type SendOutboundMessage struct {
	Envelope core.OutboundEnvelope
}

func (SendOutboundMessage) Type() string { return TypeSendOutbound }

func (m SendOutboundMessage) Validate() error {
	if strings.TrimSpace(m.Envelope.AccessToken) == "" {
		return commandValidationError("access_token", "access token is required")
	}
	return commandWrapValidation(m.Envelope.Request.Validate(), "command: invalid outbound request")
}

type ConfigureChannelMessage struct {
	ChannelID string
}

func (ConfigureChannelMessage) Type() string { return TypeConfigureChannel }

func (m ConfigureChannelMessage) Validate() error {
	if strings.TrimSpace(m.ChannelID) == "" {
		return commandValidationError("channel_id", "channel id is required")
	}
	return nil
}
