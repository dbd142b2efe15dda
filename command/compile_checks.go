package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[HandleEventMessage]      = (*HandleEventCommand)(nil)
	_ gocmd.Commander[SendOutboundMessage]     = (*SendOutboundCommand)(nil)
	_ gocmd.Commander[ConfigureChannelMessage] = (*ConfigureChannelCommand)(nil)
)
