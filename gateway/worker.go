package gateway

import (
	"context"
	"strings"

	"github.com/goliatone/go-messenger/command"
	"github.com/goliatone/go-messenger/core"
	"github.com/goliatone/go-messenger/queue"
)

// InboundWorker consumes the inbound binding. Handle returns the handler
// error so the bridge nacks and the message is redelivered.
type InboundWorker struct {
	cmd      *command.HandleEventCommand
	observer core.Observer
}

func NewInboundWorker(handler command.EventHandler, observer core.Observer) *InboundWorker {
	return &InboundWorker{cmd: command.NewHandleEventCommand(handler), observer: observer}
}

func (w *InboundWorker) Handle(ctx context.Context, msg queue.Message) error {
	var envelope core.InboundEnvelope
	if err := msg.Decode(&envelope); err != nil {
		return err
	}
	channelID := strings.TrimSpace(envelope.ChannelID)
	if channelID == "" {
		channelID = strings.TrimSpace(envelope.Event.Recipient.ID)
	}
	err := w.cmd.Execute(ctx, command.HandleEventMessage{ChannelID: channelID, Event: envelope.Event})
	if err != nil {
		w.observer.Warn(ctx, "inbound event failed", core.ErrorFields(err, map[string]any{
			"channel_id": channelID,
			"message_id": msg.ID,
			"attempt":    msg.Attempt,
		}))
	}
	return err
}
