package sender

import (
	"context"
	"strings"

	"github.com/goliatone/go-messenger/command"
	"github.com/goliatone/go-messenger/core"
	"github.com/goliatone/go-messenger/queue"
)

// QueueSender publishes requests to the outbound queue instead of calling
// the platform. Results carry no message id.
type QueueSender struct {
	publisher   core.Publisher
	binding     core.QueueBinding
	channelID   string
	accessToken string
}

func NewQueueSender(publisher core.Publisher, binding core.QueueBinding, channelID, accessToken string) *QueueSender {
	return &QueueSender{
		publisher:   publisher,
		binding:     binding.Normalized(),
		channelID:   strings.TrimSpace(channelID),
		accessToken: strings.TrimSpace(accessToken),
	}
}

func (s *QueueSender) Send(ctx context.Context, req core.OutboundRequest) (core.SendResult, error) {
	if err := req.Validate(); err != nil {
		return core.SendResult{}, err
	}
	if s == nil || s.publisher == nil {
		return core.SendResult{}, core.BrokerUnavailable(nil, "sender: outbound publisher is not configured", nil)
	}
	envelope := core.OutboundEnvelope{
		ChannelID:   s.channelID,
		AccessToken: s.accessToken,
		Request:     req,
	}
	if err := s.publisher.Publish(ctx, s.binding, envelope); err != nil {
		return core.SendResult{}, err
	}
	return core.SendResult{RecipientID: req.Recipient.ID}, nil
}

// OutboundConsumer delivers queued outbound envelopes. Its Handle method is
// a queue.Handler: it returns nil only after the platform accepted the
// request, so the bridge acks on HTTP success only.
type OutboundConsumer struct {
	cmd      *command.SendOutboundCommand
	observer core.Observer
}

func NewOutboundConsumer(senders command.SenderFactory, observer core.Observer) *OutboundConsumer {
	return &OutboundConsumer{
		cmd:      command.NewSendOutboundCommand(senders),
		observer: observer,
	}
}

// ClientFactory builds a direct Client per access token with shared options.
func ClientFactory(opts ...ClientOption) command.SenderFactory {
	return func(_ string, accessToken string) core.Sender {
		return NewClient(accessToken, opts...)
	}
}

func (c *OutboundConsumer) Handle(ctx context.Context, msg queue.Message) error {
	var envelope core.OutboundEnvelope
	if err := msg.Decode(&envelope); err != nil {
		return err
	}
	if err := c.cmd.Execute(ctx, command.SendOutboundMessage{Envelope: envelope}); err != nil {
		c.observer.Warn(ctx, "outbound delivery failed", core.ErrorFields(err, map[string]any{
			"channel_id":   envelope.ChannelID,
			"recipient_id": envelope.Request.Recipient.ID,
			"message_id":   msg.ID,
			"attempt":      msg.Attempt,
		}))
		return err
	}
	return nil
}

var _ core.Sender = (*QueueSender)(nil)
