package bot

import (
	"context"

	"github.com/goliatone/go-messenger/core"
	"github.com/goliatone/go-messenger/session"
)

// Content renders an outbound message for a reply.
type Content interface {
	Render(event core.Event) core.Message
}

// Text is a plain text reply.
type Text string

func (t Text) Render(core.Event) core.Message { return core.TextMessage(string(t)) }

// ReplyFunc computes the reply from the event being answered.
type ReplyFunc func(event core.Event) core.Message

func (f ReplyFunc) Render(event core.Event) core.Message {
	if f == nil {
		return core.Message{}
	}
	return f(event)
}

type messageContent core.Message

func (m messageContent) Render(core.Event) core.Message { return core.Message(m) }

// Message wraps a prebuilt message as reply content.
func Message(msg core.Message) Content { return messageContent(msg) }

// Conversation is the hook argument: the event, its session and the
// channel's outbound clients.
type Conversation struct {
	Event   core.Event
	Session *session.Session
	Config  Config

	runtime *Runtime
}

func (c *Conversation) Kind() core.EventKind { return c.Event.Kind() }

func (c *Conversation) Send(ctx context.Context, msg core.Message) (core.SendResult, error) {
	return c.runtime.send(ctx, core.OutboundRequest{Recipient: c.Event.Sender, Message: &msg})
}

func (c *Conversation) SendAction(ctx context.Context, action core.SenderAction) error {
	_, err := c.runtime.send(ctx, core.OutboundRequest{Recipient: c.Event.Sender, SenderAction: action})
	return err
}

// Reply marks the conversation seen, shows typing, sends the message and
// clears typing. The four calls are independent; a failure stops the
// sequence and is returned.
func (c *Conversation) Reply(ctx context.Context, content Content) error {
	if content == nil {
		return core.InvalidRequest("bot: reply content is required", nil)
	}
	msg := content.Render(c.Event)
	if msg.Empty() {
		return core.InvalidRequest("bot: reply rendered an empty message", map[string]any{
			"recipient_id": c.Event.Sender.ID,
		})
	}
	if err := c.SendAction(ctx, core.SenderActionMarkSeen); err != nil {
		return err
	}
	if err := c.SendAction(ctx, core.SenderActionTypingOn); err != nil {
		return err
	}
	if _, err := c.Send(ctx, msg); err != nil {
		return err
	}
	return c.SendAction(ctx, core.SenderActionTypingOff)
}

// ReplyText is Reply with a text message.
func (c *Conversation) ReplyText(ctx context.Context, text string) error {
	return c.Reply(ctx, Text(text))
}

// Profile looks up the event sender, falling back to the default profile
// when no profile client is configured.
func (c *Conversation) Profile(ctx context.Context, fields ...string) (core.Profile, error) {
	if c.runtime.profiles == nil {
		return core.FallbackProfile(), nil
	}
	return c.runtime.profiles.Profile(ctx, c.Event.Sender.ID, fields...)
}
