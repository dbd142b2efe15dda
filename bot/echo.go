package bot

import (
	"context"
	"strings"

	"github.com/goliatone/go-messenger/core"
	"github.com/goliatone/go-messenger/session"
)

// KindEcho is the bot kind name of EchoBot in config files.
const KindEcho = "echo"

const echoCountKey = "echo_count"

// EchoBot replies with the received text and counts messages per
// conversation. The reply prefix comes from the "prefix" arg.
type EchoBot struct {
	prefix string
}

func NewEchoBot(cfg Config) (Bot, error) {
	return &EchoBot{prefix: cfg.StringArg("prefix", "")}, nil
}

func (b *EchoBot) HandleMessage(ctx context.Context, conv *Conversation) error {
	msg := conv.Event.Message
	if msg == nil || msg.IsEcho || strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	count, err := session.GetOr(ctx, conv.Session, echoCountKey, 0)
	if err != nil {
		return err
	}
	if err := conv.Session.Set(ctx, echoCountKey, count+1); err != nil {
		return err
	}
	return conv.Reply(ctx, Text(b.prefix+msg.Text))
}

func (b *EchoBot) PostbackRoutes() []Route {
	return []Route{
		On(Exact("reset"), func(ctx context.Context, conv *Conversation, _ string) error {
			if err := conv.Session.Delete(ctx, echoCountKey); err != nil {
				return err
			}
			return conv.Reply(ctx, Text("Counter reset."))
		}),
		On(MustPattern(`^help(:.*)?$`), func(ctx context.Context, conv *Conversation, eventID string) error {
			return conv.Reply(ctx, ReplyFunc(func(core.Event) core.Message {
				return core.TextMessage("Send any text and I will repeat it. (" + eventID + ")")
			}))
		}),
	}
}

var (
	_ MessageHandler = (*EchoBot)(nil)
	_ Router         = (*EchoBot)(nil)
)
