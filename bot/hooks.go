package bot

import "context"

// Bot is a value implementing any subset of the hook interfaces below.
// Hooks it does not implement are no-ops, except postback and start which
// fall back to the runtime defaults.
type Bot any

// Factory builds a bot for one channel. It may be called once per event.
type Factory func(cfg Config) (Bot, error)

type AuthenticationHandler interface {
	HandleAuthentication(ctx context.Context, conv *Conversation) error
}

type MessageHandler interface {
	HandleMessage(ctx context.Context, conv *Conversation) error
}

type DeliveryHandler interface {
	HandleDelivery(ctx context.Context, conv *Conversation) error
}

// PostbackHandler replaces the default postback routing.
type PostbackHandler interface {
	HandlePostback(ctx context.Context, conv *Conversation) error
}

type ReadHandler interface {
	HandleRead(ctx context.Context, conv *Conversation) error
}

type AccountLinkingHandler interface {
	HandleAccountLinking(ctx context.Context, conv *Conversation) error
}

// StartHandler replaces the default start message.
type StartHandler interface {
	HandleStart(ctx context.Context, conv *Conversation) error
}
