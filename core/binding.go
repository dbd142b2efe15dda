package core

import (
	"fmt"
	"strings"
)

const (
	DefaultExchange        = "MessengerBot"
	DefaultInboundQueue    = "messages"
	DefaultOutboundQueue   = "replies"
	DefaultDeadLetterQueue = "dead_letters"
	QueueTransportMemory   = "memory"
	QueueTransportSQL      = "sql"
)

// QueueBinding names one durable exchange/queue pair.
type QueueBinding struct {
	Transport  string `koanf:"transport" mapstructure:"transport" json:"transport"`
	Exchange   string `koanf:"exchange" mapstructure:"exchange" json:"exchange"`
	Queue      string `koanf:"queue" mapstructure:"queue" json:"queue"`
	RoutingKey string `koanf:"routing_key" mapstructure:"routing_key" json:"routing_key"`
	Durable    bool   `koanf:"durable" mapstructure:"durable" json:"durable"`
}

func (b QueueBinding) Normalized() QueueBinding {
	out := QueueBinding{
		Transport:  strings.TrimSpace(strings.ToLower(b.Transport)),
		Exchange:   strings.TrimSpace(b.Exchange),
		Queue:      strings.TrimSpace(b.Queue),
		RoutingKey: strings.TrimSpace(b.RoutingKey),
		Durable:    b.Durable,
	}
	if out.Exchange == "" {
		out.Exchange = DefaultExchange
	}
	if out.RoutingKey == "" {
		out.RoutingKey = out.Queue
	}
	return out
}

func (b QueueBinding) Validate() error {
	if strings.TrimSpace(b.Queue) == "" {
		return fmt.Errorf("core: queue binding name is required")
	}
	return nil
}

// Key identifies the binding inside a broker.
func (b QueueBinding) Key() string {
	n := b.Normalized()
	return n.Exchange + "/" + n.Queue
}

func (b QueueBinding) IsZero() bool {
	return strings.TrimSpace(b.Queue) == ""
}
