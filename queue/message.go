package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	jobqueue "github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-messenger/core"
	"github.com/google/uuid"
)

const (
	paramPayload     = "payload"
	paramMessageID   = "message_id"
	paramPublishedAt = "published_at"
	paramExchange    = "exchange"
	paramQueue       = "queue"
)

// Message is one decoded broker delivery handed to a consumer handler.
type Message struct {
	ID          string
	Binding     core.QueueBinding
	Payload     json.RawMessage
	Attempt     int
	PublishedAt time.Time
}

// Decode unmarshals the JSON payload into out.
func (m Message) Decode(out any) error {
	if len(m.Payload) == 0 {
		return core.MalformedPayload("queue: message payload is empty", nil, map[string]any{"message_id": m.ID})
	}
	if err := json.Unmarshal(m.Payload, out); err != nil {
		return core.MalformedPayload("queue: decode message payload", err, map[string]any{"message_id": m.ID})
	}
	return nil
}

// Encode wraps a JSON payload into the go-job execution message carried by
// every backend.
func Encode(binding core.QueueBinding, payload any) (*job.ExecutionMessage, error) {
	binding = binding.Normalized()
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, core.InvalidRequest("queue: encode payload", map[string]any{
			"queue": binding.Queue,
			"cause": err.Error(),
		})
	}
	id := uuid.NewString()
	return &job.ExecutionMessage{
		JobID:      binding.RoutingKey,
		ScriptPath: binding.Key(),
		Parameters: map[string]any{
			paramPayload:     string(raw),
			paramMessageID:   id,
			paramPublishedAt: time.Now().UTC().Format(time.RFC3339Nano),
			paramExchange:    binding.Exchange,
			paramQueue:       binding.Queue,
		},
		IdempotencyKey: id,
	}, nil
}

// FromDelivery decodes a delivery produced by any backend.
func FromDelivery(delivery jobqueue.Delivery) (Message, error) {
	if delivery == nil {
		return Message{}, fmt.Errorf("queue: delivery is nil")
	}
	msg := delivery.Message()
	if msg == nil {
		return Message{}, core.MalformedPayload("queue: delivery has no message", nil, nil)
	}
	payload, ok := msg.Parameters[paramPayload].(string)
	if !ok {
		return Message{}, core.MalformedPayload("queue: message payload parameter missing", nil, map[string]any{
			"job_id": msg.JobID,
		})
	}
	out := Message{
		ID:      stringParam(msg.Parameters, paramMessageID),
		Payload: json.RawMessage(payload),
		Attempt: AttemptOf(delivery),
		Binding: core.QueueBinding{
			Exchange:   stringParam(msg.Parameters, paramExchange),
			Queue:      stringParam(msg.Parameters, paramQueue),
			RoutingKey: msg.JobID,
			Durable:    true,
		},
	}
	if out.ID == "" {
		out.ID = strings.TrimSpace(msg.IdempotencyKey)
	}
	if published := stringParam(msg.Parameters, paramPublishedAt); published != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, published); err == nil {
			out.PublishedAt = parsed
		}
	}
	return out, nil
}

// AttemptReporter is implemented by deliveries that track redeliveries.
type AttemptReporter interface {
	Attempt() int
}

// AttemptOf returns the 1-based delivery attempt, defaulting to 1.
func AttemptOf(delivery jobqueue.Delivery) int {
	if reporter, ok := delivery.(AttemptReporter); ok && reporter.Attempt() > 0 {
		return reporter.Attempt()
	}
	return 1
}

func stringParam(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}

func copyParameters(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func cloneExecutionMessage(msg *job.ExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	cloned := *msg
	cloned.Parameters = copyParameters(msg.Parameters)
	return &cloned
}
