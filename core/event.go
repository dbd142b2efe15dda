package core

import (
	"encoding/json"
	"strings"
)

// ObjectPage is the only notification object type the gateway dispatches.
const ObjectPage = "page"

type EventKind string

const (
	EventOptin          EventKind = "optin"
	EventMessage        EventKind = "message"
	EventDelivery       EventKind = "delivery"
	EventPostback       EventKind = "postback"
	EventRead           EventKind = "read"
	EventAccountLinking EventKind = "account_linking"
	EventUnknown        EventKind = "unknown"
)

type Actor struct {
	ID string `json:"id"`
}

type Attachment struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type QuickReplyPayload struct {
	Payload string `json:"payload"`
}

type InboundMessage struct {
	MID         string             `json:"mid,omitempty"`
	Seq         int64              `json:"seq,omitempty"`
	Text        string             `json:"text,omitempty"`
	IsEcho      bool               `json:"is_echo,omitempty"`
	Attachments []Attachment       `json:"attachments,omitempty"`
	QuickReply  *QuickReplyPayload `json:"quick_reply,omitempty"`
}

type Optin struct {
	Ref string `json:"ref"`
}

type Delivery struct {
	MIDs      []string `json:"mids,omitempty"`
	Watermark int64    `json:"watermark"`
	Seq       int64    `json:"seq,omitempty"`
}

type Postback struct {
	Payload string `json:"payload"`
	Title   string `json:"title,omitempty"`
}

type Read struct {
	Watermark int64 `json:"watermark"`
	Seq       int64 `json:"seq,omitempty"`
}

type AccountLinking struct {
	Status            string `json:"status"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
}

// Event is one entry of a notification's messaging list. At most one payload
// variant is expected to be set; Kind resolves ties by fixed priority.
type Event struct {
	Sender         Actor           `json:"sender"`
	Recipient      Actor           `json:"recipient"`
	Timestamp      int64           `json:"timestamp,omitempty"`
	Optin          *Optin          `json:"optin,omitempty"`
	Message        *InboundMessage `json:"message,omitempty"`
	Delivery       *Delivery       `json:"delivery,omitempty"`
	Postback       *Postback       `json:"postback,omitempty"`
	Read           *Read           `json:"read,omitempty"`
	AccountLinking *AccountLinking `json:"account_linking,omitempty"`
}

// Kind classifies the event by first match over optin, message, delivery,
// postback, read and account_linking.
func (e Event) Kind() EventKind {
	switch {
	case e.Optin != nil:
		return EventOptin
	case e.Message != nil:
		return EventMessage
	case e.Delivery != nil:
		return EventDelivery
	case e.Postback != nil:
		return EventPostback
	case e.Read != nil:
		return EventRead
	case e.AccountLinking != nil:
		return EventAccountLinking
	default:
		return EventUnknown
	}
}

// ConversationKey returns the (recipient, sender) pair that scopes sessions.
func (e Event) ConversationKey() ConversationKey {
	return ConversationKey{
		Recipient: strings.TrimSpace(e.Recipient.ID),
		Sender:    strings.TrimSpace(e.Sender.ID),
	}
}

type ConversationKey struct {
	Recipient string
	Sender    string
}

// Namespace renders the key as "<recipient>.<sender>". Dots and percent
// signs inside ids are escaped so distinct pairs never share a namespace.
func (k ConversationKey) Namespace() string {
	return namespaceEscaper.Replace(k.Recipient) + "." + namespaceEscaper.Replace(k.Sender)
}

var namespaceEscaper = strings.NewReplacer("%", "%25", ".", "%2E")

type Entry struct {
	ID        string  `json:"id"`
	Time      int64   `json:"time"`
	Messaging []Event `json:"messaging"`
}

// Notification is the webhook POST envelope.
type Notification struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// ParseNotification decodes a webhook body.
func ParseNotification(body []byte) (Notification, error) {
	var notification Notification
	if len(body) == 0 {
		return notification, MalformedPayload("core: notification body is empty", nil, nil)
	}
	if err := json.Unmarshal(body, &notification); err != nil {
		return Notification{}, MalformedPayload("core: decode notification", err, map[string]any{
			"body_bytes": len(body),
		})
	}
	return notification, nil
}
