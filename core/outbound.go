package core

import (
	"encoding/json"
	"strings"
)

type SenderAction string

const (
	SenderActionMarkSeen  SenderAction = "mark_seen"
	SenderActionTypingOn  SenderAction = "typing_on"
	SenderActionTypingOff SenderAction = "typing_off"
)

func (a SenderAction) Valid() bool {
	switch a {
	case SenderActionMarkSeen, SenderActionTypingOn, SenderActionTypingOff:
		return true
	default:
		return false
	}
}

type QuickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title,omitempty"`
	Payload     string `json:"payload,omitempty"`
}

// Message is an outbound message body. Attachment carries templates and
// media as raw JSON so bots can build any platform payload.
type Message struct {
	Text         string          `json:"text,omitempty"`
	Attachment   json.RawMessage `json:"attachment,omitempty"`
	QuickReplies []QuickReply    `json:"quick_replies,omitempty"`
	Metadata     string          `json:"metadata,omitempty"`
}

func (m Message) Empty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Attachment) == 0
}

func TextMessage(text string) Message {
	return Message{Text: text}
}

// OutboundRequest targets the platform send endpoint. Exactly one of Message
// and SenderAction is set.
type OutboundRequest struct {
	Recipient    Actor        `json:"recipient"`
	Message      *Message     `json:"message,omitempty"`
	SenderAction SenderAction `json:"sender_action,omitempty"`
}

func (r OutboundRequest) Validate() error {
	if strings.TrimSpace(r.Recipient.ID) == "" {
		return InvalidRequest("core: recipient id is required", nil)
	}
	hasMessage := r.Message != nil && !r.Message.Empty()
	hasAction := strings.TrimSpace(string(r.SenderAction)) != ""
	switch {
	case !hasMessage && !hasAction:
		return InvalidRequest("core: message or sender_action is required", nil)
	case hasMessage && hasAction:
		return InvalidRequest("core: message and sender_action are mutually exclusive", nil)
	case hasAction && !r.SenderAction.Valid():
		return InvalidRequest("core: invalid sender_action", map[string]any{
			"sender_action": string(r.SenderAction),
		})
	}
	return nil
}

// OutboundEnvelope is the outbound queue wire format: the request plus the
// channel credentials the consumer needs to deliver it.
type OutboundEnvelope struct {
	ChannelID   string          `json:"channel_id"`
	AccessToken string          `json:"access_token"`
	Request     OutboundRequest `json:"request"`
	Hints       map[string]any  `json:"hints,omitempty"`
}

// InboundEnvelope is the inbound queue wire format.
type InboundEnvelope struct {
	ChannelID string `json:"channel_id"`
	Event     Event  `json:"event"`
}

type CallToAction struct {
	Type    string `json:"type"`
	Title   string `json:"title,omitempty"`
	Payload string `json:"payload,omitempty"`
	URL     string `json:"url,omitempty"`
}

// ThreadSettings is the body posted to /me/thread_settings.
type ThreadSettings struct {
	SettingType   string         `json:"setting_type"`
	ThreadState   string         `json:"thread_state,omitempty"`
	Greeting      *GreetingText  `json:"greeting,omitempty"`
	CallToActions []CallToAction `json:"call_to_actions,omitempty"`
}

type GreetingText struct {
	Text string `json:"text"`
}

const (
	ThreadStateNew      = "new_thread"
	ThreadStateExisting = "existing_thread"
)

// GetStartedPayload is the postback payload sent when a user taps Get Started.
const GetStartedPayload = "get_started"

func GreetingSettings(text string) ThreadSettings {
	return ThreadSettings{SettingType: "greeting", Greeting: &GreetingText{Text: text}}
}

func GetStartedSettings() ThreadSettings {
	payload, _ := json.Marshal(map[string]string{"event": GetStartedPayload})
	return ThreadSettings{
		SettingType: "call_to_actions",
		ThreadState: ThreadStateNew,
		CallToActions: []CallToAction{
			{Type: "postback", Payload: string(payload)},
		},
	}
}

func PersistentMenuSettings(items []CallToAction) ThreadSettings {
	return ThreadSettings{
		SettingType:   "call_to_actions",
		ThreadState:   ThreadStateExisting,
		CallToActions: append([]CallToAction(nil), items...),
	}
}

type Profile struct {
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	ProfilePic string  `json:"profile_pic"`
	Locale     string  `json:"locale"`
	Timezone   float64 `json:"timezone"`
	Gender     string  `json:"gender"`
}

// FallbackProfile is returned when the platform answers a profile lookup
// with an error envelope.
func FallbackProfile() Profile {
	return Profile{Locale: "en_US"}
}

var DefaultProfileFields = []string{"first_name", "last_name", "profile_pic", "locale", "timezone", "gender"}

// SendResult is the decoded success body of a send call.
type SendResult struct {
	RecipientID string `json:"recipient_id,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
	Ignored     bool   `json:"-"`
	Attempts    int    `json:"-"`
}
