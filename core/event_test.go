package core

import (
	"testing"
)

func TestParseNotification(t *testing.T) {
	body := []byte(`{"object":"page","entry":[{"id":"p1","time":10,"messaging":[
		{"sender":{"id":"u1"},"recipient":{"id":"p1"},"timestamp":9,"message":{"mid":"m1","seq":3,"text":"hi","quick_reply":{"payload":"YES"}}},
		{"sender":{"id":"u1"},"recipient":{"id":"p1"},"postback":{"payload":"HELP"}},
		{"sender":{"id":"u1"},"recipient":{"id":"p1"},"read":{"watermark":5}}
	]}]}`)

	notification, err := ParseNotification(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if notification.Object != ObjectPage {
		t.Fatalf("expected page object, got %q", notification.Object)
	}
	if len(notification.Entry) != 1 {
		t.Fatalf("expected one entry, got %d", len(notification.Entry))
	}
	events := notification.Entry[0].Messaging
	if len(events) != 3 {
		t.Fatalf("expected three events, got %d", len(events))
	}
	if events[0].Kind() != EventMessage || events[0].Message.QuickReply.Payload != "YES" {
		t.Fatalf("expected quick reply message, got %+v", events[0])
	}
	if events[1].Kind() != EventPostback {
		t.Fatalf("expected postback, got %s", events[1].Kind())
	}
	if events[2].Kind() != EventRead {
		t.Fatalf("expected read, got %s", events[2].Kind())
	}
}

func TestParseNotification_Malformed(t *testing.T) {
	for _, body := range []string{"", "{", `{"entry":"nope"}`} {
		_, err := ParseNotification([]byte(body))
		if !IsMalformedPayload(err) {
			t.Fatalf("body %q: expected malformed payload, got %v", body, err)
		}
	}
}

func TestEventKind_Priority(t *testing.T) {
	cases := []struct {
		event Event
		want  EventKind
	}{
		{Event{}, EventUnknown},
		{Event{Optin: &Optin{}, Message: &InboundMessage{}}, EventOptin},
		{Event{Message: &InboundMessage{}, Delivery: &Delivery{}}, EventMessage},
		{Event{Delivery: &Delivery{}, Postback: &Postback{}}, EventDelivery},
		{Event{AccountLinking: &AccountLinking{Status: "linked"}}, EventAccountLinking},
	}
	for _, tc := range cases {
		if got := tc.event.Kind(); got != tc.want {
			t.Errorf("expected %s, got %s", tc.want, got)
		}
	}
}

func TestConversationKeyNamespace(t *testing.T) {
	key := Event{Sender: Actor{ID: " u1 "}, Recipient: Actor{ID: "p1"}}.ConversationKey()
	if key != (ConversationKey{Recipient: "p1", Sender: "u1"}) {
		t.Fatalf("unexpected conversation key %+v", key)
	}
	if ns := key.Namespace(); ns != "p1.u1" {
		t.Fatalf("expected p1.u1, got %q", ns)
	}

	a := ConversationKey{Recipient: "a.b", Sender: "c"}.Namespace()
	b := ConversationKey{Recipient: "a", Sender: "b.c"}.Namespace()
	if a == b {
		t.Fatalf("expected distinct namespaces, both were %q", a)
	}
	if a != "a%2Eb.c" {
		t.Fatalf("expected escaped namespace, got %q", a)
	}
}
