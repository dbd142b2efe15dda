package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-messenger/core"
)

type stubEventHandler struct {
	channelID string
	event     core.Event
	err       error
	calls     int
}

func (s *stubEventHandler) HandleEvent(_ context.Context, channelID string, event core.Event) error {
	s.calls++
	s.channelID = channelID
	s.event = event
	return s.err
}

type stubSender struct {
	requests []core.OutboundRequest
	result   core.SendResult
	err      error
}

func (s *stubSender) Send(_ context.Context, req core.OutboundRequest) (core.SendResult, error) {
	s.requests = append(s.requests, req)
	return s.result, s.err
}

type configurerFunc func(ctx context.Context, channelID string) error

func (f configurerFunc) ConfigureChannel(ctx context.Context, channelID string) error {
	return f(ctx, channelID)
}

func TestHandleEventCommand_DelegatesToHandler(t *testing.T) {
	handler := &stubEventHandler{}
	cmd := NewHandleEventCommand(handler)

	event := core.Event{
		Sender:    core.Actor{ID: "u1"},
		Recipient: core.Actor{ID: "p1"},
		Message:   &core.InboundMessage{Text: "hi"},
	}
	if err := cmd.Execute(context.Background(), HandleEventMessage{ChannelID: "p1", Event: event}); err != nil {
		t.Fatalf("execute handle event: %v", err)
	}
	if handler.calls != 1 || handler.channelID != "p1" {
		t.Fatalf("unexpected handler invocation: calls=%d channel=%q", handler.calls, handler.channelID)
	}
	if handler.event.Message == nil || handler.event.Message.Text != "hi" {
		t.Fatalf("expected event to be forwarded, got %#v", handler.event)
	}
}

func TestHandleEventCommand_PropagatesHandlerError(t *testing.T) {
	handler := &stubEventHandler{err: core.UnknownChannel("p9")}
	cmd := NewHandleEventCommand(handler)

	err := cmd.Execute(context.Background(), HandleEventMessage{
		ChannelID: "p9",
		Event:     core.Event{Sender: core.Actor{ID: "u1"}},
	})
	if !core.IsUnknownChannel(err) {
		t.Fatalf("expected unknown channel error, got %v", err)
	}
}

func TestHandleEventCommand_ForwardsEventWithoutSender(t *testing.T) {
	handler := &stubEventHandler{}
	cmd := NewHandleEventCommand(handler)

	event := core.Event{Recipient: core.Actor{ID: "p1"}, Read: &core.Read{Watermark: 10}}
	if err := cmd.Execute(context.Background(), HandleEventMessage{ChannelID: "p1", Event: event}); err != nil {
		t.Fatalf("execute handle event: %v", err)
	}
	if handler.calls != 1 {
		t.Fatalf("expected sender-less event to reach the handler, got %d calls", handler.calls)
	}
}

func TestSendOutboundCommand_StoresResult(t *testing.T) {
	sender := &stubSender{result: core.SendResult{RecipientID: "u1", MessageID: "mid.1"}}
	var gotChannel, gotToken string
	cmd := NewSendOutboundCommand(func(channelID, accessToken string) core.Sender {
		gotChannel, gotToken = channelID, accessToken
		return sender
	})

	collector := gocmd.NewResult[core.SendResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	message := core.TextMessage("hello")
	err := cmd.Execute(ctx, SendOutboundMessage{Envelope: core.OutboundEnvelope{
		ChannelID:   "p1",
		AccessToken: "tok",
		Request:     core.OutboundRequest{Recipient: core.Actor{ID: "u1"}, Message: &message},
	}})
	if err != nil {
		t.Fatalf("execute send: %v", err)
	}
	if gotChannel != "p1" || gotToken != "tok" {
		t.Fatalf("unexpected factory args: %q %q", gotChannel, gotToken)
	}
	if len(sender.requests) != 1 {
		t.Fatalf("expected one send, got %d", len(sender.requests))
	}
	result, ok := collector.Load()
	if !ok || result.MessageID != "mid.1" {
		t.Fatalf("expected stored result, got %#v ok=%v", result, ok)
	}
}

func TestSendOutboundCommand_RejectsInvalidRequestWithoutSending(t *testing.T) {
	sender := &stubSender{}
	cmd := NewSendOutboundCommand(func(string, string) core.Sender { return sender })

	err := cmd.Execute(context.Background(), SendOutboundMessage{Envelope: core.OutboundEnvelope{
		AccessToken: "tok",
		Request:     core.OutboundRequest{Recipient: core.Actor{ID: "u1"}},
	}})
	if !core.IsInvalidRequest(err) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if len(sender.requests) != 0 {
		t.Fatalf("expected no send on invalid request")
	}
}

func TestConfigureChannelCommand_Delegates(t *testing.T) {
	var configured string
	cmd := NewConfigureChannelCommand(configurerFunc(func(_ context.Context, channelID string) error {
		configured = channelID
		return nil
	}))
	if err := cmd.Execute(context.Background(), ConfigureChannelMessage{ChannelID: "p1"}); err != nil {
		t.Fatalf("execute configure: %v", err)
	}
	if configured != "p1" {
		t.Fatalf("expected p1 to be configured, got %q", configured)
	}

	failing := NewConfigureChannelCommand(configurerFunc(func(context.Context, string) error {
		return errors.New("boom")
	}))
	if err := failing.Execute(context.Background(), ConfigureChannelMessage{ChannelID: "p1"}); err == nil {
		t.Fatalf("expected configure error to propagate")
	}
}

func TestCommands_NilDependenciesReturnRichError(t *testing.T) {
	var cmd *HandleEventCommand
	err := cmd.Execute(context.Background(), HandleEventMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}

func TestMessageValidation(t *testing.T) {
	message := core.TextMessage("hi")
	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{name: "event valid", msg: HandleEventMessage{ChannelID: "p1", Event: core.Event{Sender: core.Actor{ID: "u1"}}}},
		{name: "event missing channel", msg: HandleEventMessage{Event: core.Event{Sender: core.Actor{ID: "u1"}}}, wantErr: true},
		{name: "event without sender", msg: HandleEventMessage{ChannelID: "p1"}},
		{
			name: "outbound valid",
			msg: SendOutboundMessage{Envelope: core.OutboundEnvelope{
				AccessToken: "tok",
				Request:     core.OutboundRequest{Recipient: core.Actor{ID: "u1"}, Message: &message},
			}},
		},
		{
			name: "outbound missing token",
			msg: SendOutboundMessage{Envelope: core.OutboundEnvelope{
				Request: core.OutboundRequest{Recipient: core.Actor{ID: "u1"}, Message: &message},
			}},
			wantErr: true,
		},
		{
			name: "outbound bad action",
			msg: SendOutboundMessage{Envelope: core.OutboundEnvelope{
				AccessToken: "tok",
				Request:     core.OutboundRequest{Recipient: core.Actor{ID: "u1"}, SenderAction: "wave"},
			}},
			wantErr: true,
		},
		{name: "configure missing channel", msg: ConfigureChannelMessage{}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
