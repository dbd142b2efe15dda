// Package sender delivers outbound requests to the messaging platform,
// either directly over HTTP or through the outbound queue.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-messenger/core"
	"github.com/goliatone/go-messenger/transport"
)

const (
	pathMessages       = "/me/messages"
	pathThreadSettings = "/me/thread_settings"
	queryAccessToken   = "access_token"
)

type ClientOption func(*Client)

func WithTransport(adapter core.TransportAdapter) ClientOption {
	return func(c *Client) {
		if adapter != nil {
			c.transport = adapter
		}
	}
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithRateLimitBackoff sets the wait before the single retry of a
// rate-limited send.
func WithRateLimitBackoff(backoff time.Duration) ClientOption {
	return func(c *Client) {
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

func WithSleeper(sleep core.Sleeper) ClientOption {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func WithObserver(observer core.Observer) ClientOption {
	return func(c *Client) {
		c.observer = observer
	}
}

// Client calls the Graph API for one page access token.
type Client struct {
	accessToken string
	baseURL     string
	backoff     time.Duration
	transport   core.TransportAdapter
	sleep       core.Sleeper
	observer    core.Observer
}

func NewClient(accessToken string, opts ...ClientOption) *Client {
	c := &Client{
		accessToken: strings.TrimSpace(accessToken),
		baseURL:     core.DefaultGraphURL,
		backoff:     core.DefaultRateLimitBackoff,
		transport:   transport.NewRESTAdapter(nil, core.DefaultRequestTimeout),
		sleep:       core.SleepContext,
		observer:    core.NewObserver("sender", nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Send posts one message or sender action. A rate-limited response is
// retried exactly once after the backoff.
func (c *Client) Send(ctx context.Context, req core.OutboundRequest) (core.SendResult, error) {
	if err := req.Validate(); err != nil {
		return core.SendResult{}, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return core.SendResult{}, core.InvalidRequest("sender: encode request", map[string]any{"cause": err.Error()})
	}

	result, err := c.postMessage(ctx, body)
	result.Attempts = 1
	if err == nil || !core.IsRateLimited(err) {
		c.report(ctx, req, result, err)
		return result, err
	}

	c.observer.Warn(ctx, "platform rate limited send, retrying once", map[string]any{
		"recipient_id": req.Recipient.ID,
		"backoff_ms":   c.backoff.Milliseconds(),
	})
	if sleepErr := c.sleep(ctx, c.backoff); sleepErr != nil {
		return result, core.Unreachable(sleepErr, "sender: rate limit backoff interrupted", nil)
	}
	result, err = c.postMessage(ctx, body)
	result.Attempts = 2
	if core.IsRateLimited(err) {
		err = core.PlatformError("sender: platform still rate limited after retry", platformCodeRateLimited, map[string]any{
			"recipient_id": req.Recipient.ID,
		})
	}
	c.report(ctx, req, result, err)
	return result, err
}

// SendMessage is shorthand for Send with a message body.
func (c *Client) SendMessage(ctx context.Context, recipientID string, message core.Message) (core.SendResult, error) {
	return c.Send(ctx, core.OutboundRequest{Recipient: core.Actor{ID: recipientID}, Message: &message})
}

// SendAction is shorthand for Send with a sender action.
func (c *Client) SendAction(ctx context.Context, recipientID string, action core.SenderAction) (core.SendResult, error) {
	return c.Send(ctx, core.OutboundRequest{Recipient: core.Actor{ID: recipientID}, SenderAction: action})
}

func (c *Client) ThreadSettings(ctx context.Context, settings core.ThreadSettings) error {
	body, err := json.Marshal(settings)
	if err != nil {
		return core.InvalidRequest("sender: encode thread settings", map[string]any{"cause": err.Error()})
	}
	res, err := c.do(ctx, http.MethodPost, pathThreadSettings, nil, body)
	if err != nil {
		return err
	}
	if _, err := classify(res); err != nil {
		return err
	}
	c.observer.Info(ctx, "thread settings applied", map[string]any{
		"setting_type": settings.SettingType,
		"thread_state": settings.ThreadState,
	})
	return nil
}

// Profile looks up a user profile. An error envelope yields the fallback
// profile and no error.
func (c *Client) Profile(ctx context.Context, userID string, fields ...string) (core.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return core.FallbackProfile(), core.InvalidRequest("sender: user id is required", nil)
	}
	if len(fields) == 0 {
		fields = core.DefaultProfileFields
	}
	res, err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(userID), map[string]string{
		"fields": strings.Join(fields, ","),
	}, nil)
	if err != nil {
		return core.FallbackProfile(), err
	}
	if envelopeErr := decodeEnvelopeError(res.Body); envelopeErr != nil || res.StatusCode >= http.StatusBadRequest {
		fields := map[string]any{"user_id": userID, "status_code": res.StatusCode}
		if envelopeErr != nil {
			fields["platform_code"] = envelopeErr.Code
		}
		c.observer.Warn(ctx, "profile lookup failed, using fallback", fields)
		return core.FallbackProfile(), nil
	}
	profile := core.FallbackProfile()
	if err := json.Unmarshal(res.Body, &profile); err != nil {
		return core.FallbackProfile(), core.PlatformError("sender: decode profile", 0, map[string]any{"cause": err.Error()})
	}
	return profile, nil
}

func (c *Client) postMessage(ctx context.Context, body []byte) (core.SendResult, error) {
	res, err := c.do(ctx, http.MethodPost, pathMessages, nil, body)
	if err != nil {
		return core.SendResult{}, err
	}
	return classify(res)
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body []byte) (core.TransportResponse, error) {
	if c == nil || c.transport == nil {
		return core.TransportResponse{}, core.InternalError(nil, "sender: client is not configured", nil)
	}
	if c.accessToken == "" {
		return core.TransportResponse{}, core.ConfigurationError(nil, "sender: access token is required", nil)
	}
	merged := map[string]string{queryAccessToken: c.accessToken}
	for key, value := range query {
		merged[key] = value
	}
	return c.transport.Do(ctx, core.TransportRequest{
		Method: method,
		URL:    c.baseURL + path,
		Query:  merged,
		Body:   body,
	})
}

// classify maps a platform response to a result: code 2 is ignored, code 4
// is RateLimited, any other embedded code is a PlatformError.
func classify(res core.TransportResponse) (core.SendResult, error) {
	if envelopeErr := decodeEnvelopeError(res.Body); envelopeErr != nil {
		switch envelopeErr.Code {
		case platformCodeAlreadyHandled:
			return core.SendResult{Ignored: true}, nil
		case platformCodeRateLimited:
			return core.SendResult{}, core.RateLimited("sender: platform rate limit reached", envelopeErr.metadata())
		default:
			return core.SendResult{}, core.PlatformError(
				fmt.Sprintf("sender: platform error %d", envelopeErr.Code),
				envelopeErr.Code,
				envelopeErr.metadata(),
			)
		}
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return core.SendResult{}, core.PlatformError(
			fmt.Sprintf("sender: unexpected status %d", res.StatusCode),
			0,
			map[string]any{"status_code": res.StatusCode},
		)
	}
	var result core.SendResult
	if len(strings.TrimSpace(string(res.Body))) > 0 {
		_ = json.Unmarshal(res.Body, &result)
	}
	return result, nil
}

func (c *Client) report(ctx context.Context, req core.OutboundRequest, result core.SendResult, err error) {
	fields := map[string]any{
		"recipient_id": req.Recipient.ID,
		"attempts":     result.Attempts,
	}
	if req.SenderAction != "" {
		fields["sender_action"] = string(req.SenderAction)
	}
	if err != nil {
		c.observer.Error(ctx, "platform send failed", core.ErrorFields(err, fields))
		c.observer.Count(ctx, "send.failed", nil)
		return
	}
	if result.Ignored {
		fields["ignored"] = true
	}
	if result.MessageID != "" {
		fields["message_id"] = result.MessageID
	}
	c.observer.Debug(ctx, "platform send succeeded", fields)
	c.observer.Count(ctx, "send.total", nil)
}

var (
	_ core.Sender         = (*Client)(nil)
	_ core.SettingsClient = (*Client)(nil)
	_ core.ProfileClient  = (*Client)(nil)
)
