package sender

import (
	"encoding/json"
	"strings"
)

const (
	platformCodeAlreadyHandled = 2
	platformCodeRateLimited    = 4
)

// platformError is the error object the Graph API embeds in responses,
// sometimes with HTTP 200.
type platformError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode,omitempty"`
	FBTraceID    string `json:"fbtrace_id,omitempty"`
}

type errorEnvelope struct {
	Error *platformError `json:"error"`
}

// decodeEnvelopeError returns the embedded error, or nil when the body has
// none or is not JSON.
func decodeEnvelopeError(body []byte) *platformError {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return nil
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	return envelope.Error
}

func (e *platformError) metadata() map[string]any {
	meta := map[string]any{
		"platform_message": e.Message,
		"platform_type":    e.Type,
	}
	if e.ErrorSubcode != 0 {
		meta["platform_subcode"] = e.ErrorSubcode
	}
	if e.FBTraceID != "" {
		meta["fbtrace_id"] = e.FBTraceID
	}
	return meta
}
