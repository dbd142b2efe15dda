package core

import (
	"regexp"
	"strings"
)

const RedactedValue = "[REDACTED]"

// Graph API calls carry the page token in the query string, so transport
// errors that echo the URL leak it unless string values are scrubbed too.
var queryTokenPattern = regexp.MustCompile(`(?i)((?:access_token|appsecret_proof|hub\.verify_token)=)[^&\s"']+`)

// RedactSensitiveMap returns a copy of metadata with credential-like keys
// masked and token query parameters scrubbed from string values.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(metadata)
}

// RedactString masks token query parameters inside s.
func RedactString(s string) string {
	if !strings.Contains(strings.ToLower(s), "=") {
		return s
	}
	return queryTokenPattern.ReplaceAllString(s, "${1}"+RedactedValue)
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case string:
		return RedactString(typed)
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	sensitiveTokens := []string{
		"password",
		"secret",
		"token",
		"authorization",
		"api_key",
		"apikey",
		"access_key",
		"credential",
		"signature",
	}
	for _, token := range sensitiveTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "page_id",
		"channel_id",
		"sender_id",
		"recipient_id",
		"mid",
		"idempotency_key",
		"trace_id",
		"request_id":
		return true
	default:
		return false
	}
}
