package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorMalformedPayload  = "MALFORMED_PAYLOAD"
	ErrorUnknownChannel    = "UNKNOWN_CHANNEL"
	ErrorInvalidRequest    = "INVALID_REQUEST"
	ErrorPlatform          = "PLATFORM_ERROR"
	ErrorRateLimited       = "RATE_LIMITED"
	ErrorBrokerUnavailable = "BROKER_UNAVAILABLE"
	ErrorUnreachable       = "PLATFORM_UNREACHABLE"
	ErrorConfiguration     = "CONFIGURATION_ERROR"
	ErrorInternal          = "INTERNAL_ERROR"
	ErrorInvalidSignature  = "INVALID_SIGNATURE"
)

func newError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func wrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return newError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// MalformedPayload reports a webhook body that is not a notification envelope.
func MalformedPayload(message string, source error, metadata map[string]any) error {
	return wrapError(source, goerrors.CategoryBadInput, message, http.StatusBadRequest, ErrorMalformedPayload, metadata)
}

func UnknownChannel(channelID string) error {
	return newError(
		"core: no handler registered for channel",
		goerrors.CategoryNotFound,
		http.StatusNotFound,
		ErrorUnknownChannel,
		map[string]any{"channel_id": channelID},
	)
}

func InvalidRequest(message string, metadata map[string]any) error {
	return newError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ErrorInvalidRequest, metadata)
}

// PlatformError reports an error envelope returned by the messaging platform.
func PlatformError(message string, platformCode int, metadata map[string]any) error {
	meta := cloneFields(metadata)
	meta["platform_code"] = platformCode
	return newError(message, goerrors.CategoryExternal, http.StatusBadGateway, ErrorPlatform, meta)
}

func RateLimited(message string, metadata map[string]any) error {
	return newError(message, goerrors.CategoryRateLimit, http.StatusTooManyRequests, ErrorRateLimited, metadata)
}

func BrokerUnavailable(source error, message string, metadata map[string]any) error {
	return wrapError(source, goerrors.CategoryExternal, message, http.StatusServiceUnavailable, ErrorBrokerUnavailable, metadata)
}

func ConfigurationError(source error, message string, metadata map[string]any) error {
	return wrapError(source, goerrors.CategoryValidation, message, http.StatusInternalServerError, ErrorConfiguration, metadata)
}

// InvalidSignature rejects a webhook body whose app-secret signature does
// not match.
func InvalidSignature(message string, metadata map[string]any) error {
	return newError(message, goerrors.CategoryAuth, http.StatusForbidden, ErrorInvalidSignature, metadata)
}

func InternalError(source error, message string, metadata map[string]any) error {
	return wrapError(source, goerrors.CategoryInternal, message, http.StatusInternalServerError, ErrorInternal, metadata)
}

// Unreachable wraps transport failures and timeouts talking to the platform.
// The queue layer retries them.
func Unreachable(source error, message string, metadata map[string]any) error {
	return wrapError(source, goerrors.CategoryExternal, message, http.StatusBadGateway, ErrorUnreachable, metadata)
}

func HasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(richErr.TextCode), textCode)
}

func IsMalformedPayload(err error) bool  { return HasTextCode(err, ErrorMalformedPayload) }
func IsUnknownChannel(err error) bool    { return HasTextCode(err, ErrorUnknownChannel) }
func IsInvalidRequest(err error) bool    { return HasTextCode(err, ErrorInvalidRequest) }
func IsPlatformError(err error) bool     { return HasTextCode(err, ErrorPlatform) }
func IsRateLimited(err error) bool       { return HasTextCode(err, ErrorRateLimited) }
func IsBrokerUnavailable(err error) bool { return HasTextCode(err, ErrorBrokerUnavailable) }
func IsUnreachable(err error) bool       { return HasTextCode(err, ErrorUnreachable) }
func IsInvalidSignature(err error) bool  { return HasTextCode(err, ErrorInvalidSignature) }

// MapError normalizes any error into a go-errors envelope.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorInvalidRequest
	case goerrors.CategoryNotFound:
		return ErrorUnknownChannel
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryExternal:
		return ErrorPlatform
	default:
		return ErrorInternal
	}
}

func httpStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
