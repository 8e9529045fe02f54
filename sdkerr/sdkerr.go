// Package sdkerr defines the closed error taxonomy shared by every provider
// crate, plus the secret-redaction discipline applied to anything that might
// echo credentials back to a caller or a log line.
package sdkerr

import "fmt"

// Kind is the closed set of error kinds a caller can branch on without
// string matching.
type Kind string

const (
	KindAPI                   Kind = "api_error"
	KindHTTP                  Kind = "http_error"
	KindTimeout               Kind = "timeout_error"
	KindSerialization         Kind = "serialization_error"
	KindDeserialization       Kind = "deserialization_error"
	KindStreamInvariant       Kind = "stream_invariant_violation"
	KindConfig                Kind = "config_error"
	KindInvalidRequest        Kind = "invalid_request"
	KindRetryExhausted        Kind = "retry_exhausted"
	KindCanceled              Kind = "canceled"
)

// SdkError is the single error type surfaced at every call boundary. Message
// is assumed to already be redacted by the time it reaches here — callers
// building one from raw transport data should route it through
// RedactHeaders/RedactHeaderMap first.
type SdkError struct {
	Kind Kind

	Message string

	// ApiError fields.
	Status       int
	ProviderCode string

	// RetryExhausted fields.
	Attempts int
	Last     error

	// Wrapped is the underlying cause, if any (transport errors, JSON
	// decode errors, etc). Exposed via Unwrap so errors.Is/errors.As work.
	Wrapped error
}

func (e *SdkError) Error() string {
	switch e.Kind {
	case KindAPI:
		if e.ProviderCode != "" {
			return fmt.Sprintf("api error (status %d, code %s): %s", e.Status, e.ProviderCode, e.Message)
		}
		return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
	case KindRetryExhausted:
		lastMsg := ""
		if e.Last != nil {
			lastMsg = e.Last.Error()
		}
		return fmt.Sprintf("retry exhausted after %d attempts: %s", e.Attempts, lastMsg)
	default:
		return e.Message
	}
}

func (e *SdkError) Unwrap() error {
	return e.Wrapped
}

// Retriable classifies whether the error represents a transient condition
// the retry engine is allowed to retry. ApiError is retriable for status
// 408, 409, 425, 429, and 5xx except 501 and 505.
func (e *SdkError) Retriable() bool {
	switch e.Kind {
	case KindAPI:
		return retriableStatus(e.Status)
	case KindHTTP, KindTimeout:
		return true
	default:
		return false
	}
}

func retriableStatus(status int) bool {
	switch status {
	case 408, 409, 425, 429:
		return true
	}
	if status >= 500 && status < 600 {
		return status != 501 && status != 505
	}
	return false
}

func New(kind Kind, message string) *SdkError {
	return &SdkError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *SdkError {
	return &SdkError{Kind: kind, Message: message, Wrapped: cause}
}

func NewAPIError(status int, message, providerCode string) *SdkError {
	return &SdkError{Kind: KindAPI, Status: status, Message: message, ProviderCode: providerCode}
}

func NewRetryExhausted(attempts int, last error) *SdkError {
	return &SdkError{Kind: KindRetryExhausted, Attempts: attempts, Last: last, Message: "retry attempts exhausted"}
}

func NewStreamInvariantViolation(reason string) *SdkError {
	return &SdkError{Kind: KindStreamInvariant, Message: reason}
}

func NewInvalidRequest(reason string) *SdkError {
	return &SdkError{Kind: KindInvalidRequest, Message: reason}
}
