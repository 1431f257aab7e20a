package sdkerrors

import (
	"errors"
	"fmt"
)

// SDKError represents an error raised by the SDK core. It implements the
// standard error interface and supports error chaining via errors.Is/As.
type SDKError struct {
	// Code is the public error code in UPPER_SNAKE_CASE format.
	Code string

	// Message is the human-readable error message.
	Message string

	// cause is the underlying error for error chaining.
	cause error
}

// Error implements the error interface.
func (e *SDKError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, enabling errors.Is/errors.As to
// traverse the chain.
func (e *SDKError) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *SDKError with the same Code.
func (e *SDKError) Is(target error) bool {
	var t *SDKError
	if errors.As(target, &t) {
		if t.Code != "" {
			return e.Code == t.Code
		}
		return true
	}
	return false
}

func newSDKError(code, message string, cause error) *SDKError {
	if !IsValidCode(code) {
		panic("invalid sdk error code: " + code)
	}
	return &SDKError{Code: code, Message: message, cause: cause}
}

// MissingConfigurationError is raised at construction when a required
// credential or path is absent.
type MissingConfigurationError struct {
	*SDKError
	// Field names the missing setting, e.g. "AICM_API_KEY".
	Field string
}

// NewMissingConfiguration builds a MissingConfigurationError for the named
// field.
func NewMissingConfiguration(field string) *MissingConfigurationError {
	return &MissingConfigurationError{
		SDKError: newSDKError(CodeMissingConfiguration, fmt.Sprintf("missing required configuration: %s", field), nil),
		Field:    field,
	}
}

// APIRequestError is raised when the ingestion service returns a non-2xx
// response. Non-retryable by design at the call site: retries already
// happened inside the dispatcher.
type APIRequestError struct {
	*SDKError
	// StatusCode is the HTTP status code returned by the server.
	StatusCode int
	// Body is the parsed JSON error body, when the response was JSON.
	Body map[string]any
	// RawBody holds the response body verbatim when it could not be
	// parsed as JSON.
	RawBody []byte
}

// NewAPIRequestError builds an APIRequestError for the given status and
// parsed (or raw) body.
func NewAPIRequestError(statusCode int, body map[string]any, rawBody []byte) *APIRequestError {
	return &APIRequestError{
		SDKError:   newSDKError(CodeAPIRequestError, fmt.Sprintf("api request failed with status %d", statusCode), nil),
		StatusCode: statusCode,
		Body:       body,
		RawBody:    rawBody,
	}
}

// LimitMatch is the minimal view of a triggered limit surfaced in a
// UsageLimitExceededError. The limits package owns the richer TriggeredLimit
// type; this is the portion relevant to error reporting.
type LimitMatch struct {
	EventID       string
	LimitID       string
	ThresholdType string
	ServiceID     string
	Vendor        string
	Message       string
}

// UsageLimitExceededError is raised by the Tracker pre-check when a matching
// limit exists with threshold_type=limit. Carries the matching limits.
type UsageLimitExceededError struct {
	*SDKError
	// Limits holds every matching limit, not just the first.
	Limits []LimitMatch
}

// NewUsageLimitExceeded builds a UsageLimitExceededError from the matching
// limits.
func NewUsageLimitExceeded(limits []LimitMatch) *UsageLimitExceededError {
	return &UsageLimitExceededError{
		SDKError: newSDKError(CodeUsageLimitExceeded, fmt.Sprintf("usage limit exceeded (%d matching limit(s))", len(limits)), nil),
		Limits:   limits,
	}
}

// NoCostsTrackedError indicates the immediate strategy received a 2xx
// response whose results[0].cost_events array was empty. Non-fatal; surfaced
// to the caller for visibility.
type NoCostsTrackedError struct {
	*SDKError
	// ResponseID is the response_id of the record that produced no cost
	// events.
	ResponseID string
}

// NewNoCostsTracked builds a NoCostsTrackedError for the given response_id.
func NewNoCostsTracked(responseID string) *NoCostsTrackedError {
	return &NoCostsTrackedError{
		SDKError:   newSDKError(CodeNoCostsTracked, fmt.Sprintf("no cost events tracked for response_id %s", responseID), nil),
		ResponseID: responseID,
	}
}

// DeliveryTransientError indicates a network/5xx failure that exhausted its
// retry budget. Recorded in delivery stats; never raised synchronously to a
// queue-based track() caller.
type DeliveryTransientError struct {
	*SDKError
	// Attempts is the number of attempts made before giving up.
	Attempts int
}

// NewDeliveryTransient builds a DeliveryTransientError wrapping cause, after
// the given number of attempts.
func NewDeliveryTransient(attempts int, cause error) *DeliveryTransientError {
	return &DeliveryTransientError{
		SDKError: newSDKError(CodeDeliveryTransient, fmt.Sprintf("delivery failed after %d attempt(s)", attempts), cause),
		Attempts: attempts,
	}
}

// DeliveryFatalError indicates a persistent-queue row exceeded max_retries
// and was dropped as terminal.
type DeliveryFatalError struct {
	*SDKError
	// QueueItemID identifies the dropped row.
	QueueItemID int64
	// RetryCount is the number of retries attempted before giving up.
	RetryCount int
}

// NewDeliveryFatal builds a DeliveryFatalError for the given queue item.
func NewDeliveryFatal(queueItemID int64, retryCount int, cause error) *DeliveryFatalError {
	return &DeliveryFatalError{
		SDKError:    newSDKError(CodeDeliveryFatal, fmt.Sprintf("queue item %d exceeded max_retries (%d)", queueItemID, retryCount), cause),
		QueueItemID: queueItemID,
		RetryCount:  retryCount,
	}
}

// AsSDKError checks if err is or wraps an *SDKError, returning it if so.
// The typed errors embed *SDKError, so they are matched through the
// promoted sdkError method rather than by their concrete type.
func AsSDKError(err error) *SDKError {
	var carrier interface{ sdkError() *SDKError }
	if errors.As(err, &carrier) {
		return carrier.sdkError()
	}
	return nil
}

// sdkError returns e; types embedding *SDKError inherit it.
func (e *SDKError) sdkError() *SDKError { return e }

// Code returns the SDK error code carried by err, or "" if err is not an
// SDKError.
func Code(err error) string {
	if e := AsSDKError(err); e != nil {
		return e.Code
	}
	return ""
}
