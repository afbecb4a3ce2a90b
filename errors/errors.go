package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// PulseError is implemented by every structured error in pulse.
type PulseError interface {
	error

	Code() ErrorCode
	Category() ErrorCategory

	// Retryable reports whether the next cycle may succeed where this one failed.
	Retryable() bool

	Metadata() map[string]string
	Unwrap() error
}

// Error is the concrete PulseError.
type Error struct {
	code      ErrorCode
	category  ErrorCategory
	message   string
	cause     error
	metadata  map[string]string
	retryable *bool // nil falls back to the category default
	timestamp time.Time
	checkID   string
	cycleID   string
}

var (
	_ PulseError     = (*Error)(nil)
	_ json.Marshaler = (*Error)(nil)
)

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode { return e.code }

// Category returns the error category.
func (e *Error) Category() ErrorCategory { return e.category }

// Message returns the message without the cause chain.
func (e *Error) Message() string { return e.message }

// Retryable returns whether this error is retryable.
func (e *Error) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return e.category.IsRetryable()
}

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// Timestamp returns when the error was created.
func (e *Error) Timestamp() time.Time { return e.timestamp }

// CheckID returns the check the error relates to, if any.
func (e *Error) CheckID() string { return e.checkID }

// CycleID returns the heartbeat cycle the error occurred in, if any.
func (e *Error) CycleID() string { return e.cycleID }

type errorJSON struct {
	Code      ErrorCode         `json:"code"`
	Category  ErrorCategory     `json:"category"`
	Message   string            `json:"message"`
	Cause     string            `json:"cause,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Retryable bool              `json:"retryable"`
	Timestamp string            `json:"timestamp,omitempty"`
	CheckID   string            `json:"check_id,omitempty"`
	CycleID   string            `json:"cycle_id,omitempty"`
}

// MarshalJSON renders the error for alert payloads and metrics records.
func (e *Error) MarshalJSON() ([]byte, error) {
	j := errorJSON{
		Code:      e.code,
		Category:  e.category,
		Message:   e.message,
		Metadata:  e.metadata,
		Retryable: e.Retryable(),
		CheckID:   e.checkID,
		CycleID:   e.cycleID,
	}
	if e.cause != nil {
		j.Cause = e.cause.Error()
	}
	if !e.timestamp.IsZero() {
		j.Timestamp = e.timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(j)
}

// Option configures an Error.
type Option func(*Error)

// WithCategory overrides the default category.
func WithCategory(cat ErrorCategory) Option {
	return func(e *Error) { e.category = cat }
}

// WithRetryable explicitly sets whether the error is retryable.
func WithRetryable(retryable bool) Option {
	return func(e *Error) { e.retryable = &retryable }
}

// WithMetadata adds one metadata pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithCheckID tags the error with a check id.
func WithCheckID(id string) Option {
	return func(e *Error) { e.checkID = id }
}

// WithCycleID tags the error with a cycle id.
func WithCycleID(id string) Option {
	return func(e *Error) { e.cycleID = id }
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) { e.cause = cause }
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// FromCode creates an error with the default description for the code.
func FromCode(code ErrorCode, opts ...Option) *Error {
	return New(code, code.Description(), opts...)
}

// DuplicateCheck reports a second registration of the same check id.
func DuplicateCheck(id string) *Error {
	return New(ErrCodeDuplicateCheck, fmt.Sprintf("check %q already registered", id), WithCheckID(id))
}

// InvalidCheck reports a check missing a required field.
func InvalidCheck(id, reason string) *Error {
	return New(ErrCodeInvalidCheck, fmt.Sprintf("invalid check %q: %s", id, reason), WithCheckID(id))
}

// InvalidConfig reports a configuration value that fails validation.
func InvalidConfig(field, reason string) *Error {
	return New(ErrCodeInvalidConfig, fmt.Sprintf("%s: %s", field, reason), WithMetadata("field", field))
}

// UnknownCheck reports a lookup of an unregistered id.
func UnknownCheck(id string) *Error {
	return New(ErrCodeUnknownCheck, fmt.Sprintf("unknown check %q", id), WithCheckID(id))
}

// BreakerOpen reports a check suppressed by its circuit breaker.
func BreakerOpen(id string, until time.Time) *Error {
	return New(ErrCodeBreakerOpen,
		fmt.Sprintf("check %q disabled until %s", id, until.UTC().Format(time.RFC3339)),
		WithCheckID(id),
		WithMetadata("disabled_until", until.UTC().Format(time.RFC3339)))
}

// MalformedDecision reports decision output that does not match the expected shape.
func MalformedDecision(reason string, opts ...Option) *Error {
	return New(ErrCodeMalformedDecision, "malformed decision: "+reason, opts...)
}

// RateLimited creates a rate limit error.
func RateLimited(message string, opts ...Option) *Error {
	return New(ErrCodeRateLimit, message, opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}
