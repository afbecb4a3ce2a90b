package errors

// ErrorCategory groups errors by which part of a heartbeat cycle produced
// them. The category decides how far an error is allowed to travel.
type ErrorCategory string

const (
	// CategoryConfig covers registration and configuration mistakes.
	// These are fatal at startup; no cycle should run.
	CategoryConfig ErrorCategory = "config"

	// CategoryCheck covers failures inside a single check. They are
	// converted into a result and a breaker increment.
	CategoryCheck ErrorCategory = "check"

	// CategoryDecision covers decision backend failures. The engine
	// recovers with the deterministic fallback selection.
	CategoryDecision ErrorCategory = "decision"

	// CategoryCollaborator covers notification, metrics, store and reader
	// I/O. Logged and swallowed.
	CategoryCollaborator ErrorCategory = "collaborator"

	// CategoryCycle covers failures that abort a whole cycle.
	CategoryCycle ErrorCategory = "cycle"

	// CategoryInternal indicates bugs or corrupted state.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on the
// next attempt (usually the next cycle).
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryDecision, CategoryCollaborator, CategoryCycle:
		return true
	default:
		return false
	}
}

// IsFatal returns true if the host must stop before running any cycle.
func (c ErrorCategory) IsFatal() bool {
	return c == CategoryConfig
}

// ErrorCode identifies a specific failure.
type ErrorCode string

const (
	// Configuration
	ErrCodeDuplicateCheck ErrorCode = "DUPLICATE_CHECK"
	ErrCodeInvalidCheck   ErrorCode = "INVALID_CHECK"
	ErrCodeInvalidConfig  ErrorCode = "INVALID_CONFIG"

	// Check execution
	ErrCodeUnknownCheck ErrorCode = "UNKNOWN_CHECK"
	ErrCodeCheckFailed  ErrorCode = "CHECK_FAILED"
	ErrCodeCheckPanic   ErrorCode = "CHECK_PANIC"
	ErrCodeCheckTimeout ErrorCode = "CHECK_TIMEOUT"
	ErrCodeBreakerOpen  ErrorCode = "BREAKER_OPEN"

	// Decision
	ErrCodeDecisionFailed    ErrorCode = "DECISION_FAILED"
	ErrCodeDecisionTimeout   ErrorCode = "DECISION_TIMEOUT"
	ErrCodeMalformedDecision ErrorCode = "MALFORMED_DECISION"
	ErrCodeRateLimit         ErrorCode = "RATE_LIMITED"

	// Collaborator I/O
	ErrCodeNotifyFailed  ErrorCode = "NOTIFY_FAILED"
	ErrCodeMetricsFailed ErrorCode = "METRICS_FAILED"
	ErrCodeStoreFailed   ErrorCode = "STORE_FAILED"
	ErrCodeReaderFailed  ErrorCode = "READER_FAILED"
	ErrCodeTimeout       ErrorCode = "TIMEOUT"

	// Cycle
	ErrCodeCycleFailed ErrorCode = "CYCLE_FAILED"
	ErrCodeCanceled    ErrorCode = "CANCELED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL"
	ErrCodePanic    ErrorCode = "PANIC"
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeDuplicateCheck, ErrCodeInvalidCheck, ErrCodeInvalidConfig:
		return CategoryConfig
	case ErrCodeUnknownCheck, ErrCodeCheckFailed, ErrCodeCheckPanic,
		ErrCodeCheckTimeout, ErrCodeBreakerOpen:
		return CategoryCheck
	case ErrCodeDecisionFailed, ErrCodeDecisionTimeout, ErrCodeMalformedDecision,
		ErrCodeRateLimit:
		return CategoryDecision
	case ErrCodeNotifyFailed, ErrCodeMetricsFailed, ErrCodeStoreFailed,
		ErrCodeReaderFailed, ErrCodeTimeout:
		return CategoryCollaborator
	case ErrCodeCycleFailed, ErrCodeCanceled:
		return CategoryCycle
	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeDuplicateCheck:    "check id already registered",
	ErrCodeInvalidCheck:      "check is missing required fields",
	ErrCodeInvalidConfig:     "invalid configuration",
	ErrCodeUnknownCheck:      "check not registered",
	ErrCodeCheckFailed:       "check failed",
	ErrCodeCheckPanic:        "check panicked",
	ErrCodeCheckTimeout:      "check timed out",
	ErrCodeBreakerOpen:       "circuit breaker open",
	ErrCodeDecisionFailed:    "decision backend failed",
	ErrCodeDecisionTimeout:   "decision backend timed out",
	ErrCodeMalformedDecision: "decision output malformed",
	ErrCodeRateLimit:         "rate limit exceeded",
	ErrCodeNotifyFailed:      "notification delivery failed",
	ErrCodeMetricsFailed:     "metrics write failed",
	ErrCodeStoreFailed:       "state store operation failed",
	ErrCodeReaderFailed:      "context reader failed",
	ErrCodeTimeout:           "operation timed out",
	ErrCodeCycleFailed:       "heartbeat cycle failed",
	ErrCodeCanceled:          "operation canceled",
	ErrCodeInternal:          "internal error",
	ErrCodePanic:             "recovered from panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
