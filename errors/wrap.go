package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap adds context to err while keeping the chain intact.
// A nil err yields nil. A wrapped *Error keeps its code and category;
// context errors map to timeout/canceled codes; anything else becomes INTERNAL.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var pe *Error
	if errors.As(err, &pe) {
		wrapped := &Error{
			code:      pe.code,
			category:  pe.category,
			message:   message,
			cause:     err,
			metadata:  pe.Metadata(),
			retryable: pe.retryable,
			timestamp: pe.timestamp,
			checkID:   pe.checkID,
			cycleID:   pe.cycleID,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}
	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps err under a specific code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	return New(code, message, append(opts, WithCause(err))...)
}

// AsPulseError extracts a PulseError from an error chain, or nil.
func AsPulseError(err error) PulseError {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}

// Is reports whether the first *Error in the chain has the given code.
func Is(err error, code ErrorCode) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.code == code
	}
	return false
}

// IsCategory reports whether the first *Error in the chain has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.category == category
	}
	return false
}

// IsRetryable checks if the error is retryable. Plain errors are not.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// IsFatal reports whether err must stop the host before any cycle runs.
func IsFatal(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.category.IsFatal()
	}
	return false
}

// Code extracts the error code, or "" for plain errors.
func Code(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.code
	}
	return ""
}

// Category extracts the error category, or "" for plain errors.
func Category(err error) ErrorCategory {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.category
	}
	return ""
}

// Join combines multiple errors into a single error.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// RecoverPanic converts a recovered panic value into an Error.
func RecoverPanic(recovered interface{}, opts ...Option) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprintf("%v", v)
	}
	opts = append([]Option{WithMetadata("panic_type", fmt.Sprintf("%T", recovered))}, opts...)
	return New(ErrCodePanic, message, opts...)
}
