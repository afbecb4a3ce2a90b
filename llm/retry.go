package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	perrors "github.com/vinayprograms/pulse/errors"
)

// Retry configuration defaults. The decider's own deadline usually cuts
// retries short.
const (
	defaultMaxRetries  = 2
	defaultInitBackoff = time.Second
	defaultMaxBackoff  = 8 * time.Second
	backoffFactor      = 2.0
)

func (r RetryConfig) withDefaults() RetryConfig {
	if r.MaxRetries <= 0 {
		r.MaxRetries = defaultMaxRetries
	}
	if r.InitBackoff <= 0 {
		r.InitBackoff = defaultInitBackoff
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = defaultMaxBackoff
	}
	return r
}

// withRetry calls fn until it succeeds, fails permanently, or retries run out.
func withRetry[T any](ctx context.Context, cfg RetryConfig, provider string, fn func() (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	backoff := cfg.InitBackoff

	var zero T
	for attempt := 0; ; attempt++ {
		resp, err := fn()
		if err == nil {
			return resp, nil
		}

		if isBillingError(err) {
			return zero, perrors.WrapWithCode(err, perrors.ErrCodeDecisionFailed,
				provider+" billing/payment error", perrors.WithRetryable(false))
		}
		if ctx.Err() != nil {
			return zero, perrors.Wrap(ctx.Err(), provider+" request interrupted")
		}
		if !isRetryableError(err) {
			return zero, perrors.WrapWithCode(err, perrors.ErrCodeDecisionFailed, provider+" request failed")
		}
		if attempt == cfg.MaxRetries {
			code := perrors.ErrCodeDecisionFailed
			if isRateLimitError(err) {
				code = perrors.ErrCodeRateLimit
			}
			return zero, perrors.WrapWithCode(err, code,
				fmt.Sprintf("%s request failed after %d retries", provider, cfg.MaxRetries))
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, perrors.Wrap(ctx.Err(), provider+" request interrupted")
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
}

// isRateLimitError checks if the error is a rate limit error.
func isRateLimitError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "overloaded")
}

// isServerError checks if the error is a transient server error (5xx).
func isServerError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout")
}

func isRetryableError(err error) bool {
	return isRateLimitError(err) || isServerError(err)
}

// isBillingError checks if the error is a billing/payment/quota error (fatal, no retry).
func isBillingError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "billing") ||
		strings.Contains(errStr, "payment") ||
		strings.Contains(errStr, "credit balance") ||
		strings.Contains(errStr, "quota exceeded") ||
		strings.Contains(errStr, "insufficient_quota") ||
		strings.Contains(errStr, "402")
}
