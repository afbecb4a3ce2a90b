// Package ratelimit provides token-bucket limiting for calls to metered
// collaborators.
//
// The decider takes a token before every backend call and treats a refusal
// as a decision failure, so the engine falls back instead of waiting:
//
//	limiter := ratelimit.NewMemoryLimiter()
//	limiter.SetCapacity("decision", 10, time.Hour)
//
//	if !limiter.TryAcquire("decision") {
//	    return errors.RateLimited("decision budget exhausted")
//	}
//
// Tokens refill continuously at capacity/window. Resources without a
// configured capacity are unlimited.
package ratelimit
