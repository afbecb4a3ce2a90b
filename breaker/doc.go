// Package breaker implements the per-check circuit breaker.
//
// Two keys per check live in a state.StateStore:
//
//	breaker.<id>.failures        counter, sliding 5 minute expiry
//	breaker.<id>.disabled_until  RFC3339 deadline, 1 hour expiry
//
// Three failures inside the window write disabled_until and clear the
// counter. A success deletes the counter. The disabled key expires on its
// own, so a suppressed check comes back without operator action.
package breaker
