// Package executor runs a single check by id on behalf of the heartbeat
// engine.
//
// Each execution:
//
//  1. resolves the id in the registry (unknown ids are error results)
//  2. consults the circuit breaker and skips disabled checks
//  3. runs the body with a timeout and panic recovery
//  4. resets the breaker on success or counts the failure, alerting the
//     operator channel when the breaker trips
//
// Results are sanitised: a failed result never notifies.
package executor
