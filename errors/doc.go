// Package errors provides the structured error taxonomy used across pulse.
//
// # Categories
//
// Every error belongs to one category that decides how far it may travel:
//
//   - config: duplicate or invalid checks, bad configuration. Fatal at startup.
//   - check: a check body failed. Becomes a result plus a breaker increment.
//   - decision: the decision backend failed. The engine falls back.
//   - collaborator: notification, metrics, store and reader I/O. Logged.
//   - cycle: the cycle itself could not complete. Reported in the summary.
//   - internal: bugs.
//
// # Usage
//
//	err := errors.DuplicateCheck("upcoming_event")
//	if errors.IsFatal(err) {
//	    log.Fatal(err)
//	}
//
//	wrapped := errors.Wrap(err, "registering builtin checks")
//	errors.Is(wrapped, errors.ErrCodeDuplicateCheck) // true
//
// Errors marshal to JSON so they can ride along in alert payloads.
package errors
