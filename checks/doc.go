// Package checks defines the Check contract, check results and the
// registry the heartbeat engine selects from.
//
// A check is an idempotent rule evaluated over application state. It
// reports whether the user should hear about something (Notify plus
// Message) or that it failed (Error). Failures never notify.
//
// # Usage
//
//	reg := checks.NewRegistry()
//	err := reg.Register(checks.NewFunc("upcoming_event", checks.High,
//	    "Warn about calendar events starting within the next hour",
//	    func(ctx context.Context, data any) (checks.Result, error) {
//	        db := data.(*sql.DB)
//	        // ...
//	        return checks.Alert("Standup in 10 minutes", "open_calendar"), nil
//	    }))
//
// Registering the same id twice is a configuration error:
//
//	errors.Is(err, errors.ErrCodeDuplicateCheck) // using pulse/errors
package checks
