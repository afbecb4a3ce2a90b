package shutdown

import (
	"context"
	"errors"
	"time"

	"github.com/vinayprograms/pulse/logging"
)

// Common errors.
var (
	// ErrAlreadyShutdown indicates shutdown was already initiated.
	ErrAlreadyShutdown = errors.New("shutdown already initiated")

	// ErrTimeout indicates shutdown did not complete within the timeout.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed indicates one or more components failed to shut down.
	ErrHandlerFailed = errors.New("one or more components failed to shut down")
)

// Phases. Lower phases shut down first; components in one phase shut down
// concurrently.
const (
	// PhaseEngine stops the heartbeat loop and the metrics endpoint.
	PhaseEngine = 10
	// PhaseSinks flushes notifiers, recorders, the bus and telemetry.
	PhaseSinks = 20
	// PhaseStores closes the state store, database and NATS connection.
	PhaseStores = 30
)

// Component is anything with a name and a Shutdown method: the telemetry
// provider, metrics recorders, state stores.
type Component interface {
	Name() string
	Shutdown(ctx context.Context) error
}

// Func adapts a close function into a Component.
type Func struct {
	ComponentName string
	Fn            func(ctx context.Context) error
}

// Name implements Component.
func (f Func) Name() string { return f.ComponentName }

// Shutdown implements Component.
func (f Func) Shutdown(ctx context.Context) error { return f.Fn(ctx) }

// Closer wraps an io.Closer style Close() error.
func Closer(name string, close func() error) Component {
	return Func{ComponentName: name, Fn: func(context.Context) error { return close() }}
}

// Step is the outcome of shutting down one component.
type Step struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result summarises a full shutdown.
type Result struct {
	Duration time.Duration
	Steps    []Step
	Err      error
}

// Failed returns true if any component failed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// FailedComponents returns the names of components that failed.
func (r *Result) FailedComponents() []string {
	var failed []string
	for _, s := range r.Steps {
		if s.Err != nil {
			failed = append(failed, s.Name)
		}
	}
	return failed
}

// Config configures the coordinator.
type Config struct {
	// Timeout bounds ShutdownWithTimeout. Default: 15 seconds.
	Timeout time.Duration

	// ContinueOnError keeps shutting down later phases after a failure.
	// Default: true
	ContinueOnError bool

	// Logger receives one line per component. nil disables logging.
	Logger *logging.Logger
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         15 * time.Second,
		ContinueOnError: true,
	}
}

type registration struct {
	component Component
	phase     int
}
