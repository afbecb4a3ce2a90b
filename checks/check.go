package checks

import (
	"context"
	"fmt"
	"strings"
)

// Priority ranks how urgent a check is.
type Priority int

const (
	// Critical checks always run, including during quiet hours.
	Critical Priority = iota + 1
	// High checks run when relevant and form the decision fallback.
	High
	// Medium checks run only when strongly relevant.
	Medium
	// Low checks run only when strongly relevant and nothing is more urgent.
	Low
)

var priorityNames = map[Priority]string{
	Critical: "critical",
	High:     "high",
	Medium:   "medium",
	Low:      "low",
}

// String returns the lowercase priority name.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Valid reports whether p is one of the four defined priorities.
func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

// ParsePriority converts a name such as "high" into a Priority.
func ParsePriority(s string) (Priority, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for p, name := range priorityNames {
		if name == want {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// Check is one registered unit of periodic evaluation.
//
// Run receives the host's data handle (for example a *sql.DB) untouched.
// Implementations must be idempotent; they may be skipped or retried on
// any cycle.
type Check interface {
	ID() string
	Priority() Priority
	Description() string
	Run(ctx context.Context, data any) (Result, error)
}

// RunFunc is the body of a function-backed check.
type RunFunc func(ctx context.Context, data any) (Result, error)

// Func builds a Check from metadata and a function.
type Func struct {
	CheckID string
	Level   Priority
	Summary string
	Fn      RunFunc
}

// NewFunc returns a function-backed check.
func NewFunc(id string, priority Priority, description string, fn RunFunc) *Func {
	return &Func{CheckID: id, Level: priority, Summary: description, Fn: fn}
}

func (f *Func) ID() string          { return f.CheckID }
func (f *Func) Priority() Priority  { return f.Level }
func (f *Func) Description() string { return f.Summary }

// Run calls Fn. A nil Fn is reported as an error result.
func (f *Func) Run(ctx context.Context, data any) (Result, error) {
	if f.Fn == nil {
		return Result{}, fmt.Errorf("check %q has no body", f.CheckID)
	}
	return f.Fn(ctx, data)
}

// Result is the outcome of running one check.
type Result struct {
	// Notify asks the engine to forward Message to the user.
	Notify bool `json:"notify"`

	// Message is the user-facing text. Empty when Notify is false.
	Message string `json:"message,omitempty"`

	// Action optionally names a suggested follow-up.
	Action string `json:"action,omitempty"`

	// Payload carries opaque data for downstream consumers.
	Payload map[string]any `json:"payload,omitempty"`

	// Error is set when the check failed.
	Error string `json:"error,omitempty"`
}

// OK is a quiet, successful result.
func OK() Result {
	return Result{}
}

// Alert is a successful result that should reach the user.
func Alert(message, action string) Result {
	return Result{Notify: true, Message: message, Action: action}
}

// Failed is an error result. It never notifies.
func Failed(err error) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{Error: msg}
}

// Failed reports whether the result carries an error.
func (r Result) Failed() bool {
	return r.Error != ""
}

// Sanitize enforces that failed results never notify and that quiet
// results carry no message.
func (r Result) Sanitize() Result {
	if r.Error != "" {
		r.Notify = false
	}
	if !r.Notify {
		r.Message = ""
	}
	return r
}
