// Package logging provides the leveled console logger used by every pulse
// component. Lines look like:
//
//	INFO  2026-03-01T10:00:00.000Z [engine] cycle_complete cycle=7f3c.. status=success
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel converts a config string into a Level. Unknown values map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes one line per entry. Derived loggers share the writer and lock.
type Logger struct {
	mu        *sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	cycleID   string
}

// New creates a Logger writing INFO and above to stdout.
func New() *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	l := New()
	l.output = io.Discard
	l.minLevel = LevelError
	return l
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

func (l *Logger) clone() *Logger {
	return &Logger{
		mu:        l.mu,
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		cycleID:   l.cycleID,
	}
}

// WithComponent returns a new logger tagged with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	c := l.clone()
	c.component = component
	return c
}

// WithCycleID returns a new logger that adds cycle=<id> to every line.
func (l *Logger) WithCycleID(cycleID string) *Logger {
	c := l.clone()
	c.cycleID = cycleID
	return c
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields renders fields as key=value pairs in key order.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if l.cycleID != "" {
		fieldStr = " cycle=" + l.cycleID
	}
	if len(fields) > 0 && fields[0] != nil {
		fieldStr += formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Heartbeat event helpers ---

// CycleStart logs the start of a heartbeat cycle.
func (l *Logger) CycleStart(quietHours bool) {
	l.Info("cycle_start", map[string]interface{}{
		"quiet_hours": quietHours,
	})
}

// CycleComplete logs a cycle summary.
func (l *Logger) CycleComplete(status string, executed, notified int, duration time.Duration) {
	l.Info("cycle_complete", map[string]interface{}{
		"status":   status,
		"executed": executed,
		"notified": notified,
		"duration": duration.String(),
	})
}

// Selection logs which checks were chosen and why.
func (l *Logger) Selection(selected []string, reasoning string) {
	l.Info("selection", map[string]interface{}{
		"checks":    strings.Join(selected, ","),
		"reasoning": fmt.Sprintf("%q", reasoning),
	})
}

// DecisionFallback logs that the decision policy failed and the fallback was used.
func (l *Logger) DecisionFallback(err error) {
	l.Warn("decision_fallback", map[string]interface{}{
		"error": err.Error(),
	})
}

// CheckResult logs the outcome of one check.
func (l *Logger) CheckResult(checkID string, duration time.Duration, notify bool, errMsg string) {
	fields := map[string]interface{}{
		"check":    checkID,
		"duration": duration.String(),
	}
	if errMsg != "" {
		fields["error"] = errMsg
		l.Warn("check_failed", fields)
		return
	}
	fields["notify"] = notify
	l.Debug("check_result", fields)
}

// BreakerTripped logs a circuit breaker opening.
func (l *Logger) BreakerTripped(checkID string, failures int64, until time.Time) {
	l.Error("breaker_tripped", map[string]interface{}{
		"check":          checkID,
		"failures":       failures,
		"disabled_until": until.UTC().Format(time.RFC3339),
	})
}
