package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/vinayprograms/pulse/logging"
)

// Coordinator shuts pulse down in phases: engine, then sinks, then stores.
type Coordinator struct {
	config Config
	logger *logging.Logger

	mu         sync.Mutex
	components []registration
	once       sync.Once
	done       chan struct{}
	result     *Result
}

// NewCoordinator creates a new shutdown coordinator.
func NewCoordinator(config Config) *Coordinator {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Coordinator{
		config: config,
		logger: logging.OrNop(config.Logger).WithComponent("shutdown"),
		done:   make(chan struct{}),
	}
}

// Add registers a component in a phase. Nil components are ignored so
// hosts can pass optional collaborators unconditionally.
func (c *Coordinator) Add(component Component, phase int) {
	if component == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components = append(c.components, registration{component: component, phase: phase})
}

// AddFunc registers a close function in a phase.
func (c *Coordinator) AddFunc(name string, phase int, fn func(ctx context.Context) error) {
	c.Add(Func{ComponentName: name, Fn: fn}, phase)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM. The
// daemon loop runs under it; Shutdown runs after the loop returns.
func (c *Coordinator) SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Shutdown shuts every registered component down. Only the first call does
// any work; later calls return ErrAlreadyShutdown.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	first := false
	c.once.Do(func() {
		first = true
		c.result = c.run(ctx)
		close(c.done)
	})
	if !first {
		return ErrAlreadyShutdown
	}
	return c.result.Err
}

// ShutdownWithTimeout calls Shutdown bounded by the configured timeout.
func (c *Coordinator) ShutdownWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// Done is closed once Shutdown has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Result returns the shutdown result, or nil before Done is closed.
func (c *Coordinator) Result() *Result {
	select {
	case <-c.done:
		return c.result
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) *Result {
	start := time.Now()

	c.mu.Lock()
	regs := make([]registration, len(c.components))
	copy(regs, c.components)
	c.mu.Unlock()

	sort.SliceStable(regs, func(i, j int) bool { return regs[i].phase < regs[j].phase })

	result := &Result{}
	var errs []error
	for _, group := range groupByPhase(regs) {
		if ctx.Err() != nil {
			errs = append(errs, ErrTimeout)
			c.logger.Warn("shutdown_timeout", map[string]interface{}{"phase": group[0].phase})
			break
		}

		steps := c.runPhase(ctx, group)
		result.Steps = append(result.Steps, steps...)

		failed := false
		for _, s := range steps {
			if s.Err != nil {
				failed = true
				errs = append(errs, fmt.Errorf("%s: %w", s.Name, s.Err))
			}
		}
		if failed && !c.config.ContinueOnError {
			break
		}
	}

	if len(errs) > 0 {
		if !errors.Is(errors.Join(errs...), ErrTimeout) {
			errs = append([]error{ErrHandlerFailed}, errs...)
		}
		result.Err = errors.Join(errs...)
	}
	result.Duration = time.Since(start)
	return result
}

// runPhase shuts one phase's components down concurrently.
func (c *Coordinator) runPhase(ctx context.Context, group []registration) []Step {
	steps := make([]Step, len(group))
	var wg sync.WaitGroup
	for i, reg := range group {
		wg.Add(1)
		go func(i int, reg registration) {
			defer wg.Done()
			start := time.Now()
			err := reg.component.Shutdown(ctx)
			steps[i] = Step{
				Name:     reg.component.Name(),
				Phase:    reg.phase,
				Duration: time.Since(start),
				Err:      err,
			}

			fields := map[string]interface{}{
				"component":   steps[i].Name,
				"phase":       reg.phase,
				"duration_ms": steps[i].Duration.Milliseconds(),
			}
			if err != nil {
				fields["error"] = err.Error()
				c.logger.Warn("shutdown_failed", fields)
				return
			}
			c.logger.Debug("shutdown_complete", fields)
		}(i, reg)
	}
	wg.Wait()
	return steps
}

// groupByPhase splits phase-sorted registrations into per-phase groups.
func groupByPhase(regs []registration) [][]registration {
	var groups [][]registration
	for i, r := range regs {
		if i == 0 || r.phase != regs[i-1].phase {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], r)
	}
	return groups
}
