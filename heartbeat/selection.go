package heartbeat

import (
	"context"
	"fmt"

	"github.com/vinayprograms/pulse/checks"
	"github.com/vinayprograms/pulse/decision"
	perrors "github.com/vinayprograms/pulse/errors"
	"github.com/vinayprograms/pulse/logging"
	"github.com/vinayprograms/pulse/metrics"
	"github.com/vinayprograms/pulse/situation"
)

type selection struct {
	ids       []string
	reasoning string
	source    string
}

// FallbackReasoning formats the reasoning recorded when the decider fails.
func FallbackReasoning(err error) string {
	return fmt.Sprintf("fallback: high-priority checks (decision failed: %v)", err)
}

// selectChecks picks the ids to run this cycle. Quiet hours bypass the
// decider entirely; a decider error or panic falls back to High checks.
func (e *Engine) selectChecks(ctx context.Context, snap situation.Snapshot, logger *logging.Logger) selection {
	if snap.IsQuietHours {
		return selection{
			ids:       checks.IDs(e.registry.ListByPriority(checks.Critical)),
			reasoning: ReasonQuietHours,
			source:    metrics.SelectionQuietHours,
		}
	}

	if e.decider == nil {
		return e.fallback(fmt.Errorf("no decider configured"))
	}

	picked, err := e.decide(ctx, snap)
	if err != nil {
		logger.DecisionFallback(err)
		return e.fallback(err)
	}

	return selection{
		ids:       e.known(picked.ChecksToRun, logger),
		reasoning: picked.Reasoning,
		source:    metrics.SelectionDecider,
	}
}

// decide calls the decider, converting a panic into a decision error.
func (e *Engine) decide(ctx context.Context, snap situation.Snapshot) (d decision.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = perrors.RecoverPanic(r)
		}
	}()
	return e.decider.Decide(ctx, snap, e.registry.ListAll())
}

func (e *Engine) fallback(err error) selection {
	return selection{
		ids:       checks.IDs(e.registry.ListByPriority(checks.High)),
		reasoning: FallbackReasoning(err),
		source:    metrics.SelectionFallback,
	}
}

// known drops ids that are not registered, and repeats.
func (e *Engine) known(ids []string, logger *logging.Logger) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := e.registry.Get(id); !ok {
			logger.Warn("unknown_check_selected", map[string]interface{}{"check": id})
			continue
		}
		out = append(out, id)
	}
	return out
}
