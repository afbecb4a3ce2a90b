package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vinayprograms/pulse/config"
	"github.com/vinayprograms/pulse/heartbeat"
)

func runCmd() *cobra.Command {
	var (
		mode     string
		interval time.Duration
		schedule string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one heartbeat cycle, or cycles until interrupted with --mode daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Heartbeat.Mode = mode
			}
			if interval > 0 {
				cfg.Heartbeat.IntervalMinutes = int(interval / time.Minute)
			}
			if schedule != "" {
				cfg.Heartbeat.Schedule = schedule
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runHeartbeat(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), asJSON)
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Run mode: one-shot or daemon")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "Time between daemon cycles, whole minutes (e.g. 15m)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron expression for daemon wake-ups")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the one-shot summary as JSON")
	return cmd
}

// runHeartbeat wires the app, runs the engine under a signal context and
// shuts everything down. Logs go to errOut; the one-shot summary to out.
func runHeartbeat(parent context.Context, cfg *config.Config, out, errOut io.Writer, asJSON bool) error {
	if parent == nil {
		parent = context.Background()
	}
	mode, err := heartbeat.ParseMode(cfg.Heartbeat.Mode)
	if err != nil {
		return err
	}

	logger := newLogger(cfg, errOut)
	a, err := newApp(parent, cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := a.coord.SignalContext(parent)
	defer stop()

	sum, runErr := a.engine.Run(ctx, mode, cfg.Interval())
	closeErr := a.close()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return errors.Join(runErr, closeErr)
	}
	if mode == heartbeat.ModeOneShot {
		if err := printSummary(out, sum, asJSON); err != nil {
			return err
		}
		if sum.Status == heartbeat.StatusError {
			return errors.Join(fmt.Errorf("cycle %s failed: %s", sum.CycleID, sum.Error), closeErr)
		}
	}
	return closeErr
}

var statusColors = map[string]*color.Color{
	heartbeat.StatusSuccess:        color.New(color.FgGreen),
	heartbeat.StatusPartialSuccess: color.New(color.FgYellow),
	heartbeat.StatusError:          color.New(color.FgRed),
	heartbeat.StatusDisabled:       color.New(color.FgHiBlack),
	heartbeat.StatusSkipped:        color.New(color.FgCyan),
}

func colorStatus(status string) string {
	if c, ok := statusColors[status]; ok {
		return c.Sprint(status)
	}
	return status
}

func printSummary(w io.Writer, sum heartbeat.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	fmt.Fprintf(w, "cycle %s: %s (%dms)\n", sum.CycleID, colorStatus(sum.Status), sum.DurationMS)
	selected := "(none)"
	if len(sum.SelectedChecks) > 0 {
		selected = strings.Join(sum.SelectedChecks, ", ")
	}
	fmt.Fprintf(w, "  selected:  %s\n", selected)
	fmt.Fprintf(w, "  executed:  %d  notified: %d  failed: %d\n", sum.ChecksExecuted, sum.ChecksNotified, sum.ChecksFailed)
	if sum.Reasoning != "" {
		fmt.Fprintf(w, "  reasoning: %s\n", sum.Reasoning)
	}
	if sum.QuietHours {
		fmt.Fprintf(w, "  %s\n", color.New(color.FgHiBlack).Sprint("quiet hours"))
	}
	if sum.Error != "" {
		fmt.Fprintf(w, "  error:     %s\n", color.New(color.FgRed).Sprint(sum.Error))
	}
	return nil
}
