package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/vinayprograms/pulse/breaker"
)

func breakersCmd() *cobra.Command {
	var reset []string
	cmd := &cobra.Command{
		Use:   "breakers",
		Short: "Show circuit breaker state per check, or reset breakers",
		Long: `breakers reads failure counters and cooldowns from the configured state
store: the host database by default, or the NATS bucket with
store.backend = "nats".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := openBase(ctx, cfg, newLogger(cfg, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			for _, id := range reset {
				if _, ok := a.registry.Get(id); !ok {
					return fmt.Errorf("unknown check %q", id)
				}
				if err := a.breaker.Reset(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s\n", color.New(color.FgGreen).Sprint("reset"), id)
			}
			if len(reset) > 0 {
				return nil
			}

			states, err := a.breaker.List(ctx)
			if err != nil {
				return err
			}
			renderBreakers(out, states, time.Now())
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&reset, "reset", nil, "Check ids whose breaker to reset")
	return cmd
}

func breakerStatus(s breaker.State, now time.Time) string {
	if s.DisabledUntil != nil && now.Before(*s.DisabledUntil) {
		return color.New(color.FgRed).Sprintf("open until %s", s.DisabledUntil.Local().Format(time.TimeOnly))
	}
	if s.Failures > 0 {
		return color.New(color.FgYellow).Sprint("degraded")
	}
	return color.New(color.FgGreen).Sprint("closed")
}

func renderBreakers(w io.Writer, states []breaker.State, now time.Time) {
	if len(states) == 0 {
		fmt.Fprintln(w, "no breaker state recorded")
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Check", "Failures", "State"})
	for _, s := range states {
		tw.AppendRow(table.Row{s.CheckID, s.Failures, breakerStatus(s, now)})
	}
	tw.Render()
}
