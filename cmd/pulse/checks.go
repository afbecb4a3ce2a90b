package main

import (
	"context"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/vinayprograms/pulse/breaker"
	"github.com/vinayprograms/pulse/checks"
)

func checksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checks",
		Short: "List registered checks with their priority and breaker state",
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

			renderChecks(ctx, cmd.OutOrStdout(), a.registry, a.breaker, time.Now())
			return nil
		},
	}
}

func renderChecks(ctx context.Context, w io.Writer, reg *checks.Registry, b *breaker.Breaker, now time.Time) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Check", "Priority", "Breaker", "Description"})
	for _, c := range reg.ListAll() {
		state := "-"
		if s, err := b.State(ctx, c.ID()); err == nil {
			state = breakerStatus(s, now)
		}
		tw.AppendRow(table.Row{c.ID(), c.Priority().String(), state, c.Description()})
	}
	tw.Render()
}
