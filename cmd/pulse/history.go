package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/vinayprograms/pulse/config"
	"github.com/vinayprograms/pulse/metrics"
	"github.com/vinayprograms/pulse/shutdown"
)

func historyCmd() *cobra.Command {
	var (
		limit  int
		search string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent heartbeat cycles",
		Long: `history lists recent cycles, newest first. With --search it queries the
full-text cycle index instead, e.g. --search "status:error" or
--search "selected:upcoming_event".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cycles, err := loadHistory(cmd.Context(), cfg, cmd.ErrOrStderr(), limit, search)
			if err != nil {
				return err
			}
			renderCycles(cmd.OutOrStdout(), cycles)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of cycles to show")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Full-text query over indexed cycles")
	return cmd
}

func loadHistory(ctx context.Context, cfg *config.Config, errOut io.Writer, limit int, search string) ([]metrics.Cycle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if search != "" {
		if cfg.Metrics.IndexPath == "" {
			return nil, fmt.Errorf("--search needs metrics.index_path in the config")
		}
		idx, err := metrics.OpenBleveIndex(cfg.Metrics.IndexPath)
		if err != nil {
			return nil, err
		}
		defer idx.Close()
		return idx.Search(ctx, search, limit)
	}

	a, err := openBase(ctx, cfg, newLogger(cfg, errOut))
	if err != nil {
		return nil, err
	}
	defer a.close()

	var history metrics.History
	switch {
	case cfg.Metrics.SQLite:
		r, err := metrics.NewSQLiteRecorder(ctx, a.db.DB())
		if err != nil {
			return nil, err
		}
		history = r
	case cfg.Metrics.JSONLPath != "":
		r, err := metrics.NewFileRecorder(cfg.Metrics.JSONLPath)
		if err != nil {
			return nil, err
		}
		a.coord.Add(shutdown.Closer("metrics-jsonl", r.Close), shutdown.PhaseSinks)
		history = r
	default:
		return nil, fmt.Errorf("no cycle history configured (enable metrics.sqlite or metrics.jsonl_path)")
	}
	return history.Recent(ctx, limit)
}

func renderCycles(w io.Writer, cycles []metrics.Cycle) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Time", "Cycle", "Status", "Selected", "Exec", "Notified", "Duration", "Reasoning"})
	for _, c := range cycles {
		status := colorStatus(c.Status)
		if c.Fallback {
			status += " (fallback)"
		}
		tw.AppendRow(table.Row{
			c.Timestamp.Local().Format(time.DateTime),
			shortID(c.ID),
			status,
			strings.Join(c.Selected, ", "),
			c.Executed,
			c.Notified,
			(time.Duration(c.DurationMS) * time.Millisecond).String(),
			truncate(c.Reasoning, 60),
		})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "", "", "", fmt.Sprintf("%d cycle(s)", len(cycles))})
	tw.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
