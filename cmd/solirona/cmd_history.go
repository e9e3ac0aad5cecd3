package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/nvandessel/solirona/internal/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
		Long: `List runs recorded by serve, or show one run's snapshots and the
distribution of the basis values its entities collapsed to.

Examples:
  solirona history list
  solirona history show <run-id> --json`,
	}

	cmd.AddCommand(newHistoryListCmd(), newHistoryShowCmd())
	return cmd
}

// openHistory opens the SQLite history in the configured data directory.
func openHistory(cmd *cobra.Command) (*store.SQLiteHistoryStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dataDir, err := cfg.ResolvedDataDir()
	if err != nil {
		return nil, err
	}
	return store.NewSQLiteHistoryStore(dataDir)
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer history.Close()

			runs, err := history.ListRuns(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing runs: %w", err)
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"runs": runs, "count": len(runs)})
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
}

func printRuns(w io.Writer, runs []store.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No recorded runs.")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  entities=%d  tick=%d  snapshots=%d  collapses=%d\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.NodeCount, r.LatestTick, r.Snapshots, r.Collapses)
	}
}

type runDetail struct {
	Run       store.RunSummary       `json:"run"`
	Snapshots []store.SnapshotRecord `json:"snapshots"`
	Histogram map[int]int            `json:"histogram"`
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show snapshots and the collapse histogram of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer history.Close()

			detail, err := loadRunDetail(cmd.Context(), history, args[0])
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), detail)
			}
			printRunDetail(cmd.OutOrStdout(), detail)
			return nil
		},
	}
}

func loadRunDetail(ctx context.Context, history store.HistoryStore, runID string) (*runDetail, error) {
	run, err := history.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	snaps, err := history.ListSnapshots(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	hist, err := history.CollapseHistogram(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("collapse histogram: %w", err)
	}
	return &runDetail{Run: *run, Snapshots: snaps, Histogram: hist}, nil
}

func printRunDetail(w io.Writer, d *runDetail) {
	r := d.Run
	fmt.Fprintf(w, "Run %s\n", r.ID)
	fmt.Fprintf(w, "  started:     %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  entities:    %d (waveform length %d)\n", r.NodeCount, r.WaveformLength)
	fmt.Fprintf(w, "  params:      connect=%.3f collapse=%.3f gain=%.3f\n",
		r.Params.ConnectProb, r.Params.CollapseChance, r.Params.InterferenceGain)
	fmt.Fprintf(w, "  latest tick: %d\n", r.LatestTick)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Snapshots (%d):\n", len(d.Snapshots))
	for _, s := range d.Snapshots {
		fmt.Fprintf(w, "  tick %-8d entities=%-5d collapsed=%d\n", s.Tick, s.Population, s.Collapsed)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Collapses by value (%d total):\n", r.Collapses)
	values := make([]int, 0, len(d.Histogram))
	for v := range d.Histogram {
		values = append(values, v)
	}
	sort.Ints(values)
	for _, v := range values {
		fmt.Fprintf(w, "  %4d: %d\n", v, d.Histogram[v])
	}
}
