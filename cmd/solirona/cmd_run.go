package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/nvandessel/solirona/internal/config"
	"github.com/nvandessel/solirona/internal/constants"
	"github.com/nvandessel/solirona/internal/simulation"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run rounds headless and print the resulting statistics",
		Long: `Evolve a fresh engine (or one loaded from a snapshot file) for a fixed
number of rounds without starting a server.

Examples:
  solirona run --ticks 500
  solirona run --ticks 100 --seed 7 --snapshot out.json
  solirona run --ticks 50 --from out.json --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ticks, _ := cmd.Flags().GetInt("ticks")
			if cmd.Flags().Changed("seed") {
				cfg.Simulation.Seed, _ = cmd.Flags().GetUint64("seed")
			}
			if cmd.Flags().Changed("nodes") {
				cfg.Simulation.NodeCount, _ = cmd.Flags().GetInt("nodes")
			}
			from, _ := cmd.Flags().GetString("from")
			snapshotPath, _ := cmd.Flags().GetString("snapshot")

			res, err := runHeadless(cfg, ticks, from)
			if err != nil {
				return err
			}
			if snapshotPath != "" {
				if err := writeSnapshotFile(snapshotPath, res.Engine.State()); err != nil {
					return err
				}
			}
			return printRunResult(cmd.OutOrStdout(), jsonOutput(cmd), res)
		},
	}

	cmd.Flags().Int("ticks", 100, "Number of rounds to run")
	cmd.Flags().Uint64("seed", 0, "Random seed (overrides simulation.seed)")
	cmd.Flags().Int("nodes", 0, "Initial population (overrides simulation.node_count)")
	cmd.Flags().String("from", "", "Load the initial state from a snapshot JSON file")
	cmd.Flags().String("snapshot", "", "Write the final state to this JSON file")
	return cmd
}

type runResult struct {
	Engine    *simulation.Engine `json:"-"`
	Ticks     int                `json:"ticks"`
	Collapses int                `json:"collapses"`
	Stats     simulation.Stats   `json:"stats"`
}

// runHeadless evolves an engine for ticks rounds. Work is split into chunks
// no larger than the per-command tick limit.
func runHeadless(cfg *config.SolironaConfig, ticks int, from string) (*runResult, error) {
	if ticks < 0 {
		return nil, fmt.Errorf("--ticks must be non-negative, got %d", ticks)
	}

	engine, err := newEngine(cfg, newLogger(cfg))
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	if from != "" {
		snap, err := readSnapshotFile(from)
		if err != nil {
			return nil, err
		}
		if err := engine.Load(snap); err != nil {
			return nil, fmt.Errorf("loading %s: %w", from, err)
		}
	}

	res := &runResult{Engine: engine, Ticks: ticks}
	for remaining := ticks; remaining > 0; {
		n := min(remaining, constants.MaxTicksPerCommand)
		collapses, err := engine.Step(n)
		if err != nil {
			return nil, err
		}
		res.Collapses += len(collapses)
		remaining -= n
	}
	res.Stats = engine.Stats()
	return res, nil
}

func printRunResult(w io.Writer, jsonOut bool, res *runResult) error {
	if jsonOut {
		return writeJSON(w, res)
	}
	st := res.Stats
	fmt.Fprintf(w, "Ran %d rounds (tick %d)\n", res.Ticks, st.Tick)
	fmt.Fprintf(w, "  entities:      %d\n", st.Population)
	fmt.Fprintf(w, "  collapsed:     %d (%.1f%%)\n", st.Collapsed, st.CollapsedPercent)
	fmt.Fprintf(w, "  new collapses: %d\n", res.Collapses)
	fmt.Fprintf(w, "  relations:     %d\n", st.Edges)
	fmt.Fprintf(w, "  avg magnitude: %.4f\n", st.AvgMagnitude)
	return nil
}

func readSnapshotFile(path string) (simulation.Snapshot, error) {
	var snap simulation.Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, fmt.Errorf("reading snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	return snap, nil
}

func writeSnapshotFile(path string, snap simulation.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}
