package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nvandessel/solirona/internal/config"
	"github.com/nvandessel/solirona/internal/logging"
	"github.com/nvandessel/solirona/internal/simulation"
	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "solirona",
		Short: "Solirona - resonance network simulation",
		Long: `solirona evolves a network of complex-amplitude entities.

Each round mixes every entity with its neighbors, normalizes and rotates
its waveform, then gives each uncollapsed entity a chance to collapse to a
basis state. Drive it from the browser (serve), headless (run) or from an
MCP client (mcp-server).`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.solirona/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(),
		newRunCmd(),
		newMCPServerCmd(),
		newHistoryCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// loadConfig reads the file named by --config (or the default location) and
// validates the result.
func loadConfig(cmd *cobra.Command) (*config.SolironaConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newEngine builds an engine from the simulation section of cfg.
func newEngine(cfg *config.SolironaConfig, logger *slog.Logger, opts ...simulation.Option) (*simulation.Engine, error) {
	s := cfg.Simulation
	opts = append([]simulation.Option{simulation.WithLogger(logger)}, opts...)
	return simulation.NewEngine(simulation.Config{
		NodeCount:        s.NodeCount,
		ConnectProb:      s.ConnectProb,
		WaveformLength:   s.WaveformLength,
		InterferenceGain: s.InterferenceGain,
		CollapseChance:   s.CollapseChance,
		Seed:             s.Seed,
	}, opts...)
}

// newLogger writes operational logs to stderr; stdout is reserved for
// command output and the MCP transport.
func newLogger(cfg *config.SolironaConfig) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, os.Stderr)
}

func jsonOutput(cmd *cobra.Command) bool {
	jsonOut, _ := cmd.Flags().GetBool("json")
	return jsonOut
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
