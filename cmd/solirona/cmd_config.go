package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/solirona/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage solirona configuration",
		Long: `View and modify solirona configuration settings.

Configuration is stored in ~/.solirona/config.yaml unless --config names
another file. SOLIRONA_* environment variables override file values.

Examples:
  solirona config list                             # Show all settings
  solirona config get simulation.collapse_chance   # Get a specific setting
  solirona config set simulation.node_count 200    # Set a setting
  solirona config path                             # Show the config file location`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
		newConfigPathCmd(),
	)
	return cmd
}

// configKeys lists every settable key in display order.
var configKeys = []string{
	"simulation.node_count",
	"simulation.connect_prob",
	"simulation.waveform_length",
	"simulation.interference_gain",
	"simulation.collapse_chance",
	"simulation.tick_interval",
	"simulation.seed",
	"server.addr",
	"server.command_rate",
	"server.command_burst",
	"storage.enabled",
	"storage.data_dir",
	"storage.snapshot_every",
	"logging.level",
}

// configPath returns the file named by --config, or the default location.
func configPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	return config.DefaultPath()
}

// loadFileConfig reads path without environment overrides. A missing file
// yields the defaults.
func loadFileConfig(path string) (*config.SolironaConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.LoadFromFile(path)
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.SolironaConfig) {
	section := ""
	for _, key := range configKeys {
		prefix, _, _ := strings.Cut(key, ".")
		if prefix != section {
			if section != "" {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "%s:\n", prefix)
			section = prefix
		}
		value, _ := getConfigValue(cfg, key)
		fmt.Fprintf(w, "  %-30s %v\n", key+":", value)
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"key": key, "value": value})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadFileConfig(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"status": "updated", "key": key, "value": value})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"path": path})
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.SolironaConfig, key string) (any, bool) {
	switch key {
	case "simulation.node_count":
		return cfg.Simulation.NodeCount, true
	case "simulation.connect_prob":
		return cfg.Simulation.ConnectProb, true
	case "simulation.waveform_length":
		return cfg.Simulation.WaveformLength, true
	case "simulation.interference_gain":
		return cfg.Simulation.InterferenceGain, true
	case "simulation.collapse_chance":
		return cfg.Simulation.CollapseChance, true
	case "simulation.tick_interval":
		return cfg.Simulation.TickInterval.String(), true
	case "simulation.seed":
		return cfg.Simulation.Seed, true
	case "server.addr":
		return cfg.Server.Addr, true
	case "server.command_rate":
		return cfg.Server.CommandRate, true
	case "server.command_burst":
		return cfg.Server.CommandBurst, true
	case "storage.enabled":
		return cfg.Storage.Enabled, true
	case "storage.data_dir":
		return valueOrDefault(cfg.Storage.DataDir, "(default)"), true
	case "storage.snapshot_every":
		return cfg.Storage.SnapshotEvery, true
	case "logging.level":
		return valueOrDefault(cfg.Logging.Level, "info"), true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key. Range
// checks are left to SolironaConfig.Validate.
func setConfigValue(cfg *config.SolironaConfig, key, value string) error {
	var err error
	switch key {
	case "simulation.node_count":
		cfg.Simulation.NodeCount, err = strconv.Atoi(value)
	case "simulation.connect_prob":
		cfg.Simulation.ConnectProb, err = strconv.ParseFloat(value, 64)
	case "simulation.waveform_length":
		cfg.Simulation.WaveformLength, err = strconv.Atoi(value)
	case "simulation.interference_gain":
		cfg.Simulation.InterferenceGain, err = strconv.ParseFloat(value, 64)
	case "simulation.collapse_chance":
		cfg.Simulation.CollapseChance, err = strconv.ParseFloat(value, 64)
	case "simulation.tick_interval":
		var d time.Duration
		d, err = time.ParseDuration(value)
		cfg.Simulation.TickInterval = d
	case "simulation.seed":
		cfg.Simulation.Seed, err = strconv.ParseUint(value, 10, 64)
	case "server.addr":
		cfg.Server.Addr = value
	case "server.command_rate":
		cfg.Server.CommandRate, err = strconv.ParseFloat(value, 64)
	case "server.command_burst":
		cfg.Server.CommandBurst, err = strconv.Atoi(value)
	case "storage.enabled":
		cfg.Storage.Enabled, err = strconv.ParseBool(value)
	case "storage.data_dir":
		cfg.Storage.DataDir = value
	case "storage.snapshot_every":
		cfg.Storage.SnapshotEvery, err = strconv.Atoi(value)
	case "logging.level":
		cfg.Logging.Level = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q", key, value)
	}
	return nil
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
