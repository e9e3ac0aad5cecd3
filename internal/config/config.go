// Package config provides unified configuration loading for solirona.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/solirona/internal/constants"
	"gopkg.in/yaml.v3"
)

// SolironaConfig contains all solirona configuration settings.
type SolironaConfig struct {
	// Simulation contains the engine's initial population and tunables.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Server contains settings for the HTTP/WebSocket transport.
	Server ServerConfig `json:"server" yaml:"server"`

	// Storage contains settings for run history recording.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig configures the resonance engine.
type SimulationConfig struct {
	// NodeCount is the initial population.
	NodeCount int `json:"node_count" yaml:"node_count"`

	// ConnectProb is the initial Erdos-Renyi connection density.
	ConnectProb float64 `json:"connect_prob" yaml:"connect_prob"`

	// WaveformLength is the number of slots in every amplitude vector.
	WaveformLength int `json:"waveform_length" yaml:"waveform_length"`

	// InterferenceGain scales neighbor amplitudes during propagation.
	InterferenceGain float64 `json:"interference_gain" yaml:"interference_gain"`

	// CollapseChance is the per-round collapse probability. Range: 0.0 to 1.0
	CollapseChance float64 `json:"collapse_chance" yaml:"collapse_chance"`

	// TickInterval is the cadence of the automatic driver.
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval"`

	// Seed fixes the random source. 0 picks a random seed.
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// ServerConfig configures the transport layer.
type ServerConfig struct {
	// Addr is the listen address, e.g. "localhost:5000".
	Addr string `json:"addr" yaml:"addr"`

	// CommandRate is the sustained per-client, per-action command rate (per second).
	CommandRate float64 `json:"command_rate" yaml:"command_rate"`

	// CommandBurst is the per-client, per-action burst size.
	CommandBurst int `json:"command_burst" yaml:"command_burst"`
}

// StorageConfig configures run history.
type StorageConfig struct {
	// Enabled turns history recording on for the serve command.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// DataDir holds the database and event log. Empty means ~/.solirona.
	DataDir string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`

	// SnapshotEvery is the number of ticks between recorded snapshots.
	SnapshotEvery int `json:"snapshot_every" yaml:"snapshot_every"`
}

// LoggingConfig configures solirona's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables event logging to <data dir>/events.jsonl.
	// "trace" additionally logs every tick.
	Level string `json:"level" yaml:"level"`
}

// Default returns a SolironaConfig with sensible defaults.
func Default() *SolironaConfig {
	return &SolironaConfig{
		Simulation: SimulationConfig{
			NodeCount:        constants.DefaultNodeCount,
			ConnectProb:      constants.DefaultConnectProb,
			WaveformLength:   constants.DefaultWaveformLength,
			InterferenceGain: constants.DefaultInterferenceGain,
			CollapseChance:   constants.DefaultCollapseChance,
			TickInterval:     constants.DefaultTickInterval,
		},
		Server: ServerConfig{
			Addr:         constants.DefaultAddr,
			CommandRate:  constants.DefaultCommandRate,
			CommandBurst: constants.DefaultCommandBurst,
		},
		Storage: StorageConfig{
			Enabled:       true,
			SnapshotEvery: constants.DefaultSnapshotEvery,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultDataDir returns ~/.solirona.
func DefaultDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DataDirName), nil
}

// DefaultPath returns ~/.solirona/config.yaml.
func DefaultPath() (string, error) {
	dir, err := DefaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ResolvedDataDir returns Storage.DataDir, falling back to ~/.solirona.
func (c *SolironaConfig) ResolvedDataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return expandHome(c.Storage.DataDir), nil
	}
	return DefaultDataDir()
}

// Load loads configuration from path (or the default location when path is
// empty) and environment variables.
// Order: defaults -> config file -> environment variables
func Load(path string) (*SolironaConfig, error) {
	config := Default()

	explicit := path != ""
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			fileConfig, loadErr := LoadFromFile(path)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		} else if explicit {
			return nil, fmt.Errorf("config file %s: %w", path, statErr)
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*SolironaConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Storage.DataDir = expandEnvVars(config.Storage.DataDir)

	return config, nil
}

// Save writes the configuration as YAML to path, creating parent directories.
func (c *SolironaConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *SolironaConfig) Validate() error {
	s := c.Simulation
	if s.NodeCount < 0 {
		return fmt.Errorf("node_count must be non-negative, got %d", s.NodeCount)
	}
	if s.NodeCount > constants.MaxPopulation {
		return fmt.Errorf("node_count must be at most %d, got %d", constants.MaxPopulation, s.NodeCount)
	}
	if s.WaveformLength < 1 {
		return fmt.Errorf("waveform_length must be positive, got %d", s.WaveformLength)
	}
	if !inUnitInterval(s.ConnectProb) {
		return fmt.Errorf("connect_prob must be between 0 and 1, got %f", s.ConnectProb)
	}
	if !inUnitInterval(s.CollapseChance) {
		return fmt.Errorf("collapse_chance must be between 0 and 1, got %f", s.CollapseChance)
	}
	if math.IsNaN(s.InterferenceGain) || math.IsInf(s.InterferenceGain, 0) {
		return fmt.Errorf("interference_gain must be finite, got %f", s.InterferenceGain)
	}
	if math.Abs(s.InterferenceGain) > constants.MaxInterferenceGain {
		return fmt.Errorf("interference_gain must be within +/-%g, got %g", constants.MaxInterferenceGain, s.InterferenceGain)
	}
	if s.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %v", s.TickInterval)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server addr must not be empty")
	}
	if c.Server.CommandRate <= 0 {
		return fmt.Errorf("command_rate must be positive, got %f", c.Server.CommandRate)
	}
	if c.Server.CommandBurst < 1 {
		return fmt.Errorf("command_burst must be at least 1, got %d", c.Server.CommandBurst)
	}

	if c.Storage.SnapshotEvery < 1 {
		return fmt.Errorf("snapshot_every must be at least 1, got %d", c.Storage.SnapshotEvery)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

func inUnitInterval(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}

// applyEnvOverrides applies environment variable overrides to the config.
// Malformed numeric values are ignored.
func applyEnvOverrides(config *SolironaConfig) {
	if v := os.Getenv("SOLIRONA_NODE_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.NodeCount = n
		}
	}
	if v := os.Getenv("SOLIRONA_CONNECT_PROB"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.ConnectProb = f
		}
	}
	if v := os.Getenv("SOLIRONA_WAVEFORM_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.WaveformLength = n
		}
	}
	if v := os.Getenv("SOLIRONA_INTERFERENCE_GAIN"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.InterferenceGain = f
		}
	}
	if v := os.Getenv("SOLIRONA_COLLAPSE_CHANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.CollapseChance = f
		}
	}
	if v := os.Getenv("SOLIRONA_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Simulation.TickInterval = d
		}
	}
	if v := os.Getenv("SOLIRONA_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Simulation.Seed = n
		}
	}

	if v := os.Getenv("SOLIRONA_ADDR"); v != "" {
		config.Server.Addr = v
	}

	if v := os.Getenv("SOLIRONA_STORAGE_ENABLED"); v != "" {
		config.Storage.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SOLIRONA_DATA_DIR"); v != "" {
		config.Storage.DataDir = v
	}

	if v := os.Getenv("SOLIRONA_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
