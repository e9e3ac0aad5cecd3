// Package simulation implements the resonance evolution engine. An Engine owns
// a network.Graph plus its tunable parameters and serializes every operation
// behind a single mutex, so an automatic driver and external commands never
// observe or produce a partially applied edit.
package simulation

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/nvandessel/solirona/internal/constants"
	"github.com/nvandessel/solirona/internal/logging"
	"github.com/nvandessel/solirona/internal/network"
	"github.com/nvandessel/solirona/internal/waveform"
)

// Errors surfaced by engine operations. They are the network sentinels, so
// errors.Is works across both packages.
var (
	ErrUnknownEntity       = network.ErrUnknownEntity
	ErrInvalidParameter    = network.ErrInvalidParameter
	ErrDuplicateIdentifier = network.ErrDuplicateIdentifier
)

// Config holds the initial population and tunables for a new Engine.
type Config struct {
	// NodeCount is the initial population, ids n0..n(NodeCount-1).
	NodeCount int

	// ConnectProb is the initial relation density. Range: 0.0 to 1.0
	ConnectProb float64

	// WaveformLength is the amplitude length for generated entities.
	WaveformLength int

	// InterferenceGain scales each neighbor's amplitude during propagation.
	InterferenceGain float64

	// CollapseChance is the per-round probability that an uncollapsed entity
	// collapses. Range: 0.0 to 1.0
	CollapseChance float64

	// Seed fixes the random source. 0 seeds from the runtime.
	Seed uint64
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		NodeCount:        constants.DefaultNodeCount,
		ConnectProb:      constants.DefaultConnectProb,
		WaveformLength:   constants.DefaultWaveformLength,
		InterferenceGain: constants.DefaultInterferenceGain,
		CollapseChance:   constants.DefaultCollapseChance,
	}
}

// Params are the engine's live tunables.
type Params struct {
	InterferenceGain float64 `json:"interference_gain"`
	CollapseChance   float64 `json:"collapse_chance"`
	ConnectProb      float64 `json:"connect_prob"`
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEventLogger sets the JSONL event logger. A nil logger disables it.
func WithEventLogger(el *logging.EventLogger) Option {
	return func(e *Engine) { e.events = el }
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRand replaces the random source. Config.Seed is ignored.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		if rng != nil {
			e.rng = rng
		}
	}
}

// Engine evolves a resonance graph. All methods are safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	graph  *network.Graph
	rng    *rand.Rand
	params Params
	length int
	tick   uint64

	logger  *slog.Logger
	events  *logging.EventLogger
	metrics *Metrics

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int

	driverMu sync.Mutex
	driver   *driver
}

// NewEngine validates cfg and builds the initial population and relations.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	e := &Engine{
		graph:     network.New(),
		length:    cfg.WaveformLength,
		logger:    slog.Default(),
		observers: make(map[int]Observer),
		params: Params{
			InterferenceGain: cfg.InterferenceGain,
			CollapseChance:   cfg.CollapseChance,
			ConnectProb:      cfg.ConnectProb,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = newRand(cfg.Seed)
	}

	for i := 0; i < cfg.NodeCount; i++ {
		if _, err := e.graph.AddNode(network.FormatID(i), waveform.Random(e.length, e.rng)); err != nil {
			return nil, fmt.Errorf("building initial population: %w", err)
		}
	}
	if err := e.graph.RandomizeConnections(cfg.ConnectProb, e.rng); err != nil {
		return nil, err
	}

	e.observeGraphLocked()
	e.logger.Debug("engine created",
		"nodes", cfg.NodeCount,
		"edges", e.graph.EdgeCount(),
		"waveform_length", cfg.WaveformLength)
	return e, nil
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func validateConfig(cfg Config) error {
	if cfg.NodeCount < 0 {
		return fmt.Errorf("%w: node count must be non-negative, got %d", ErrInvalidParameter, cfg.NodeCount)
	}
	if cfg.WaveformLength < 1 {
		return fmt.Errorf("%w: waveform length must be positive, got %d", ErrInvalidParameter, cfg.WaveformLength)
	}
	if err := network.ValidateProbability("connect probability", cfg.ConnectProb); err != nil {
		return err
	}
	if err := network.ValidateProbability("collapse chance", cfg.CollapseChance); err != nil {
		return err
	}
	return validateGain(cfg.InterferenceGain)
}

func validateGain(g float64) error {
	if math.IsNaN(g) || math.IsInf(g, 0) {
		return fmt.Errorf("%w: interference gain must be finite, got %v", ErrInvalidParameter, g)
	}
	if math.Abs(g) > constants.MaxInterferenceGain {
		return fmt.Errorf("%w: interference gain must be within +/-%g, got %v",
			ErrInvalidParameter, constants.MaxInterferenceGain, g)
	}
	return nil
}

// Params returns the current tunables.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// WaveformLength returns the amplitude length used for generated entities.
func (e *Engine) WaveformLength() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.length
}

// Len returns the current population.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Len()
}

// Validate runs the graph invariant checks under the engine lock.
func (e *Engine) Validate() []network.ValidationError {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Validate()
}

// observeGraphLocked refreshes population gauges. Caller holds e.mu.
func (e *Engine) observeGraphLocked() {
	if e.metrics == nil {
		return
	}
	collapsed := 0
	for _, n := range e.graph.Nodes() {
		if n.Collapsed {
			collapsed++
		}
	}
	e.metrics.observeGraph(e.graph.Len(), collapsed, e.graph.EdgeCount())
}
