package mcp

import (
	"github.com/nvandessel/solirona/internal/simulation"
)

// StateInput defines the input for solirona_state tool.
type StateInput struct {
	IDs []string `json:"ids,omitempty" jsonschema:"Only return these entity ids (default: all)"`
}

// StateOutput defines the output for solirona_state tool.
type StateOutput struct {
	Tick   uint64                 `json:"tick" jsonschema:"Completed evolution rounds"`
	Params simulation.Params      `json:"params" jsonschema:"Current tunables"`
	Nodes  []simulation.NodeState `json:"nodes" jsonschema:"Entities in natural id order"`
	Count  int                    `json:"count" jsonschema:"Number of entities returned"`
}

// StatsInput defines the input for solirona_stats tool.
type StatsInput struct{}

// StatsOutput defines the output for solirona_stats tool.
type StatsOutput struct {
	Stats   simulation.Stats `json:"stats" jsonschema:"Population and collapse counters"`
	Message string           `json:"message" jsonschema:"Human-readable status line"`
}

// StepInput defines the input for solirona_step tool.
type StepInput struct {
	Count int `json:"count,omitempty" jsonschema:"Rounds to run, 1-10000 (default: 1)"`
}

// StepOutput defines the output for solirona_step tool.
type StepOutput struct {
	Tick      uint64                `json:"tick" jsonschema:"Tick number after the step"`
	Collapses []simulation.Collapse `json:"collapses" jsonschema:"Collapses that occurred during the step"`
	Stats     simulation.Stats      `json:"stats" jsonschema:"Counters after the step"`
}

// SetParamsInput defines the input for solirona_set_params tool.
type SetParamsInput struct {
	ConnectProb      *float64 `json:"connect_prob,omitempty" jsonschema:"Relation probability in [0, 1]; rewires every relation"`
	CollapseChance   *float64 `json:"collapse_chance,omitempty" jsonschema:"Per-round collapse probability in [0, 1]"`
	InterferenceGain *float64 `json:"interference_gain,omitempty" jsonschema:"Neighbor mixing weight"`
}

// SetParamsOutput defines the output for solirona_set_params tool.
type SetParamsOutput struct {
	Params simulation.Params `json:"params" jsonschema:"Tunables after the update"`
}

// RotateInput defines the input for solirona_rotate tool.
type RotateInput struct {
	ID    string   `json:"id,omitempty" jsonschema:"Entity to rotate (default: every entity)"`
	Angle *float64 `json:"angle,omitempty" jsonschema:"Rotation angle in radians (default: random in [0, pi))"`
}

// RotateOutput defines the output for solirona_rotate tool.
type RotateOutput struct {
	Rotated int    `json:"rotated" jsonschema:"Number of entities rotated"`
	Message string `json:"message" jsonschema:"Human-readable result message"`
}

// AddNodeInput defines the input for solirona_add_node tool.
type AddNodeInput struct{}

// AddNodeOutput defines the output for solirona_add_node tool.
type AddNodeOutput struct {
	ID         string `json:"id" jsonschema:"Id of the new entity"`
	Population int    `json:"population" jsonschema:"Population after the add"`
}

// RemoveNodeInput defines the input for solirona_remove_node tool.
type RemoveNodeInput struct {
	ID string `json:"id,omitempty" jsonschema:"Entity to remove (default: the highest id)"`
}

// RemoveNodeOutput defines the output for solirona_remove_node tool.
type RemoveNodeOutput struct {
	ID         string `json:"id,omitempty" jsonschema:"Id of the removed entity"`
	Removed    bool   `json:"removed" jsonschema:"False when the graph was already empty"`
	Population int    `json:"population" jsonschema:"Population after the removal"`
}

// ReconnectInput defines the input for solirona_reconnect tool.
type ReconnectInput struct {
	ConnectProb *float64 `json:"connect_prob" jsonschema:"Relation probability in [0, 1]"`
}

// ReconnectOutput defines the output for solirona_reconnect tool.
type ReconnectOutput struct {
	ConnectProb float64 `json:"connect_prob" jsonschema:"Probability now in effect"`
	Edges       int     `json:"edges" jsonschema:"Relation count after rewiring"`
}

// SetPopulationInput defines the input for solirona_set_population tool.
type SetPopulationInput struct {
	Count *int `json:"count" jsonschema:"Target population, 0-5000"`
}

// SetPopulationOutput defines the output for solirona_set_population tool.
type SetPopulationOutput struct {
	Added      []string `json:"added" jsonschema:"Ids of generated entities"`
	Removed    []string `json:"removed" jsonschema:"Ids of removed entities, highest first"`
	Population int      `json:"population" jsonschema:"Population after the change"`
}

// CollapseInput defines the input for solirona_collapse tool.
type CollapseInput struct {
	ID string `json:"id" jsonschema:"Entity to collapse"`
}

// CollapseOutput defines the output for solirona_collapse tool.
type CollapseOutput struct {
	ID           string `json:"id" jsonschema:"Entity id"`
	Value        int    `json:"value" jsonschema:"Resolved basis index"`
	CollapsedNow bool   `json:"collapsed_now" jsonschema:"False when the entity was already collapsed"`
}
