package simulation

import (
	"github.com/nvandessel/solirona/internal/logging"
	"github.com/nvandessel/solirona/internal/network"
)

// ParamUpdate carries optional tunable changes. Nil fields are left alone.
type ParamUpdate struct {
	ConnectProb      *float64 `json:"connect_prob,omitempty"`
	CollapseChance   *float64 `json:"collapse_chance,omitempty"`
	InterferenceGain *float64 `json:"interference_gain,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ParamUpdate) Empty() bool {
	return u.ConnectProb == nil && u.CollapseChance == nil && u.InterferenceGain == nil
}

// Validate checks every present field.
func (u ParamUpdate) Validate() error {
	if u.ConnectProb != nil {
		if err := network.ValidateProbability("connect probability", *u.ConnectProb); err != nil {
			return err
		}
	}
	if u.CollapseChance != nil {
		if err := network.ValidateProbability("collapse chance", *u.CollapseChance); err != nil {
			return err
		}
	}
	if u.InterferenceGain != nil {
		if err := validateGain(*u.InterferenceGain); err != nil {
			return err
		}
	}
	return nil
}

// SetParameters applies u atomically: every field is validated before any
// is applied. A present ConnectProb triggers a full reconnection. Changes
// take effect from the next tick.
func (e *Engine) SetParameters(u ParamUpdate) error {
	if err := u.Validate(); err != nil {
		e.metrics.observeCommand("set_params", err)
		return err
	}

	e.mu.Lock()
	if u.InterferenceGain != nil {
		e.params.InterferenceGain = *u.InterferenceGain
	}
	if u.CollapseChance != nil {
		e.params.CollapseChance = *u.CollapseChance
	}
	if u.ConnectProb != nil {
		// Validated above; RandomizeConnections cannot fail here.
		_ = e.reconnectLocked(*u.ConnectProb)
	}
	params := e.params
	tick := e.tick
	e.observeGraphLocked()
	e.mu.Unlock()

	e.metrics.observeCommand("set_params", nil)
	e.logger.Debug("parameters updated",
		"interference_gain", params.InterferenceGain,
		"collapse_chance", params.CollapseChance,
		"connect_prob", params.ConnectProb)
	e.events.Log(logging.Record{Kind: logging.KindParams, Tick: tick, Fields: map[string]any{
		"interference_gain": params.InterferenceGain,
		"collapse_chance":   params.CollapseChance,
		"connect_prob":      params.ConnectProb,
	}})

	kind := EventParams
	if u.ConnectProb != nil {
		kind = EventStructure
	}
	e.notify(Event{Kind: kind, Tick: tick})
	return nil
}
