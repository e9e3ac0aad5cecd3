package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/solirona/internal/ratelimit"
	"github.com/nvandessel/solirona/internal/simulation"
)

const stateURI = "solirona://state"

// registerTools registers all solirona MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "solirona_state",
		Description: "Get the full network state: tick, parameters and every entity's waveform, collapse status and connections",
	}, s.handleState)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "solirona_stats",
		Description: "Get population, collapse and relation counters",
	}, s.handleStats)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "solirona_step",
		Description: "Run evolution rounds (interference, phase rotation, random collapse) and report the collapses",
	}, s.handleStep)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "solirona_set_params",
		Description: "Update connect probability, collapse chance and interference gain; all-or-nothing",
	}, s.handleSetParams)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "solirona_rotate",
		Description: "Apply a phase rotation to one entity or to every entity",
	}, s.handleRotate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "solirona_add_node",
		Description: "Add an entity with a random waveform, connected at the current connect probability",
	}, s.handleAddNode)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "solirona_remove_node",
		Description: "Remove an entity by id, or the highest-numbered entity when no id is given",
	}, s.handleRemoveNode)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "solirona_reconnect",
		Description: "Discard every relation and rewire the network with a new connect probability",
	}, s.handleReconnect)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "solirona_set_population",
		Description: "Grow or shrink the network to an exact entity count",
	}, s.handleSetPopulation)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "solirona_collapse",
		Description: "Force a Born-rule collapse of one entity",
	}, s.handleCollapse)
}

// registerResources registers the state resource.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         stateURI,
		Name:        "solirona-state",
		Description: "Current network snapshot as JSON.",
		MIMEType:    "application/json",
	}, s.handleStateResource)
}

func (s *Server) handleStateResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	data, err := json.MarshalIndent(s.engine.State(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      stateURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

func (s *Server) handleState(ctx context.Context, req *sdk.CallToolRequest, args StateInput) (_ *sdk.CallToolResult, _ StateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("solirona_state", start, retErr, toolParams(map[string]any{"ids": args.IDs}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "solirona_state"); err != nil {
		return nil, StateOutput{}, err
	}

	snap := s.engine.State()
	nodes := snap.Nodes
	if len(args.IDs) > 0 {
		nodes = make([]simulation.NodeState, 0, len(args.IDs))
		for _, id := range args.IDs {
			ns := snap.Node(id)
			if ns == nil {
				return nil, StateOutput{}, fmt.Errorf("%w: %s", simulation.ErrUnknownEntity, id)
			}
			nodes = append(nodes, *ns)
		}
	}

	return nil, StateOutput{
		Tick:   snap.Tick,
		Params: snap.Params,
		Nodes:  nodes,
		Count:  len(nodes),
	}, nil
}

func (s *Server) handleStats(ctx context.Context, req *sdk.CallToolRequest, args StatsInput) (_ *sdk.CallToolResult, _ StatsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("solirona_stats", start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "solirona_stats"); err != nil {
		return nil, StatsOutput{}, err
	}

	st := s.engine.Stats()
	return nil, StatsOutput{
		Stats: st,
		Message: fmt.Sprintf("tick %d: %d entities, %d collapsed (%.1f%%), %d relations",
			st.Tick, st.Population, st.Collapsed, st.CollapsedPercent, st.Edges),
	}, nil
}

func (s *Server) handleStep(ctx context.Context, req *sdk.CallToolRequest, args StepInput) (_ *sdk.CallToolResult, _ StepOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("solirona_step", start, retErr, toolParams(map[string]any{"count": args.Count}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "solirona_step"); err != nil {
		return nil, StepOutput{}, err
	}

	count := args.Count
	if count == 0 {
		count = 1
	}
	collapses, err := s.engine.Step(count)
	if err != nil {
		return nil, StepOutput{}, err
	}
	if collapses == nil {
		collapses = []simulation.Collapse{}
	}

	st := s.engine.Stats()
	return nil, StepOutput{Tick: st.Tick, Collapses: collapses, Stats: st}, nil
}

func (s *Server) handleSetParams(ctx context.Context, req *sdk.CallToolRequest, args SetParamsInput) (_ *sdk.CallToolResult, _ SetParamsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("solirona_set_params", start, retErr, toolParams(map[string]any{
			"connect_prob":      args.ConnectProb,
			"collapse_chance":   args.CollapseChance,
			"interference_gain": args.InterferenceGain,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "solirona_set_params"); err != nil {
		return nil, SetParamsOutput{}, err
	}

	u := simulation.ParamUpdate{
		ConnectProb:      args.ConnectProb,
		CollapseChance:   args.CollapseChance,
		InterferenceGain: args.InterferenceGain,
	}
	if u.Empty() {
		return nil, SetParamsOutput{}, fmt.Errorf("%w: no parameters given", simulation.ErrInvalidParameter)
	}
	if err := s.engine.SetParameters(u); err != nil {
		return nil, SetParamsOutput{}, err
	}
	return nil, SetParamsOutput{Params: s.engine.Params()}, nil
}

func (s *Server) handleRotate(ctx context.Context, req *sdk.CallToolRequest, args RotateInput) (_ *sdk.CallToolResult, _ RotateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("solirona_rotate", start, retErr, toolParams(map[string]any{"id": args.ID, "angle": args.Angle}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "solirona_rotate"); err != nil {
		return nil, RotateOutput{}, err
	}

	if args.ID != "" {
		if err := s.engine.RotatePhase(args.ID, args.Angle); err != nil {
			return nil, RotateOutput{}, err
		}
		return nil, RotateOutput{Rotated: 1, Message: fmt.Sprintf("rotated %s", args.ID)}, nil
	}

	n := s.engine.Len()
	if err := s.engine.RotateAll(args.Angle); err != nil {
		return nil, RotateOutput{}, err
	}
	return nil, RotateOutput{Rotated: n, Message: fmt.Sprintf("rotated %d entities", n)}, nil
}

func (s *Server) handleAddNode(ctx context.Context, req *sdk.CallToolRequest, args AddNodeInput) (_ *sdk.CallToolResult, _ AddNodeOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("solirona_add_node", start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "solirona_add_node"); err != nil {
		return nil, AddNodeOutput{}, err
	}

	id, err := s.engine.AddEntity()
	if err != nil {
		return nil, AddNodeOutput{}, err
	}
	return nil, AddNodeOutput{ID: id, Population: s.engine.Len()}, nil
}

func (s *Server) handleRemoveNode(ctx context.Context, req *sdk.CallToolRequest, args RemoveNodeInput) (_ *sdk.CallToolResult, _ RemoveNodeOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("solirona_remove_node", start, retErr, toolParams(map[string]any{"id": args.ID}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "solirona_remove_node"); err != nil {
		return nil, RemoveNodeOutput{}, err
	}

	if args.ID != "" {
		if err := s.engine.RemoveEntityByID(args.ID); err != nil {
			return nil, RemoveNodeOutput{}, err
		}
		return nil, RemoveNodeOutput{ID: args.ID, Removed: true, Population: s.engine.Len()}, nil
	}

	id, removed := s.engine.RemoveEntity()
	return nil, RemoveNodeOutput{ID: id, Removed: removed, Population: s.engine.Len()}, nil
}

func (s *Server) handleReconnect(ctx context.Context, req *sdk.CallToolRequest, args ReconnectInput) (_ *sdk.CallToolResult, _ ReconnectOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("solirona_reconnect", start, retErr, toolParams(map[string]any{"connect_prob": args.ConnectProb}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "solirona_reconnect"); err != nil {
		return nil, ReconnectOutput{}, err
	}

	if args.ConnectProb == nil {
		return nil, ReconnectOutput{}, fmt.Errorf("%w: 'connect_prob' parameter is required", simulation.ErrInvalidParameter)
	}
	if err := s.engine.Reconnect(*args.ConnectProb); err != nil {
		return nil, ReconnectOutput{}, err
	}
	st := s.engine.Stats()
	return nil, ReconnectOutput{ConnectProb: st.Params.ConnectProb, Edges: st.Edges}, nil
}

func (s *Server) handleSetPopulation(ctx context.Context, req *sdk.CallToolRequest, args SetPopulationInput) (_ *sdk.CallToolResult, _ SetPopulationOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("solirona_set_population", start, retErr, toolParams(map[string]any{"count": args.Count}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "solirona_set_population"); err != nil {
		return nil, SetPopulationOutput{}, err
	}

	if args.Count == nil {
		return nil, SetPopulationOutput{}, fmt.Errorf("%w: 'count' parameter is required", simulation.ErrInvalidParameter)
	}
	added, removed, err := s.engine.SetPopulation(*args.Count)
	if err != nil {
		return nil, SetPopulationOutput{}, err
	}
	if added == nil {
		added = []string{}
	}
	if removed == nil {
		removed = []string{}
	}
	return nil, SetPopulationOutput{Added: added, Removed: removed, Population: s.engine.Len()}, nil
}

func (s *Server) handleCollapse(ctx context.Context, req *sdk.CallToolRequest, args CollapseInput) (_ *sdk.CallToolResult, _ CollapseOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("solirona_collapse", start, retErr, toolParams(map[string]any{"id": args.ID}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "solirona_collapse"); err != nil {
		return nil, CollapseOutput{}, err
	}

	if args.ID == "" {
		return nil, CollapseOutput{}, fmt.Errorf("%w: 'id' parameter is required", simulation.ErrInvalidParameter)
	}
	value, now, err := s.engine.Collapse(args.ID)
	if err != nil {
		return nil, CollapseOutput{}, err
	}
	return nil, CollapseOutput{ID: args.ID, Value: value, CollapsedNow: now}, nil
}
