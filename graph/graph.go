package graph

import (
	"github.com/dshills/graphplan-go/graph/emit"
)

// Reserved node identifiers marking the start and end of a run.
//
// Start seeds the plan's input channel; End is the sink channel where the
// external runner observes a completed run's value. Neither can be declared
// as a regular node; Start is only ever an edge/branch source and End only
// ever a target.
const (
	Start = "__start__"
	End   = "__end__"
)

// edge is an ordered (source, target) pair. Edges form a set; duplicates
// collapse at declaration time.
type edge struct {
	from string
	to   string
}

// Graph is a mutable builder for declaring nodes, edges, and conditional
// branches, which Compile lowers into a channel/trigger execution plan for an
// external step-based runner.
//
// A Graph accumulates declarations until Compile (or Validate) is called.
// Compilation snapshots the declaration: mutating the builder afterwards is
// permitted and raises a warning-level event, but never alters an already
// produced plan.
//
// Graph is not safe for concurrent mutation; declare from one goroutine.
//
// Type parameter S is the value type flowing through the plan's channels.
//
// Example:
//
//	g := graph.New[Review](graph.WithGraphName("review"))
//	g.AddNode("grade", gradeAction)
//	g.AddNode("publish", publishAction)
//	g.SetEntryPoint("grade")
//	g.AddConditionalEdges("grade", route,
//	    graph.WithBranchName("verdict"),
//	    graph.WithEnds(map[string]string{"ok": "publish", "stop": graph.End}),
//	)
//	g.SetFinishPoint("publish")
//
//	plan, err := g.Compile()
type Graph[S any] struct {
	name     string
	nodes    map[string]Action[S]
	edges    []edge
	branches map[string]map[string]Branch[S]

	// supportMultipleEdges relaxes the one-unconditional-out-edge rule for
	// runners that merge parallel writers into one state key.
	supportMultipleEdges bool

	compiled bool
	emitter  emit.Emitter
}

// GraphOption configures a Graph at construction time.
type GraphOption func(*graphConfig)

// graphConfig collects construction options before they are applied.
type graphConfig struct {
	name          string
	emitter       emit.Emitter
	multipleEdges bool
}

// WithGraphName sets the graph's name, used in events, metrics labels, and
// as the default plan name. Defaults to "graph".
func WithGraphName(name string) GraphOption {
	return func(cfg *graphConfig) {
		cfg.name = name
	}
}

// WithGraphEmitter sets the emitter that receives declaration warnings and,
// in debug mode, lowering events. Defaults to discarding events.
func WithGraphEmitter(e emit.Emitter) GraphOption {
	return func(cfg *graphConfig) {
		cfg.emitter = e
	}
}

// WithMultipleEdges allows a node to have more than one unconditional
// outgoing edge. Only enable this when the downstream runner merges multiple
// writers into one state key.
func WithMultipleEdges() GraphOption {
	return func(cfg *graphConfig) {
		cfg.multipleEdges = true
	}
}

// New creates an empty graph builder.
//
// Example:
//
//	g := graph.New[MyState](
//	    graph.WithGraphName("pipeline"),
//	    graph.WithGraphEmitter(emit.NewLogEmitter(os.Stderr, false)),
//	)
func New[S any](opts ...GraphOption) *Graph[S] {
	cfg := graphConfig{name: "graph"}
	for _, opt := range opts {
		opt(&cfg)
	}

	var emitter emit.Emitter = emit.NewNullEmitter()
	if cfg.emitter != nil {
		emitter = cfg.emitter
	}

	return &Graph[S]{
		name:                 cfg.name,
		nodes:                make(map[string]Action[S]),
		branches:             make(map[string]map[string]Branch[S]),
		supportMultipleEdges: cfg.multipleEdges,
		emitter:              emitter,
	}
}

// Name returns the graph's name.
func (g *Graph[S]) Name() string {
	return g.name
}

// AddNode declares a node with the given identifier and action.
//
// Returns DuplicateNodeError if the identifier is already declared and
// ReservedNameError if it collides with Start or End. On error the builder
// is left unchanged.
func (g *Graph[S]) AddNode(id string, action Action[S]) error {
	g.warnIfCompiled("node", id)
	if _, ok := g.nodes[id]; ok {
		return &DuplicateNodeError{ID: id}
	}
	if id == Start || id == End {
		return &ReservedNameError{ID: id}
	}

	g.nodes[id] = action
	return nil
}

// AddEdge declares an unconditional transition from one node to another.
//
// The source may be Start and the target may be End. Duplicate pairs
// collapse. Returns InvalidEndpointError when End is used as a source or
// Start as a target, and MultipleEdgesError when the source already has an
// unconditional out-edge and multiple-edge support is disabled.
func (g *Graph[S]) AddEdge(from, to string) error {
	g.warnIfCompiled("edge", from)
	if from == End {
		return &InvalidEndpointError{From: from, To: to}
	}
	if to == Start {
		return &InvalidEndpointError{From: from, To: to}
	}
	if !g.supportMultipleEdges {
		for _, e := range g.edges {
			if e.from == from {
				return &MultipleEdgesError{Source: from}
			}
		}
	}

	for _, e := range g.edges {
		if e.from == from && e.to == to {
			return nil
		}
	}
	g.edges = append(g.edges, edge{from: from, to: to})
	return nil
}

// AddConditionalEdges declares a data-dependent transition out of source.
//
// The path function runs after the source node's action and returns one or
// more labels. Options:
//   - WithBranchName sets the branch name (recommended); without it the name
//     is derived from the path function's identity, falling back to
//     "condition".
//   - WithEnds maps labels to target nodes; omitted, labels are themselves
//     targets and the branch may route to any declared node or End.
//   - WithThen names a convergence node every resolved destination
//     transitions into afterwards.
//
// Returns DuplicateBranchError if the name is already registered for source.
func (g *Graph[S]) AddConditionalEdges(source string, path Path[S], opts ...BranchOption) error {
	g.warnIfCompiled("branch", source)

	cfg := branchConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	name := cfg.name
	if name == "" {
		name = pathName(path)
	}

	if _, ok := g.branches[source][name]; ok {
		return &DuplicateBranchError{Source: source, Name: name}
	}

	if g.branches[source] == nil {
		g.branches[source] = make(map[string]Branch[S])
	}
	g.branches[source][name] = Branch[S]{Path: path, Ends: cfg.ends, Then: cfg.then}
	return nil
}

// SetEntryPoint declares the first node to run: sugar for an edge from Start.
func (g *Graph[S]) SetEntryPoint(id string) error {
	return g.AddEdge(Start, id)
}

// SetConditionalEntryPoint declares a data-dependent entry: sugar for a
// conditional edge out of Start. The path function receives the run's input
// value.
func (g *Graph[S]) SetConditionalEntryPoint(path Path[S], opts ...BranchOption) error {
	return g.AddConditionalEdges(Start, path, opts...)
}

// SetFinishPoint marks a node as a finish point: sugar for an edge to End.
func (g *Graph[S]) SetFinishPoint(id string) error {
	return g.AddEdge(id, End)
}

// warnIfCompiled raises a warning-level event when the builder is mutated
// after a plan was already produced. The mutation is still applied; it just
// has no effect on existing plans.
func (g *Graph[S]) warnIfCompiled(kind, id string) {
	if !g.compiled {
		return
	}
	g.emitter.Emit(emit.Event{
		Graph:  g.name,
		Phase:  emit.PhaseDeclare,
		NodeID: id,
		Msg:    "mutated_after_compile",
		Meta: map[string]interface{}{
			"kind": kind,
		},
	})
}
