package graph

import (
	"sort"
	"time"

	"github.com/dshills/graphplan-go/graph/emit"
)

// Compile validates the declared graph and lowers it into a channel/trigger
// execution plan.
//
// Lowering rules:
//   - Every declared node gets an ephemeral output channel named after it, an
//     initially empty trigger set, and a static writer to its own channel.
//   - An unconditional edge (s, t) appends s's output channel to t's trigger
//     set; an edge into End instead appends a writer on s targeting the End
//     channel.
//   - A branch (s, name) appends a branch writer stage to s and allocates one
//     dedicated channel per concrete destination, each added to that
//     destination's trigger set. A branch without an ends mapping
//     materializes every other declared node as a destination. A convergence
//     node wires an edge-equivalent from every destination into it.
//   - Start and End get system channels with no lowered unit.
//
// Compile snapshots the builder: later mutations do not affect the returned
// plan. Iteration is sorted throughout, so compiling the same declaration
// twice yields structurally identical plans.
//
// Validation failures abort compilation; there is no partial plan.
func (g *Graph[S]) Compile(opts ...CompileOption) (*Plan[S], error) {
	cfg := compileConfig{name: g.name}
	for _, opt := range opts {
		opt(&cfg)
	}

	emitter := g.emitter
	if cfg.emitter != nil {
		emitter = cfg.emitter
	}

	began := time.Now()

	interrupts := make([]string, 0, len(cfg.interruptBefore)+len(cfg.interruptAfter))
	interrupts = append(interrupts, cfg.interruptBefore...)
	interrupts = append(interrupts, cfg.interruptAfter...)

	if err := g.Validate(interrupts...); err != nil {
		if cfg.metrics != nil {
			cfg.metrics.IncValidationFailure(cfg.name, errorKind(err))
			cfg.metrics.ObserveCompile(cfg.name, time.Since(began), "invalid")
		}
		emitter.Emit(emit.Event{
			Graph: cfg.name,
			Phase: emit.PhaseValidate,
			Msg:   "validation_failed",
			Meta: map[string]interface{}{
				"error": err.Error(),
			},
		})
		return nil, err
	}

	plan := &Plan[S]{
		Name:  cfg.name,
		Nodes: make(map[string]*PlanNode[S]),
		Channels: map[string]ChannelKind{
			Start: ChannelSystem,
			End:   ChannelSystem,
		},
		InputChannel:    Start,
		OutputChannel:   End,
		InterruptBefore: append([]string(nil), cfg.interruptBefore...),
		InterruptAfter:  append([]string(nil), cfg.interruptAfter...),
	}

	for _, id := range g.sortedNodes() {
		plan.attachNode(id, g.nodes[id])
		if cfg.debug {
			emitter.Emit(emit.Event{
				Graph: cfg.name, Phase: emit.PhaseCompile, NodeID: id,
				Msg:  "node_attached",
				Meta: map[string]interface{}{"channel": id},
			})
		}
	}

	for _, e := range g.sortedEdges() {
		plan.attachEdge(e.from, e.to)
		if cfg.debug {
			emitter.Emit(emit.Event{
				Graph: cfg.name, Phase: emit.PhaseCompile, NodeID: e.from,
				Msg:  "edge_attached",
				Meta: map[string]interface{}{"target": e.to},
			})
		}
	}

	for _, source := range g.sortedBranchSources() {
		branches := g.branches[source]
		for _, name := range sortedBranchNames(branches) {
			b := branches[name]
			destinations := g.branchDestinations(source, b)
			plan.attachBranch(source, name, b, destinations)

			// Convergence composes exactly like explicit edges once the
			// destinations are known.
			if b.Then != "" {
				for _, end := range destinations {
					if end != End && end != b.Then {
						plan.attachEdge(end, b.Then)
					}
				}
			}

			if cfg.debug {
				emitter.Emit(emit.Event{
					Graph: cfg.name, Phase: emit.PhaseCompile, NodeID: source,
					Msg: "branch_attached",
					Meta: map[string]interface{}{
						"branch":       name,
						"destinations": len(destinations),
					},
				})
			}
		}
	}

	if err := plan.check(); err != nil {
		if cfg.metrics != nil {
			cfg.metrics.ObserveCompile(cfg.name, time.Since(began), "error")
		}
		return nil, err
	}

	if cfg.metrics != nil {
		cfg.metrics.ObserveCompile(cfg.name, time.Since(began), "ok")
		cfg.metrics.SetTopologySize(cfg.name, len(g.nodes), len(g.edges), g.branchCount())
		cfg.metrics.SetChannelsAllocated(cfg.name, len(plan.Channels))
	}

	emitter.Emit(emit.Event{
		Graph: cfg.name,
		Phase: emit.PhaseCompile,
		Msg:   "plan_compiled",
		Meta: map[string]interface{}{
			"nodes":       len(plan.Nodes),
			"channels":    len(plan.Channels),
			"duration_ms": time.Since(began).Milliseconds(),
		},
	})

	return plan, nil
}

// attachNode allocates the node's output channel and lowered unit: empty
// trigger set, the declared action, and a static writer to its own channel.
func (p *Plan[S]) attachNode(id string, action Action[S]) {
	p.Channels[id] = ChannelNodeOutput
	p.Nodes[id] = &PlanNode[S]{
		ID:     id,
		Action: action,
		Writers: []Writer[S]{
			&ChannelWrite[S]{Channels: []string{id}},
		},
	}
	p.StreamChannels = append(p.StreamChannels, id)
}

// attachEdge lowers one unconditional edge. An edge into End appends a
// writer targeting the End channel; any other edge subscribes the target to
// the source's output channel as an OR-trigger. A direct Start-to-End edge
// lowers through the hidden Start passthrough unit.
func (p *Plan[S]) attachEdge(from, to string) {
	if to == End {
		node := p.Nodes[from]
		if from == Start {
			node = p.startUnit()
		}
		node.Writers = append(node.Writers, &ChannelWrite[S]{Channels: []string{End}})
		return
	}
	node := p.Nodes[to]
	node.Triggers = appendUnique(node.Triggers, from)
	node.Subscribes = appendUnique(node.Subscribes, from)
}

// startUnit returns the hidden passthrough unit on Start, creating it on
// first use. It triggers on the Start channel and carries no action; the
// runner passes the seed value straight to its writers.
func (p *Plan[S]) startUnit() *PlanNode[S] {
	node, ok := p.Nodes[Start]
	if !ok {
		node = &PlanNode[S]{
			ID:         Start,
			Triggers:   []string{Start},
			Subscribes: []string{Start},
		}
		p.Nodes[Start] = node
	}
	return node
}

// attachBranch lowers one branch: a hidden passthrough unit when the branch
// leaves Start, a branch writer stage on the source, and one dedicated
// channel plus trigger per concrete destination.
func (p *Plan[S]) attachBranch(source, name string, b Branch[S], destinations []string) {
	node := p.Nodes[source]
	if source == Start {
		node = p.startUnit()
	}
	node.Writers = append(node.Writers, &BranchWrite[S]{
		Source:       source,
		Name:         name,
		Branch:       b,
		Destinations: destinations,
	})

	for _, end := range destinations {
		if end == End {
			continue
		}
		channel := BranchChannel(source, name, end)
		p.Channels[channel] = ChannelBranch
		target := p.Nodes[end]
		target.Triggers = appendUnique(target.Triggers, channel)
		target.Subscribes = appendUnique(target.Subscribes, channel)
	}
}

// branchDestinations materializes a branch's concrete destination universe
// from the declaration snapshot: the explicit ends values, or, lacking an
// ends mapping, every declared node other than the source and the
// convergence node. Sorted and deduplicated.
func (g *Graph[S]) branchDestinations(source string, b Branch[S]) []string {
	seen := make(map[string]bool)
	var destinations []string

	if b.Ends != nil {
		for _, end := range b.Ends {
			if !seen[end] {
				seen[end] = true
				destinations = append(destinations, end)
			}
		}
	} else {
		for node := range g.nodes {
			if node != source && node != b.Then && !seen[node] {
				seen[node] = true
				destinations = append(destinations, node)
			}
		}
	}

	sort.Strings(destinations)
	return destinations
}

// sortedEdges returns the edge set ordered by (source, target).
func (g *Graph[S]) sortedEdges() []edge {
	edges := make([]edge, len(g.edges))
	copy(edges, g.edges)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].from != edges[j].from {
			return edges[i].from < edges[j].from
		}
		return edges[i].to < edges[j].to
	})
	return edges
}

// branchCount returns the total number of declared branches.
func (g *Graph[S]) branchCount() int {
	n := 0
	for _, branches := range g.branches {
		n += len(branches)
	}
	return n
}

// appendUnique appends s to list unless already present, keeping trigger and
// subscription lists set-like.
func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
