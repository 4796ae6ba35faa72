package graph

import "github.com/dshills/graphplan-go/graph/emit"

// BranchOption configures a conditional edge declared with
// AddConditionalEdges or SetConditionalEntryPoint.
type BranchOption func(*branchConfig)

// branchConfig collects branch options before the Branch is stored.
type branchConfig struct {
	name string
	ends map[string]string
	then string
}

// WithBranchName sets the branch's name explicitly.
//
// Branch names must be unique per source node. Prefer an explicit name over
// the identity-derived default; names derived from function symbols change
// when the function is renamed.
func WithBranchName(name string) BranchOption {
	return func(cfg *branchConfig) {
		cfg.name = name
	}
}

// WithEnds maps the labels returned by the path function to target node
// identifiers. A label may map to End to finish the run.
//
// Without an ends mapping, labels are treated as target identifiers and the
// branch's destination universe is every other declared node plus End.
func WithEnds(ends map[string]string) BranchOption {
	return func(cfg *branchConfig) {
		cfg.ends = ends
	}
}

// WithThen names a convergence node. Every destination the branch resolves
// to will, after executing, transition unconditionally into this node.
func WithThen(node string) BranchOption {
	return func(cfg *branchConfig) {
		cfg.then = node
	}
}

// CompileOption configures a single Compile call.
//
// Options follow the builder's functional-option style:
//
//	plan, err := g.Compile(
//	    graph.WithInterruptBefore("review"),
//	    graph.WithMetrics(metrics),
//	)
type CompileOption func(*compileConfig)

// compileConfig collects compile options before lowering starts.
type compileConfig struct {
	name            string
	interruptBefore []string
	interruptAfter  []string
	debug           bool
	emitter         emit.Emitter
	metrics         *CompileMetrics
}

// WithPlanName overrides the plan's name, which otherwise defaults to the
// graph's name. The name keys the plan in a store.PlanStore and labels
// metrics.
func WithPlanName(name string) CompileOption {
	return func(cfg *compileConfig) {
		cfg.name = name
	}
}

// WithInterruptBefore lists nodes the external runner should pause before
// executing. Each entry must name a declared node; validation fails with
// UnknownInterruptNodeError otherwise.
func WithInterruptBefore(nodes ...string) CompileOption {
	return func(cfg *compileConfig) {
		cfg.interruptBefore = append(cfg.interruptBefore, nodes...)
	}
}

// WithInterruptAfter lists nodes the external runner should pause after
// executing. Validated like WithInterruptBefore.
func WithInterruptAfter(nodes ...string) CompileOption {
	return func(cfg *compileConfig) {
		cfg.interruptAfter = append(cfg.interruptAfter, nodes...)
	}
}

// WithDebug emits one event per lowering step (node, edge, and branch
// attachment) to the compile emitter. Useful when a plan's trigger wiring
// needs to be inspected.
func WithDebug() CompileOption {
	return func(cfg *compileConfig) {
		cfg.debug = true
	}
}

// WithCompileEmitter overrides the graph's emitter for this compilation.
func WithCompileEmitter(e emit.Emitter) CompileOption {
	return func(cfg *compileConfig) {
		cfg.emitter = e
	}
}

// WithMetrics records compile outcomes, durations, and topology sizes to the
// given Prometheus metrics collector.
func WithMetrics(m *CompileMetrics) CompileOption {
	return func(cfg *compileConfig) {
		cfg.metrics = m
	}
}
