package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/dshills/graphplan-go/graph/store"
)

// ChannelKind classifies a channel in the compiled plan's registry.
//
// Every channel holds an ephemeral last-value-wins slot: a value written in
// one step is visible to subscribers only in the following step and is not
// guaranteed to persist beyond it. The kind distinguishes how the channel
// came to exist, which tooling uses when rendering a plan.
type ChannelKind string

const (
	// ChannelSystem marks the Start and End channels, which have no lowered
	// unit of their own. Start seeds the run; End carries the final value.
	ChannelSystem ChannelKind = "system"

	// ChannelNodeOutput marks a node's own output channel, written
	// unconditionally after the node's action runs.
	ChannelNodeOutput ChannelKind = "node"

	// ChannelBranch marks a dedicated per-(source, branch, destination)
	// channel written by a branch writer stage.
	ChannelBranch ChannelKind = "branch"
)

// BranchChannel returns the dedicated channel name for one concrete
// destination of a branch. The (source, branch name, destination) triple
// keeps distinct branches from ever colliding.
func BranchChannel(source, branch, destination string) string {
	return "branch:" + source + ":" + branch + ":" + destination
}

// PublishFunc delivers a value to a named channel. The external runner
// supplies one when invoking a plan node's writers; within a step every
// channel has exactly one writer stage, so publishes never race.
type PublishFunc[S any] func(channel string, value S)

// Writer is one publish stage attached to a lowered plan node. The runner
// invokes each writer, in order, with the node's action output.
type Writer[S any] interface {
	// Publish delivers the value to this writer's channel(s).
	Publish(ctx context.Context, value S, publish PublishFunc[S]) error
}

// ChannelWrite is the static writer stage: it publishes the value to a fixed
// list of channels. Every lowered node carries one for its own output
// channel; edges into End append another targeting the End channel.
type ChannelWrite[S any] struct {
	// Channels are the registry names this stage publishes to.
	Channels []string
}

// Publish implements the Writer interface for ChannelWrite.
func (w *ChannelWrite[S]) Publish(ctx context.Context, value S, publish PublishFunc[S]) error {
	for _, ch := range w.Channels {
		publish(ch, value)
	}
	return nil
}

// BranchWrite is the branch writer stage: at run time it invokes the path
// function, remaps the returned labels through the branch's ends mapping,
// and publishes the value to the dedicated channel of each resolved
// destination. A destination of End publishes to the End channel directly.
//
// A label absent from a non-nil ends mapping fails with
// UnknownBranchLabelError; this is a run-time routing error, distinguishable
// from action failures via errors.As.
type BranchWrite[S any] struct {
	// Source is the branch's source node.
	Source string

	// Name is the branch name.
	Name string

	// Branch holds the path function and its ends/then configuration.
	Branch Branch[S]

	// Destinations is the branch's concrete destination universe,
	// materialized at compile time. Publishing is driven by the path
	// function's result, not this list; it exists for plan introspection
	// and manifests.
	Destinations []string
}

// Publish implements the Writer interface for BranchWrite.
func (w *BranchWrite[S]) Publish(ctx context.Context, value S, publish PublishFunc[S]) error {
	targets, err := w.Branch.Resolve(ctx, value, w.Source, w.Name)
	if err != nil {
		return err
	}
	for _, target := range targets {
		if target == End {
			publish(End, value)
			continue
		}
		publish(BranchChannel(w.Source, w.Name, target), value)
	}
	return nil
}

// PlanNode is one lowered unit of the compiled plan.
//
// The external runner makes a node eligible when any one of its trigger
// channels has a fresh value in the current step (OR-composition; which
// subset of fired triggers to read is the runner's policy). After the action
// runs, the runner invokes each writer with the output.
type PlanNode[S any] struct {
	// ID is the node identifier.
	ID string

	// Triggers is the set of channels whose fresh write makes this node
	// eligible to run.
	Triggers []string

	// Subscribes lists the channels this node reads its input from. It
	// mirrors Triggers for lowered graphs.
	Subscribes []string

	// Action is the node's unit of work. Nil for the hidden passthrough
	// unit a conditional entry point attaches to Start.
	Action Action[S]

	// Writers are the publish stages invoked, in order, with the action's
	// output.
	Writers []Writer[S]
}

// Plan is the immutable lowered artifact Compile produces: the channel
// registry plus, per node, a trigger-channel set and writer set. It is the
// structure an external step-based runner consumes; the plan itself executes
// nothing.
type Plan[S any] struct {
	// Name identifies the plan in stores and metrics.
	Name string

	// Nodes maps node identifiers to their lowered units.
	Nodes map[string]*PlanNode[S]

	// Channels is the full channel registry.
	Channels map[string]ChannelKind

	// InputChannel is the seed channel for a run (the Start channel).
	InputChannel string

	// OutputChannel is where a completed run's value lands (the End channel).
	OutputChannel string

	// StreamChannels lists the node output channels in attachment order,
	// for runners that stream intermediate values.
	StreamChannels []string

	// InterruptBefore and InterruptAfter list nodes the runner should pause
	// around, validated against the declared node set.
	InterruptBefore []string
	InterruptAfter  []string
}

// check confirms the lowered topology is internally consistent: every
// trigger, subscription, and static write names a registered channel. A
// failure here is a compiler defect, not a caller error.
func (p *Plan[S]) check() error {
	for _, id := range p.sortedNodeIDs() {
		node := p.Nodes[id]
		for _, ch := range node.Triggers {
			if _, ok := p.Channels[ch]; !ok {
				return fmt.Errorf("plan %q: node %q trigger channel %q not in registry", p.Name, id, ch)
			}
		}
		for _, ch := range node.Subscribes {
			if _, ok := p.Channels[ch]; !ok {
				return fmt.Errorf("plan %q: node %q subscribed channel %q not in registry", p.Name, id, ch)
			}
		}
		for _, w := range node.Writers {
			cw, ok := w.(*ChannelWrite[S])
			if !ok {
				continue
			}
			for _, ch := range cw.Channels {
				if _, ok := p.Channels[ch]; !ok {
					return fmt.Errorf("plan %q: node %q writes channel %q not in registry", p.Name, id, ch)
				}
			}
		}
	}
	return nil
}

// sortedNodeIDs returns the plan's node identifiers in lexical order.
func (p *Plan[S]) sortedNodeIDs() []string {
	ids := make([]string, 0, len(p.Nodes))
	for id := range p.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Manifest renders the plan's topology as a serializable manifest: channel
// registry, per-node trigger sets, and writer descriptions. Actions and path
// functions are code, not data, so they are omitted; the manifest is what a
// PlanStore persists for external runners and tooling.
func (p *Plan[S]) Manifest() store.PlanManifest {
	m := store.PlanManifest{
		Name:            p.Name,
		Channels:        make(map[string]string, len(p.Channels)),
		Nodes:           make(map[string]store.NodeManifest, len(p.Nodes)),
		InputChannel:    p.InputChannel,
		OutputChannel:   p.OutputChannel,
		StreamChannels:  append([]string(nil), p.StreamChannels...),
		InterruptBefore: append([]string(nil), p.InterruptBefore...),
		InterruptAfter:  append([]string(nil), p.InterruptAfter...),
	}

	for name, kind := range p.Channels {
		m.Channels[name] = string(kind)
	}

	for id, node := range p.Nodes {
		nm := store.NodeManifest{
			Triggers:   append([]string(nil), node.Triggers...),
			Subscribes: append([]string(nil), node.Subscribes...),
		}
		for _, w := range node.Writers {
			switch wr := w.(type) {
			case *ChannelWrite[S]:
				nm.Writes = append(nm.Writes, store.WriteManifest{
					Kind:     store.WriteChannels,
					Channels: append([]string(nil), wr.Channels...),
				})
			case *BranchWrite[S]:
				nm.Writes = append(nm.Writes, store.WriteManifest{
					Kind:         store.WriteBranch,
					Source:       wr.Source,
					Branch:       wr.Name,
					Destinations: append([]string(nil), wr.Destinations...),
				})
			}
		}
		m.Nodes[id] = nm
	}

	return m
}

// Save persists the plan's manifest to the given store, keyed by plan name.
// Saving again under the same name overwrites the previous manifest.
func (p *Plan[S]) Save(ctx context.Context, st store.PlanStore) error {
	return st.SavePlan(ctx, p.Manifest())
}
