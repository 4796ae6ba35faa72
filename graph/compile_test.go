package graph

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/dshills/graphplan-go/graph/emit"
	"github.com/dshills/graphplan-go/graph/store"
)

// capture returns a PublishFunc that records every publish, plus the record.
func capture() (PublishFunc[TestState], map[string][]TestState) {
	published := make(map[string][]TestState)
	return func(channel string, value TestState) {
		published[channel] = append(published[channel], value)
	}, published
}

// runWriters invokes every writer of a plan node with the given value.
func runWriters(t *testing.T, node *PlanNode[TestState], value TestState, publish PublishFunc[TestState]) {
	t.Helper()
	ctx := context.Background()
	for _, w := range node.Writers {
		if err := w.Publish(ctx, value, publish); err != nil {
			t.Fatalf("writer on %q failed: %v", node.ID, err)
		}
	}
}

func TestCompile_LinearGraph(t *testing.T) {
	g := linearGraph(t)
	plan, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	// A's trigger set is the entry channel.
	a := plan.Nodes["a"]
	if !reflect.DeepEqual(a.Triggers, []string{Start}) {
		t.Errorf("a.Triggers = %v, want [%s]", a.Triggers, Start)
	}

	// B's trigger set is A's output channel.
	b := plan.Nodes["b"]
	if !reflect.DeepEqual(b.Triggers, []string{"a"}) {
		t.Errorf("b.Triggers = %v, want [a]", b.Triggers)
	}

	// B's writers publish its own output channel and the terminal channel.
	publish, published := capture()
	runWriters(t, b, TestState{Value: "done"}, publish)
	if len(published["b"]) != 1 {
		t.Errorf("expected 1 write to b's output channel, got %d", len(published["b"]))
	}
	if len(published[End]) != 1 {
		t.Errorf("expected 1 write to the terminal channel, got %d", len(published[End]))
	}

	// System channels exist with no lowered unit.
	if plan.Channels[Start] != ChannelSystem || plan.Channels[End] != ChannelSystem {
		t.Error("expected START and END system channels in the registry")
	}
	if _, ok := plan.Nodes[End]; ok {
		t.Error("END must not have a lowered unit")
	}
	if plan.InputChannel != Start || plan.OutputChannel != End {
		t.Errorf("input/output channels = %q/%q, want %q/%q",
			plan.InputChannel, plan.OutputChannel, Start, End)
	}
}

func TestCompile_BranchWritesOnlyResolvedChannel(t *testing.T) {
	g := New[TestState]()
	for _, id := range []string{"s", "a", "b"} {
		if err := g.AddNode(id, passAction()); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
	}
	if err := g.SetEntryPoint("s"); err != nil {
		t.Fatalf("SetEntryPoint failed: %v", err)
	}
	err := g.AddConditionalEdges("s", labelPath("x"),
		WithBranchName("pick"),
		WithEnds(map[string]string{"x": "a", "y": "b"}))
	if err != nil {
		t.Fatalf("AddConditionalEdges failed: %v", err)
	}
	if err := g.SetFinishPoint("a"); err != nil {
		t.Fatalf("SetFinishPoint failed: %v", err)
	}
	if err := g.SetFinishPoint("b"); err != nil {
		t.Fatalf("SetFinishPoint failed: %v", err)
	}

	plan, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	chanA := BranchChannel("s", "pick", "a")
	chanB := BranchChannel("s", "pick", "b")

	// Both dedicated channels are materialized and wired as triggers.
	if plan.Channels[chanA] != ChannelBranch || plan.Channels[chanB] != ChannelBranch {
		t.Fatalf("expected dedicated branch channels %q and %q in registry", chanA, chanB)
	}
	if !reflect.DeepEqual(plan.Nodes["a"].Triggers, []string{chanA}) {
		t.Errorf("a.Triggers = %v, want [%s]", plan.Nodes["a"].Triggers, chanA)
	}
	if !reflect.DeepEqual(plan.Nodes["b"].Triggers, []string{chanB}) {
		t.Errorf("b.Triggers = %v, want [%s]", plan.Nodes["b"].Triggers, chanB)
	}

	// The path picks "x", so only (s, pick, a) receives a write.
	publish, published := capture()
	runWriters(t, plan.Nodes["s"], TestState{}, publish)
	if len(published[chanA]) != 1 {
		t.Errorf("expected 1 write to %q, got %d", chanA, len(published[chanA]))
	}
	if len(published[chanB]) != 0 {
		t.Errorf("expected no writes to %q, got %d", chanB, len(published[chanB]))
	}
}

func TestCompile_BranchFanOut(t *testing.T) {
	g := New[TestState]()
	for _, id := range []string{"s", "a", "b"} {
		if err := g.AddNode(id, passAction()); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
	}
	if err := g.SetEntryPoint("s"); err != nil {
		t.Fatalf("SetEntryPoint failed: %v", err)
	}
	multi := MultiPathFunc[TestState](func(ctx context.Context, s TestState) ([]string, error) {
		return []string{"a", "b"}, nil
	})
	if err := g.AddConditionalEdges("s", multi, WithBranchName("both")); err != nil {
		t.Fatalf("AddConditionalEdges failed: %v", err)
	}
	if err := g.SetFinishPoint("a"); err != nil {
		t.Fatalf("SetFinishPoint failed: %v", err)
	}
	if err := g.SetFinishPoint("b"); err != nil {
		t.Fatalf("SetFinishPoint failed: %v", err)
	}

	plan, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	// No ends mapping: one dedicated channel per other declared node.
	publish, published := capture()
	runWriters(t, plan.Nodes["s"], TestState{}, publish)
	for _, dest := range []string{"a", "b"} {
		ch := BranchChannel("s", "both", dest)
		if len(published[ch]) != 1 {
			t.Errorf("expected 1 write to %q, got %d", ch, len(published[ch]))
		}
	}
}

func TestCompile_BranchToEnd(t *testing.T) {
	g := New[TestState]()
	for _, id := range []string{"s", "a"} {
		if err := g.AddNode(id, passAction()); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
	}
	if err := g.SetEntryPoint("s"); err != nil {
		t.Fatalf("SetEntryPoint failed: %v", err)
	}
	err := g.AddConditionalEdges("s", labelPath("stop"),
		WithBranchName("gate"),
		WithEnds(map[string]string{"go": "a", "stop": End}))
	if err != nil {
		t.Fatalf("AddConditionalEdges failed: %v", err)
	}
	if err := g.SetFinishPoint("a"); err != nil {
		t.Fatalf("SetFinishPoint failed: %v", err)
	}

	plan, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	// An End destination writes the terminal channel directly; there is no
	// dedicated branch channel for it.
	if _, ok := plan.Channels[BranchChannel("s", "gate", End)]; ok {
		t.Error("unexpected dedicated branch channel for END")
	}

	publish, published := capture()
	runWriters(t, plan.Nodes["s"], TestState{Value: "final"}, publish)
	if len(published[End]) != 1 {
		t.Errorf("expected 1 write to the terminal channel, got %d", len(published[End]))
	}
	if len(published[BranchChannel("s", "gate", "a")]) != 0 {
		t.Error("unexpected write to the untaken destination channel")
	}
}

func TestCompile_ThenConvergence(t *testing.T) {
	g := New[TestState]()
	for _, id := range []string{"s", "a", "b", "then"} {
		if err := g.AddNode(id, passAction()); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
	}
	if err := g.SetEntryPoint("s"); err != nil {
		t.Fatalf("SetEntryPoint failed: %v", err)
	}
	err := g.AddConditionalEdges("s", labelPath("x"),
		WithBranchName("split"),
		WithEnds(map[string]string{"x": "a", "y": "b"}),
		WithThen("then"))
	if err != nil {
		t.Fatalf("AddConditionalEdges failed: %v", err)
	}
	if err := g.SetFinishPoint("then"); err != nil {
		t.Fatalf("SetFinishPoint failed: %v", err)
	}

	plan, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	// Both destinations trigger the convergence node through their own
	// output channels, exactly like explicit edges.
	thenTriggers := append([]string(nil), plan.Nodes["then"].Triggers...)
	sort.Strings(thenTriggers)
	if !reflect.DeepEqual(thenTriggers, []string{"a", "b"}) {
		t.Errorf("then.Triggers = %v, want [a b]", thenTriggers)
	}

	// The branch source must not trigger the convergence node directly.
	for _, trigger := range plan.Nodes["then"].Triggers {
		if trigger == "s" {
			t.Error("convergence node is triggered directly by the branch source")
		}
	}
}

func TestCompile_ThenWithEndDestination(t *testing.T) {
	g := New[TestState]()
	for _, id := range []string{"classify", "billing", "technical", "respond"} {
		if err := g.AddNode(id, passAction()); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
	}
	if err := g.SetEntryPoint("classify"); err != nil {
		t.Fatalf("SetEntryPoint failed: %v", err)
	}
	err := g.AddConditionalEdges("classify", labelPath("spam"),
		WithBranchName("triage"),
		WithEnds(map[string]string{
			"billing":   "billing",
			"technical": "technical",
			"spam":      End,
		}),
		WithThen("respond"))
	if err != nil {
		t.Fatalf("AddConditionalEdges failed: %v", err)
	}
	if err := g.SetFinishPoint("respond"); err != nil {
		t.Fatalf("SetFinishPoint failed: %v", err)
	}

	plan, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	// Only the node destinations converge; END is a sink with no implied
	// edge into the convergence node.
	thenTriggers := append([]string(nil), plan.Nodes["respond"].Triggers...)
	sort.Strings(thenTriggers)
	if !reflect.DeepEqual(thenTriggers, []string{"billing", "technical"}) {
		t.Errorf("respond.Triggers = %v, want [billing technical]", thenTriggers)
	}

	// The spam label writes the terminal channel directly.
	publish, published := capture()
	runWriters(t, plan.Nodes["classify"], TestState{}, publish)
	if len(published[End]) != 1 {
		t.Errorf("expected 1 write to the terminal channel, got %d", len(published[End]))
	}
}

func TestCompile_StartToEnd(t *testing.T) {
	// A graph that is nothing but START -> END lowers into the hidden
	// passthrough unit writing the terminal channel.
	g := New[TestState]()
	if err := g.AddEdge(Start, End); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	plan, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	hidden, ok := plan.Nodes[Start]
	if !ok {
		t.Fatal("expected a hidden START unit")
	}
	if hidden.Action != nil {
		t.Error("hidden START unit must be a passthrough (nil action)")
	}

	publish, published := capture()
	runWriters(t, hidden, TestState{Value: "seed"}, publish)
	if len(published[End]) != 1 {
		t.Errorf("expected 1 write to the terminal channel, got %d", len(published[End]))
	}
}

func TestCompile_ConditionalEntryPoint(t *testing.T) {
	g := New[TestState]()
	for _, id := range []string{"a", "b"} {
		if err := g.AddNode(id, passAction()); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
	}
	err := g.SetConditionalEntryPoint(labelPath("a"),
		WithBranchName("first"),
		WithEnds(map[string]string{"a": "a", "b": "b"}))
	if err != nil {
		t.Fatalf("SetConditionalEntryPoint failed: %v", err)
	}
	if err := g.SetFinishPoint("a"); err != nil {
		t.Fatalf("SetFinishPoint failed: %v", err)
	}
	if err := g.SetFinishPoint("b"); err != nil {
		t.Fatalf("SetFinishPoint failed: %v", err)
	}

	plan, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	// A conditional entry point needs a hidden passthrough unit on START.
	hidden, ok := plan.Nodes[Start]
	if !ok {
		t.Fatal("expected a hidden START unit for the conditional entry point")
	}
	if hidden.Action != nil {
		t.Error("hidden START unit must be a passthrough (nil action)")
	}
	if !reflect.DeepEqual(hidden.Triggers, []string{Start}) {
		t.Errorf("hidden START triggers = %v, want [%s]", hidden.Triggers, Start)
	}

	// Its branch writer routes the seed value onward.
	publish, published := capture()
	runWriters(t, hidden, TestState{}, publish)
	if len(published[BranchChannel(Start, "first", "a")]) != 1 {
		t.Error("expected the entry branch to publish the chosen destination channel")
	}
}

func TestCompile_UnknownLabelAtInvocationTime(t *testing.T) {
	g := New[TestState]()
	for _, id := range []string{"s", "a"} {
		if err := g.AddNode(id, passAction()); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
	}
	if err := g.SetEntryPoint("s"); err != nil {
		t.Fatalf("SetEntryPoint failed: %v", err)
	}
	err := g.AddConditionalEdges("s", labelPath("nope"),
		WithBranchName("pick"),
		WithEnds(map[string]string{"x": "a"}))
	if err != nil {
		t.Fatalf("AddConditionalEdges failed: %v", err)
	}
	if err := g.SetFinishPoint("a"); err != nil {
		t.Fatalf("SetFinishPoint failed: %v", err)
	}

	// Compilation succeeds: the label mismatch is a run-time concern.
	plan, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	publish, _ := capture()
	var publishErr error
	ctx := context.Background()
	for _, w := range plan.Nodes["s"].Writers {
		if err := w.Publish(ctx, TestState{}, publish); err != nil {
			publishErr = err
			break
		}
	}

	var unknown *UnknownBranchLabelError
	if !errors.As(publishErr, &unknown) {
		t.Fatalf("expected UnknownBranchLabelError, got %v", publishErr)
	}
	if unknown.Source != "s" || unknown.Branch != "pick" || unknown.Label != "nope" {
		t.Errorf("UnknownBranchLabelError = %+v, want s/pick/nope", unknown)
	}
}

func TestCompile_RepeatedCompilesAreIsomorphic(t *testing.T) {
	build := func() *Graph[TestState] {
		g := New[TestState]()
		for _, id := range []string{"s", "a", "b", "merge"} {
			if err := g.AddNode(id, passAction()); err != nil {
				t.Fatalf("AddNode failed: %v", err)
			}
		}
		if err := g.SetEntryPoint("s"); err != nil {
			t.Fatalf("SetEntryPoint failed: %v", err)
		}
		err := g.AddConditionalEdges("s", labelPath("x"),
			WithBranchName("split"),
			WithEnds(map[string]string{"x": "a", "y": "b"}),
			WithThen("merge"))
		if err != nil {
			t.Fatalf("AddConditionalEdges failed: %v", err)
		}
		if err := g.SetFinishPoint("merge"); err != nil {
			t.Fatalf("SetFinishPoint failed: %v", err)
		}
		return g
	}

	g := build()
	first, err := g.Compile()
	if err != nil {
		t.Fatalf("first Compile failed: %v", err)
	}
	second, err := g.Compile()
	if err != nil {
		t.Fatalf("second Compile failed: %v", err)
	}

	if !reflect.DeepEqual(first.Channels, second.Channels) {
		t.Error("channel registries differ between compiles")
	}
	if !reflect.DeepEqual(shapeOf(first), shapeOf(second)) {
		t.Error("trigger-set shapes differ between compiles")
	}
	if !reflect.DeepEqual(first.StreamChannels, second.StreamChannels) {
		t.Error("stream channel order differs between compiles")
	}
}

// shapeOf reduces a plan to its node -> trigger-set shape.
func shapeOf(p *Plan[TestState]) map[string][]string {
	shape := make(map[string][]string, len(p.Nodes))
	for id, node := range p.Nodes {
		triggers := append([]string(nil), node.Triggers...)
		sort.Strings(triggers)
		shape[id] = triggers
	}
	return shape
}

func TestCompile_Interrupts(t *testing.T) {
	g := linearGraph(t)
	plan, err := g.Compile(WithInterruptBefore("a"), WithInterruptAfter("b"))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if !reflect.DeepEqual(plan.InterruptBefore, []string{"a"}) {
		t.Errorf("InterruptBefore = %v, want [a]", plan.InterruptBefore)
	}
	if !reflect.DeepEqual(plan.InterruptAfter, []string{"b"}) {
		t.Errorf("InterruptAfter = %v, want [b]", plan.InterruptAfter)
	}

	bad := linearGraph(t)
	_, err = bad.Compile(WithInterruptBefore("ghost"))
	var unknown *UnknownInterruptNodeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownInterruptNodeError, got %v", err)
	}
}

func TestCompile_ValidationFailureAbortsCompilation(t *testing.T) {
	g := New[TestState]()
	if err := g.AddNode("loner", passAction()); err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}

	plan, err := g.Compile()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if plan != nil {
		t.Error("expected no partial plan on validation failure")
	}
}

func TestCompile_DebugEvents(t *testing.T) {
	buffer := emit.NewBufferedEmitter()
	g := linearGraph(t)

	_, err := g.Compile(WithPlanName("debug"), WithCompileEmitter(buffer), WithDebug())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	attached := buffer.HistoryWithFilter("debug", emit.HistoryFilter{Msg: "node_attached"})
	if len(attached) != 2 {
		t.Errorf("expected 2 node_attached events, got %d", len(attached))
	}
	compiled := buffer.HistoryWithFilter("debug", emit.HistoryFilter{Msg: "plan_compiled"})
	if len(compiled) != 1 {
		t.Errorf("expected 1 plan_compiled event, got %d", len(compiled))
	}
}

func TestPlan_Manifest(t *testing.T) {
	g := New[TestState](WithGraphName("manifested"))
	for _, id := range []string{"s", "a"} {
		if err := g.AddNode(id, passAction()); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
	}
	if err := g.SetEntryPoint("s"); err != nil {
		t.Fatalf("SetEntryPoint failed: %v", err)
	}
	err := g.AddConditionalEdges("s", labelPath("x"),
		WithBranchName("pick"),
		WithEnds(map[string]string{"x": "a"}))
	if err != nil {
		t.Fatalf("AddConditionalEdges failed: %v", err)
	}
	if err := g.SetFinishPoint("a"); err != nil {
		t.Fatalf("SetFinishPoint failed: %v", err)
	}

	plan, err := g.Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	m := plan.Manifest()
	if m.Name != "manifested" {
		t.Errorf("manifest name = %q, want %q", m.Name, "manifested")
	}
	if m.Channels[BranchChannel("s", "pick", "a")] != string(ChannelBranch) {
		t.Error("manifest missing the dedicated branch channel")
	}

	var branchWrite *store.WriteManifest
	for _, w := range m.Nodes["s"].Writes {
		if w.Kind == store.WriteBranch {
			w := w
			branchWrite = &w
		}
	}
	if branchWrite == nil {
		t.Fatal("manifest missing the branch writer description")
	}
	if branchWrite.Source != "s" || branchWrite.Branch != "pick" {
		t.Errorf("branch write = %+v, want source s, branch pick", branchWrite)
	}
	if !reflect.DeepEqual(branchWrite.Destinations, []string{"a"}) {
		t.Errorf("branch write destinations = %v, want [a]", branchWrite.Destinations)
	}
}

func TestPlan_SaveToStore(t *testing.T) {
	g := linearGraph(t)
	plan, err := g.Compile(WithPlanName("persisted"))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	st := store.NewMemStore()
	ctx := context.Background()
	if err := plan.Save(ctx, st); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := st.LoadPlan(ctx, "persisted")
	if err != nil {
		t.Fatalf("LoadPlan failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, plan.Manifest()) {
		t.Error("loaded manifest differs from the saved one")
	}
}
