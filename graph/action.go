package graph

import "context"

// Action is the unit of work attached to a node.
//
// The builder and compiler treat an Action as opaque: only its identity and
// its position in the graph matter. At run time the external step runner
// invokes the action with the value read from the node's trigger channels and
// publishes the returned value through the node's writers.
//
// The context carries cancellation and deadlines, so a single synchronous
// Invoke covers both blocking and asynchronous actions; implementations that
// do work in the background should still respect ctx and return the final
// output.
//
// Type parameter S is the value type flowing through the plan's channels.
type Action[S any] interface {
	// Invoke executes the action with the given context and input value.
	Invoke(ctx context.Context, input S) (S, error)
}

// ActionFunc is a function adapter that implements the Action interface.
// It allows using plain functions as node actions without creating custom types.
//
// Example:
//
//	grade := graph.ActionFunc[Review](func(ctx context.Context, r Review) (Review, error) {
//	    r.Score = score(r)
//	    return r, nil
//	})
type ActionFunc[S any] func(ctx context.Context, input S) (S, error)

// Invoke implements the Action interface for ActionFunc.
func (f ActionFunc[S]) Invoke(ctx context.Context, input S) (S, error) {
	return f(ctx, input)
}
