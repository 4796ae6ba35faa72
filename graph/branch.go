package graph

import (
	"context"
	"reflect"
	"runtime"
	"strings"
)

// Path is the routing function attached to a conditional edge.
//
// Given the source node's output it returns one or more labels. When the
// branch carries an ends mapping, labels are remapped through it; otherwise
// labels are treated as target node identifiers directly.
//
// Type parameter S is the value type flowing through the plan's channels.
type Path[S any] interface {
	// Route inspects the value and returns the chosen label(s).
	Route(ctx context.Context, input S) ([]string, error)
}

// PathFunc adapts a single-label routing function to the Path interface.
//
// Example:
//
//	route := graph.PathFunc[Review](func(ctx context.Context, r Review) (string, error) {
//	    if r.Score > 0.8 {
//	        return "approve", nil
//	    }
//	    return "revise", nil
//	})
type PathFunc[S any] func(ctx context.Context, input S) (string, error)

// Route implements the Path interface for PathFunc.
func (f PathFunc[S]) Route(ctx context.Context, input S) ([]string, error) {
	label, err := f(ctx, input)
	if err != nil {
		return nil, err
	}
	return []string{label}, nil
}

// MultiPathFunc adapts a multi-label routing function to the Path interface.
// Returning more than one label fans the run out to every named destination
// in the same step.
type MultiPathFunc[S any] func(ctx context.Context, input S) ([]string, error)

// Route implements the Path interface for MultiPathFunc.
func (f MultiPathFunc[S]) Route(ctx context.Context, input S) ([]string, error) {
	return f(ctx, input)
}

// Branch is a named, data-dependent transition out of one node.
//
// Path picks the label(s) at run time. Ends optionally remaps labels to
// target node identifiers; when nil, labels are themselves targets and the
// destination universe is every other declared node plus End. Then optionally
// names a convergence node that every resolved destination transitions into
// unconditionally after executing.
type Branch[S any] struct {
	// Path is the routing function.
	Path Path[S]

	// Ends maps returned labels to target node identifiers. Nil means labels
	// are targets.
	Ends map[string]string

	// Then is the optional convergence node.
	Then string
}

// Resolve invokes the path function and maps its labels to concrete target
// identifiers. A label missing from a non-nil Ends mapping yields an
// UnknownBranchLabelError; source and name identify the branch in that error.
func (b Branch[S]) Resolve(ctx context.Context, input S, source, name string) ([]string, error) {
	labels, err := b.Path.Route(ctx, input)
	if err != nil {
		return nil, err
	}
	if b.Ends == nil {
		return labels, nil
	}
	targets := make([]string, len(labels))
	for i, label := range labels {
		target, ok := b.Ends[label]
		if !ok {
			return nil, &UnknownBranchLabelError{Source: source, Branch: name, Label: label}
		}
		targets[i] = target
	}
	return targets, nil
}

// namer lets custom Path implementations control their derived branch name.
type namer interface {
	Name() string
}

// pathName derives a branch name from the path function's identity.
//
// This is a compatibility shim for declarations that omit WithBranchName:
// function values are named after their symbol, custom Path implementations
// may provide Name(), and anything else falls back to "condition". Prefer an
// explicit name; symbol-derived names break when a function is renamed.
func pathName[S any](path Path[S]) string {
	if n, ok := path.(namer); ok {
		if name := n.Name(); name != "" {
			return name
		}
	}

	v := reflect.ValueOf(path)
	if v.Kind() == reflect.Func {
		if fn := runtime.FuncForPC(v.Pointer()); fn != nil {
			name := fn.Name()
			// Trim the package path and any method-value suffix. Closure
			// symbols end in generated segments ("funcN", or bare digits when
			// nested), which carry no usable name.
			if i := strings.LastIndex(name, "."); i >= 0 {
				name = name[i+1:]
			}
			name = strings.TrimSuffix(name, "-fm")
			if name != "" && !strings.HasPrefix(name, "func") && !allDigits(name) {
				return name
			}
		}
	}
	return "condition"
}

// allDigits reports whether s consists solely of ASCII digits.
func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
