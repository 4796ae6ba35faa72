// Package graph provides the graph builder and lowering compiler for GraphPlan-Go.
package graph

import "fmt"

// DuplicateNodeError is returned by AddNode when the node ID is already declared.
type DuplicateNodeError struct {
	// ID is the node identifier that was declared twice.
	ID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node %q already present", e.ID)
}

// ReservedNameError is returned by AddNode when the node ID collides with one
// of the reserved identifiers Start or End.
type ReservedNameError struct {
	// ID is the reserved identifier the caller tried to declare.
	ID string
}

func (e *ReservedNameError) Error() string {
	return fmt.Sprintf("node %q is reserved", e.ID)
}

// InvalidEndpointError is returned by AddEdge when an edge uses End as its
// source or Start as its target. End is a sink and Start is a seed; neither
// can appear on the wrong side of an edge.
type InvalidEndpointError struct {
	// From is the declared edge source.
	From string

	// To is the declared edge target.
	To string
}

func (e *InvalidEndpointError) Error() string {
	if e.From == End {
		return "END cannot be an edge source"
	}
	return "START cannot be an edge target"
}

// MultipleEdgesError is returned by AddEdge when the source already has an
// unconditional outgoing edge and multiple-edge support is disabled.
//
// Enable multiple out-edges with WithMultipleEdges when the downstream runner
// merges parallel writers into one state key.
type MultipleEdgesError struct {
	// Source is the node that already has an outgoing edge.
	Source string
}

func (e *MultipleEdgesError) Error() string {
	return fmt.Sprintf("already found path for node %q", e.Source)
}

// DuplicateBranchError is returned by AddConditionalEdges when a branch with
// the same name is already registered for the source node.
type DuplicateBranchError struct {
	// Source is the branch's source node.
	Source string

	// Name is the colliding branch name.
	Name string
}

func (e *DuplicateBranchError) Error() string {
	return fmt.Sprintf("branch %q already exists for node %q", e.Name, e.Source)
}

// DeadEndError is raised by validation when a declared node is never the
// source of any edge or branch.
type DeadEndError struct {
	// Node is the offending node.
	Node string
}

func (e *DeadEndError) Error() string {
	return fmt.Sprintf("node %q is a dead-end", e.Node)
}

// UnreachableNodeError is raised by validation when a declared node is never
// the target of any edge or branch, counting the implicit fan-out of branches
// without an explicit ends mapping.
type UnreachableNodeError struct {
	// Node is the offending node.
	Node string
}

func (e *UnreachableNodeError) Error() string {
	return fmt.Sprintf("node %q is not reachable", e.Node)
}

// UnknownSourceError is raised by validation when an edge or branch starts at
// a node that was never declared.
type UnknownSourceError struct {
	// Source is the undeclared node.
	Source string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("found edge starting at unknown node %q", e.Source)
}

// UnknownTargetError is raised by validation when an edge or branch points at
// a node that was never declared and is not the End identifier.
//
// For branch targets, Source and Branch name the offending declaration. For
// plain edges both are empty.
type UnknownTargetError struct {
	// Source is the branch's source node (empty for plain edges).
	Source string

	// Branch is the branch name (empty for plain edges).
	Branch string

	// Target is the undeclared destination.
	Target string
}

func (e *UnknownTargetError) Error() string {
	if e.Branch != "" {
		return fmt.Sprintf("at %q node, %q branch found unknown target %q", e.Source, e.Branch, e.Target)
	}
	return fmt.Sprintf("found edge ending at unknown node %q", e.Target)
}

// UnknownInterruptNodeError is raised by validation when an interrupt list
// entry does not name a declared node.
type UnknownInterruptNodeError struct {
	// Node is the undeclared interrupt entry.
	Node string
}

func (e *UnknownInterruptNodeError) Error() string {
	return fmt.Sprintf("interrupt node %q not found", e.Node)
}

// UnknownBranchLabelError is raised at run time, by the lowered branch writer,
// when a path function returns a label that has no entry in the branch's ends
// mapping. It is never raised during declaration or compilation.
//
// Runners should distinguish it from ordinary action failures with errors.As.
type UnknownBranchLabelError struct {
	// Source is the branch's source node.
	Source string

	// Branch is the branch name.
	Branch string

	// Label is the unmapped label the path function returned.
	Label string
}

func (e *UnknownBranchLabelError) Error() string {
	return fmt.Sprintf("at %q node, %q branch returned unknown label %q", e.Source, e.Branch, e.Label)
}

// errorKind maps an error to a short machine-readable kind, used as the
// validation_failures_total metric label.
func errorKind(err error) string {
	switch err.(type) {
	case *DeadEndError:
		return "dead_end"
	case *UnreachableNodeError:
		return "unreachable"
	case *UnknownSourceError:
		return "unknown_source"
	case *UnknownTargetError:
		return "unknown_target"
	case *UnknownInterruptNodeError:
		return "unknown_interrupt"
	default:
		return "other"
	}
}
