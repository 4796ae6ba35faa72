package graph

import "sort"

// Validate runs the structural validator over the declared nodes, edges, and
// branches, plus the given interrupt node list.
//
// The validator computes the full set of edge/branch sources and reachable
// targets under branch fan-out semantics and rejects:
//   - declared nodes that are never a source (DeadEndError)
//   - declared nodes that are never a reachable target (UnreachableNodeError)
//   - edges or branches starting at undeclared nodes (UnknownSourceError)
//   - edge or branch targets that are neither declared nor End
//     (UnknownTargetError)
//   - interrupt entries that are not declared nodes (UnknownInterruptNodeError)
//
// Validation is purely structural: cycles are legal and expected for
// iterative workflows. On success the builder is marked compiled, so later
// mutations raise a warning-level event.
func (g *Graph[S]) Validate(interrupts ...string) error {
	// Assemble sources. A branch's source counts, and when the branch has a
	// convergence node its destinations count too, since each gains an
	// implied out-edge into the convergence node. An End destination stays a
	// sink: it gains no implied edge and is never a source.
	allSources := make(map[string]bool)
	for _, e := range g.edges {
		allSources[e.from] = true
	}
	for source, branches := range g.branches {
		for _, b := range branches {
			allSources[source] = true
			if b.Then != "" {
				if b.Ends != nil {
					for _, end := range b.Ends {
						if end != End {
							allSources[end] = true
						}
					}
				} else {
					for node := range g.nodes {
						if node != source && node != b.Then {
							allSources[node] = true
						}
					}
				}
			}
		}
	}

	for _, node := range g.sortedNodes() {
		if !allSources[node] {
			return &DeadEndError{Node: node}
		}
	}
	for _, source := range sortedSet(allSources) {
		if _, declared := g.nodes[source]; !declared && source != Start {
			return &UnknownSourceError{Source: source}
		}
	}

	// Assemble targets. A branch without an ends mapping can route to any
	// other declared node or End.
	allTargets := make(map[string]bool)
	for _, e := range g.edges {
		allTargets[e.to] = true
	}
	for _, source := range g.sortedBranchSources() {
		branches := g.branches[source]
		for _, name := range sortedBranchNames(branches) {
			b := branches[name]
			if b.Then != "" {
				allTargets[b.Then] = true
			}
			if b.Ends != nil {
				for _, label := range sortedEndLabels(b.Ends) {
					end := b.Ends[label]
					if _, declared := g.nodes[end]; !declared && end != End {
						return &UnknownTargetError{Source: source, Branch: name, Target: end}
					}
					allTargets[end] = true
				}
			} else {
				allTargets[End] = true
				for node := range g.nodes {
					if node != source && node != b.Then {
						allTargets[node] = true
					}
				}
			}
		}
	}

	for _, node := range g.sortedNodes() {
		if !allTargets[node] {
			return &UnreachableNodeError{Node: node}
		}
	}
	for _, target := range sortedSet(allTargets) {
		if _, declared := g.nodes[target]; !declared && target != End {
			return &UnknownTargetError{Target: target}
		}
	}

	for _, node := range interrupts {
		if _, declared := g.nodes[node]; !declared {
			return &UnknownInterruptNodeError{Node: node}
		}
	}

	g.compiled = true
	return nil
}

// sortedNodes returns the declared node identifiers in lexical order, keeping
// validation errors and lowering output deterministic.
func (g *Graph[S]) sortedNodes() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sortedBranchSources returns the branch source identifiers in lexical order.
func (g *Graph[S]) sortedBranchSources() []string {
	sources := make([]string, 0, len(g.branches))
	for source := range g.branches {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}

// sortedBranchNames returns a source's branch names in lexical order.
func sortedBranchNames[S any](branches map[string]Branch[S]) []string {
	names := make([]string, 0, len(branches))
	for name := range branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sortedEndLabels returns an ends mapping's labels in lexical order.
func sortedEndLabels(ends map[string]string) []string {
	labels := make([]string, 0, len(ends))
	for label := range ends {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// sortedSet returns a string set's members in lexical order.
func sortedSet(set map[string]bool) []string {
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	sort.Strings(members)
	return members
}
