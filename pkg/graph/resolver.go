// Package graph holds the pure dependency-resolution algorithms shared by
// the workflow and saga validators: cycle detection, orphan detection and
// ready-set computation. No I/O, deterministic for a given input graph.
package graph

import "sort"

// Node is one vertex of a step graph. Next and Dependencies both contribute
// edges for cycle detection; ErrorHandler only counts as a reference for
// orphan detection.
type Node struct {
	ID           string
	Next         []string
	ErrorHandler string
	Dependencies []string
}

// dfs coloring
const (
	white = iota // unvisited
	grey         // on the recursion stack
	black        // fully explored
)

// DetectCycle walks the step graph depth-first with a recursion-stack set.
// Next edges already run prerequisite to dependent; Dependencies declare
// the reverse, so they are normalized to prerequisite->dependent before
// the walk. It returns true together with the ids still on the stack when
// a back-edge is found; participants are sorted for deterministic output.
// References to unknown ids are ignored here; ValidateReferences reports
// those.
func DetectCycle(nodes []Node) (bool, []string) {
	index := indexNodes(nodes)
	adjacency := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		for _, succ := range n.Next {
			if _, known := index[succ]; known {
				adjacency[n.ID] = append(adjacency[n.ID], succ)
			}
		}
		for _, dep := range n.Dependencies {
			if _, known := index[dep]; known {
				adjacency[dep] = append(adjacency[dep], n.ID)
			}
		}
	}
	color := make(map[string]int, len(nodes))

	var stack []string
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, succ := range adjacency[id] {
			switch color[succ] {
			case grey:
				return true
			case white:
				if visit(succ) {
					return true
				}
			}
		}
		color[id] = black
		stack = stack[:len(stack)-1]
		return false
	}

	for _, n := range nodes {
		if color[n.ID] != white {
			continue
		}
		if visit(n.ID) {
			participants := append([]string(nil), stack...)
			sort.Strings(participants)
			return true, participants
		}
	}
	return false, nil
}

// ValidateReferences returns the sorted list of dangling references: ids
// named in Next, ErrorHandler or Dependencies that do not resolve to a node
// in the same graph.
func ValidateReferences(nodes []Node) []string {
	index := indexNodes(nodes)
	seen := make(map[string]struct{})
	for _, n := range nodes {
		refs := append(append([]string(nil), n.Next...), n.Dependencies...)
		if n.ErrorHandler != "" {
			refs = append(refs, n.ErrorHandler)
		}
		for _, ref := range refs {
			if _, ok := index[ref]; !ok {
				seen[ref] = struct{}{}
			}
		}
	}
	return sortedKeys(seen)
}

// Orphans returns the sorted ids of nodes never referenced by any other
// node's Next, ErrorHandler or Dependencies and not named as an entry
// point.
func Orphans(nodes []Node, entryPoints []string) []string {
	referenced := make(map[string]struct{})
	for _, ep := range entryPoints {
		referenced[ep] = struct{}{}
	}
	for _, n := range nodes {
		for _, succ := range n.Next {
			referenced[succ] = struct{}{}
		}
		for _, dep := range n.Dependencies {
			// declaring dependencies references the prerequisite, not the
			// declaring node itself; nothing queues an unreferenced dependent
			referenced[dep] = struct{}{}
		}
		if n.ErrorHandler != "" {
			referenced[n.ErrorHandler] = struct{}{}
		}
	}

	orphaned := make(map[string]struct{})
	for _, n := range nodes {
		if _, ok := referenced[n.ID]; !ok {
			orphaned[n.ID] = struct{}{}
		}
	}
	return sortedKeys(orphaned)
}

// EntryPoints returns the default entry steps of a graph: roots (no
// incoming Next or Dependencies edge) that carry at least one outgoing Next
// edge. Fully disconnected nodes are orphans, not entry points. When every
// node is a root without successors (a single-step graph), the lone node is
// the entry point.
func EntryPoints(nodes []Node) []string {
	if len(nodes) == 1 {
		return []string{nodes[0].ID}
	}
	incoming := make(map[string]int, len(nodes))
	for _, n := range nodes {
		for _, succ := range n.Next {
			incoming[succ]++
		}
		incoming[n.ID] += len(n.Dependencies)
	}
	var entries []string
	for _, n := range nodes {
		if incoming[n.ID] == 0 && len(n.Next) > 0 {
			entries = append(entries, n.ID)
		}
	}
	sort.Strings(entries)
	return entries
}

// ReadySet returns, in input order, the ids of candidate nodes whose every
// dependency is in the completed set and which have not themselves run.
func ReadySet(nodes []Node, candidates []string, completed map[string]bool) []string {
	index := indexNodes(nodes)
	var ready []string
	for _, id := range candidates {
		n, ok := index[id]
		if !ok || completed[id] {
			continue
		}
		if DependenciesMet(n, completed) {
			ready = append(ready, id)
		}
	}
	return ready
}

// DependenciesMet reports whether every declared dependency of the node is
// in the completed set.
func DependenciesMet(n Node, completed map[string]bool) bool {
	for _, dep := range n.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

func indexNodes(nodes []Node) map[string]Node {
	index := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		index[n.ID] = n
	}
	return index
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
