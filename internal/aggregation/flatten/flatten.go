// Package flatten compresses a child→parent relation so every child points
// directly at its terminal ancestor.
package flatten

import (
	"sort"

	"upagg/internal/aggregation/graph"
	"upagg/internal/aggregation/models"
)

// Edge is one child→parent row.
type Edge struct {
	Child  models.EntityID
	Parent models.EntityID
}

// Result maps every stationary node to its terminal ancestor. Nodes caught
// in a cycle, or whose chain is longer than the depth bound, are excluded.
type Result struct {
	Terminal      map[models.EntityID]models.EntityID
	Cyclic        []models.EntityID
	DepthExceeded []models.EntityID
}

// Changed reports whether any node's terminal differs from the parent it
// was given. A flattened relation fed back in reports false.
func (r Result) Changed(edges []Edge) bool {
	for _, e := range normalize(edges) {
		if t, ok := r.Terminal[e.Child]; !ok || t != e.Parent {
			return true
		}
	}
	return false
}

// Flatten dereferences each child up to maxDepth times. Rows with an empty
// side are dropped and the first row per child wins. Parents that never
// appear as children are treated as self-parented.
func Flatten(edges []Edge, maxDepth int) Result {
	parent := make(map[models.EntityID]models.EntityID, len(edges))
	for _, e := range normalize(edges) {
		parent[e.Child] = e.Parent
	}
	var roots []models.EntityID
	for _, p := range parent {
		if _, ok := parent[p]; !ok {
			roots = append(roots, p)
		}
	}
	for _, p := range roots {
		parent[p] = p
	}

	next := func(cur models.EntityID) (models.EntityID, graph.Step) {
		p := parent[cur]
		if p == cur {
			return "", graph.Terminal
		}
		return p, graph.Continue
	}
	key := func(id models.EntityID) models.EntityID { return id }

	res := Result{Terminal: make(map[models.EntityID]models.EntityID, len(parent))}
	for _, node := range sortedKeys(parent) {
		path := graph.Walk(node, key, next, maxDepth)
		switch path.Reason {
		case graph.StopTerminal:
			res.Terminal[node] = path.Last()
		case graph.StopCycle:
			res.Cyclic = append(res.Cyclic, node)
		default:
			res.DepthExceeded = append(res.DepthExceeded, node)
		}
	}
	return res
}

func normalize(edges []Edge) []Edge {
	out := make([]Edge, 0, len(edges))
	seen := make(map[models.EntityID]struct{}, len(edges))
	for _, e := range edges {
		if e.Child == "" || e.Parent == "" {
			continue
		}
		if _, dup := seen[e.Child]; dup {
			continue
		}
		seen[e.Child] = struct{}{}
		out = append(out, e)
	}
	return out
}

func sortedKeys(m map[models.EntityID]models.EntityID) []models.EntityID {
	keys := make([]models.EntityID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
