// Package graph provides the bounded walk shared by the single-source
// flattener and the cross-source chain resolver.
package graph

// Step is what a next-hop strategy reports for the current node.
type Step int

const (
	// Continue moves the walk to the returned node.
	Continue Step = iota
	// Terminal ends the walk on the current node, which is its own ancestor.
	Terminal
	// NoHop ends the walk because no candidate next node exists.
	NoHop
	// Miss ends the walk because the current node could not be looked up.
	Miss
)

// StopReason explains why a walk ended.
type StopReason int

const (
	StopTerminal StopReason = iota
	StopNoHop
	StopMiss
	StopCycle
	StopHopLimit
)

func (r StopReason) String() string {
	switch r {
	case StopTerminal:
		return "terminal"
	case StopNoHop:
		return "no_hop"
	case StopMiss:
		return "lookup_miss"
	case StopCycle:
		return "cycle"
	case StopHopLimit:
		return "hop_limit"
	default:
		return "unknown"
	}
}

// Next picks the hop that follows current.
type Next[N any] func(current N) (N, Step)

// Path is the outcome of a walk.
type Path[N any] struct {
	// Nodes holds the visited nodes in order, starting with the start node.
	// For StopCycle the revisited node is appended as the last element.
	Nodes  []N
	Reason StopReason
	// CycleStart is the index of the first visit of the revisited node.
	CycleStart int
}

// Last returns the final node of the path.
func (p Path[N]) Last() N {
	return p.Nodes[len(p.Nodes)-1]
}

// Hops is the number of edges followed.
func (p Path[N]) Hops() int {
	return len(p.Nodes) - 1
}

// Walk follows next from start for at most maxHops edges, detecting revisits
// by key with an explicit visited set.
func Walk[N any, K comparable](start N, key func(N) K, next Next[N], maxHops int) Path[N] {
	nodes := []N{start}
	seen := map[K]int{key(start): 0}
	cur := start

	for {
		n, step := next(cur)
		switch step {
		case Terminal:
			return Path[N]{Nodes: nodes, Reason: StopTerminal}
		case NoHop:
			return Path[N]{Nodes: nodes, Reason: StopNoHop}
		case Miss:
			return Path[N]{Nodes: nodes, Reason: StopMiss}
		}
		if len(nodes)-1 >= maxHops {
			return Path[N]{Nodes: nodes, Reason: StopHopLimit}
		}

		k := key(n)
		if first, revisit := seen[k]; revisit {
			nodes = append(nodes, n)
			return Path[N]{Nodes: nodes, Reason: StopCycle, CycleStart: first}
		}
		seen[k] = len(nodes)
		nodes = append(nodes, n)
		cur = n
	}
}
