// Package chain resolves disagreement between sources about who an issuer's
// parent is by walking the cross-source ownership graph.
package chain

import (
	"sort"

	"upagg/internal/aggregation/graph"
	"upagg/internal/aggregation/models"
)

// Hop is one element of an ownership chain.
type Hop struct {
	ID             models.EntityID
	Country        models.Country
	Source         models.Source
	UsedPreference bool
}

// Outcome counts what a resolution pass did.
type Outcome struct {
	Walks        int
	Exhausted    int
	CyclesBroken int
	Rewritten    int
}

// Resolver walks chains with a fixed preference order, haven set and hop bound.
type Resolver struct {
	pref    models.Preference
	havens  models.HavenSet
	maxHops int
}

func NewResolver(pref models.Preference, havens models.HavenSet, maxHops int) *Resolver {
	return &Resolver{pref: pref, havens: havens, maxHops: maxHops}
}

// Walk builds the pruned chain from start over the given snapshot.
func (r *Resolver) Walk(pop *models.Population, start Hop) ([]Hop, graph.StopReason) {
	key := func(h Hop) models.EntityID { return h.ID }
	path := graph.Walk(start, key, r.next(pop), r.maxHops)

	hops := path.Nodes
	if path.Reason == graph.StopCycle {
		hops = r.breakCycle(path)
	}
	return r.prune(hops), path.Reason
}

// next hops to the highest-ranked source, other than the one that led here,
// whose parent on the current row differs from the current node.
func (r *Resolver) next(pop *models.Population) graph.Next[Hop] {
	return func(cur Hop) (Hop, graph.Step) {
		row, ok := pop.Lookup(cur.ID)
		if !ok {
			return Hop{}, graph.Miss
		}
		came, _ := r.pref.Index(cur.Source)

		var chosen *Hop
		distinct := make(map[models.EntityID]struct{}, models.NumSources)
		for pos, a := range row.Attest {
			if pos == came || a.ParentID == "" || a.ParentID == cur.ID {
				continue
			}
			distinct[a.ParentID] = struct{}{}
			if chosen == nil {
				chosen = &Hop{ID: a.ParentID, Country: a.Country, Source: r.pref.At(pos), UsedPreference: cur.UsedPreference}
			}
		}
		if chosen == nil {
			return Hop{}, graph.Terminal
		}
		if len(distinct) > 1 {
			chosen.UsedPreference = true
		}
		return *chosen, graph.Continue
	}
}

// breakCycle keeps the first hop and the best-ranked hop among those that
// form the cycle.
func (r *Resolver) breakCycle(path graph.Path[Hop]) []Hop {
	members := path.Nodes[path.CycleStart+1:]
	best := members[0]
	for _, h := range members[1:] {
		if r.pref.Rank(h.Source) < r.pref.Rank(best.Source) {
			best = h
		}
	}
	best.UsedPreference = true
	return []Hop{path.Nodes[0], best}
}

// prune drops trailing haven hops.
func (r *Resolver) prune(hops []Hop) []Hop {
	out := make([]Hop, len(hops))
	copy(out, hops)
	for len(out) > 0 && r.havens.Contains(out[len(out)-1].Country) {
		out = out[:len(out)-1]
	}
	return out
}

// Resolve walks every contested parent of every source over pop and returns
// a new snapshot with the rewritten attestations. All walks read pop.
func (r *Resolver) Resolve(pop *models.Population) (*models.Population, Outcome) {
	var out Outcome
	var finals [models.NumSources]map[models.EntityID]Hop

	for pos := range finals {
		finals[pos] = make(map[models.EntityID]Hop)
		src := r.pref.At(pos)
		for _, start := range r.starts(pop, pos) {
			out.Walks++
			hops, reason := r.Walk(pop, Hop{ID: start.ParentID, Country: start.Country, Source: src})
			switch reason {
			case graph.StopHopLimit, graph.StopMiss:
				out.Exhausted++
			case graph.StopCycle:
				out.CyclesBroken++
			}
			if len(hops) > 0 {
				finals[pos][start.ParentID] = hops[len(hops)-1]
			}
		}
	}

	next := pop.Modify(func(rows []models.Issuer) {
		for i := range rows {
			for pos, a := range rows[i].Attest {
				final, ok := finals[pos][a.ParentID]
				if !ok || a.ParentID == "" {
					continue
				}
				if final.UsedPreference {
					rows[i].UsedPrefForParent = true
				}
				rewritten := models.Attestation{ParentID: final.ID, Country: final.Country}
				if rewritten == a {
					continue
				}
				rows[i].Attest[pos] = rewritten
				rows[i].OverwriteSource[pos] = final.Source
				out.Rewritten++
			}
		}
	})
	return next, out
}

// starts lists the distinct parents of the source at pos whose own row is
// contradicted by another source.
func (r *Resolver) starts(pop *models.Population, pos int) []models.Attestation {
	seen := make(map[models.EntityID]struct{})
	var out []models.Attestation
	for _, iss := range pop.Issuers() {
		a := iss.Attest[pos]
		if a.ParentID == "" {
			continue
		}
		if _, dup := seen[a.ParentID]; dup {
			continue
		}
		seen[a.ParentID] = struct{}{}
		row, ok := pop.Lookup(a.ParentID)
		if !ok || !contradicted(row, pos) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParentID < out[j].ParentID })
	return out
}

func contradicted(row models.Issuer, pos int) bool {
	for o, a := range row.Attest {
		if o != pos && a.ParentID != "" && a.ParentID != row.ID {
			return true
		}
	}
	return false
}
