// Package stationarity makes the final parent relation idempotent: every
// reported ultimate parent is its own ultimate parent.
package stationarity

import (
	"sort"

	"upagg/internal/aggregation/flatten"
	"upagg/internal/aggregation/models"
	dErrors "upagg/pkg/domain-errors"
)

// Stats describes what enforcement changed.
type Stats struct {
	Patched       int
	Cyclic        []models.EntityID
	DepthExceeded []models.EntityID
}

// Dropped is the number of rows removed from the output.
func (s Stats) Dropped() int { return len(s.Cyclic) + len(s.DepthExceeded) }

type Enforcer struct {
	depth int
}

func New(depth int) *Enforcer {
	return &Enforcer{depth: depth}
}

// Enforce re-flattens the result relation. Rows caught in a cycle or
// deeper than the bound are dropped. Rows whose parent is not terminal take
// the terminal's parent, country and name with derived provenance. The
// output is re-checked and a non-stationary relation is an invariant
// violation.
func (e *Enforcer) Enforce(results []models.Result) ([]models.Result, Stats, error) {
	flat := flatten.Flatten(edges(results), e.depth)
	st := Stats{Cyclic: flat.Cyclic, DepthExceeded: flat.DepthExceeded}

	drop := make(map[models.EntityID]struct{}, st.Dropped())
	for _, id := range flat.Cyclic {
		drop[id] = struct{}{}
	}
	for _, id := range flat.DepthExceeded {
		drop[id] = struct{}{}
	}

	kept := make([]models.Result, 0, len(results))
	for _, r := range results {
		if _, ok := drop[r.EntityID]; !ok {
			kept = append(kept, r)
		}
	}

	donors := donorIndex(kept)
	out := make([]models.Result, len(kept))
	for i, r := range kept {
		out[i] = r
		if r.ParentID == "" {
			continue
		}
		t, ok := flat.Terminal[r.ParentID]
		if !ok || t == r.ParentID {
			continue
		}
		d, ok := donors[t]
		if !ok {
			continue
		}
		out[i].ParentID = t
		out[i].Country = d.Country
		out[i].CountryProvenance = d.CountryProvenance
		out[i].ParentName = d.ParentName
		out[i].ParentProvenance = models.ProvDerived
		st.Patched++
	}

	if err := check(out, e.depth); err != nil {
		return nil, st, err
	}
	return out, st, nil
}

func edges(results []models.Result) []flatten.Edge {
	out := make([]flatten.Edge, 0, len(results))
	for _, r := range results {
		out = append(out, flatten.Edge{Child: r.EntityID, Parent: r.ParentID})
	}
	return out
}

// donorIndex picks, for every id used as a parent, the row whose values a
// derived row copies: the id's own row when it resolves to itself, else the
// lowest id resolved to it.
func donorIndex(rows []models.Result) map[models.EntityID]models.Result {
	sorted := make([]models.Result, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].EntityID < sorted[j].EntityID })

	out := make(map[models.EntityID]models.Result, len(rows))
	for _, r := range sorted {
		if r.ParentID == "" {
			continue
		}
		if r.ParentID == r.EntityID {
			out[r.ParentID] = r
			continue
		}
		if _, ok := out[r.ParentID]; !ok {
			out[r.ParentID] = r
		}
	}
	return out
}

func check(results []models.Result, depth int) error {
	es := edges(results)
	flat := flatten.Flatten(es, depth)
	if len(flat.Cyclic) > 0 || len(flat.DepthExceeded) > 0 || flat.Changed(es) {
		return dErrors.New(dErrors.CodeInvariantViolation, "parent relation is not stationary after enforcement")
	}
	return nil
}
