package country

import (
	"sort"

	"upagg/internal/aggregation/models"
	dErrors "upagg/pkg/domain-errors"
)

// Outcome records the per-parent decisions of a harmonization pass.
type Outcome struct {
	Decisions map[models.EntityID]Decision
	// Conflicts counts parents with more than one distinct candidate.
	Conflicts int
}

// Harmonize resolves, for every parent id attested by any source, the codes
// the sources report for it and writes the winner back onto every
// attestation of that parent.
func Harmonize(pop *models.Population, pref models.Preference, havens models.HavenSet) (*models.Population, Outcome, error) {
	var reported [models.NumSources]map[models.EntityID]models.Country
	parents := make(map[models.EntityID]struct{})
	for s := range reported {
		reported[s] = make(map[models.EntityID]models.Country)
	}
	for _, iss := range pop.Issuers() {
		for s, a := range iss.Attest {
			if a.ParentID == "" {
				continue
			}
			parents[a.ParentID] = struct{}{}
			if a.Country == "" {
				continue
			}
			if _, ok := reported[s][a.ParentID]; !ok {
				reported[s][a.ParentID] = a.Country
			}
		}
	}

	ids := make([]models.EntityID, 0, len(parents))
	for id := range parents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := Outcome{Decisions: make(map[models.EntityID]Decision, len(ids))}
	for _, id := range ids {
		cands := candidates(id, reported, pref)
		if len(cands) > 1 {
			out.Conflicts++
		}
		var modal, assoc models.Country
		if own, ok := pop.Lookup(id); ok {
			modal, assoc = own.ModalCountry, own.AssocCountry
		}
		d, err := Resolve(cands, modal, assoc, havens)
		if err != nil {
			return nil, Outcome{}, dErrors.Wrap(err, dErrors.CodeUnsupportedCardinality,
				"resolve countries for parent "+id.String())
		}
		if d.Resolved() {
			out.Decisions[id] = d
		}
	}

	next := pop.Modify(func(rows []models.Issuer) {
		for i := range rows {
			for s, a := range rows[i].Attest {
				d, ok := out.Decisions[a.ParentID]
				if !ok {
					continue
				}
				rows[i].Attest[s].Country = d.Country
				if d.UsedPreference {
					rows[i].UsedPrefForCountry = true
				}
			}
		}
	})
	return next, out, nil
}

func candidates(id models.EntityID, reported [models.NumSources]map[models.EntityID]models.Country, pref models.Preference) []Candidate {
	var out []Candidate
	seen := make(map[models.Country]struct{}, models.NumSources)
	for s := range reported {
		c, ok := reported[s][id]
		if !ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, Candidate{Country: c, Source: pref.At(s)})
	}
	return out
}
