// Package country harmonizes the country that peer sources attribute to the
// same resolved parent and exposes the global country table.
package country

import (
	"upagg/internal/aggregation/models"
	dErrors "upagg/pkg/domain-errors"
)

// MaxCandidates is the largest number of distinct codes Resolve accepts.
const MaxCandidates = models.NumSources - 1

// Candidate is one distinct code and the highest-ranked source attesting it.
type Candidate struct {
	Country models.Country
	Source  models.Source
}

// Decision is the outcome of resolving one parent's candidates.
type Decision struct {
	Country        models.Country
	Source         models.Source
	UsedPreference bool
	// Candidates is how many distinct codes were in contention.
	Candidates int
}

// Resolved reports whether a winner was chosen.
func (d Decision) Resolved() bool { return d.Country != "" }

// Contested reports whether the winner beat at least one other code.
func (d Decision) Contested() bool { return d.Candidates > 1 && d.Resolved() }

// Resolve picks one code from distinct candidates given in rank order.
// modal and assoc are the parent's own modal and associated-issuer countries.
func Resolve(cands []Candidate, modal, assoc models.Country, havens models.HavenSet) (Decision, error) {
	n := len(cands)
	switch {
	case n == 0:
		return Decision{}, nil
	case n > MaxCandidates:
		return Decision{}, dErrors.Newf(dErrors.CodeUnsupportedCardinality,
			"%d distinct country candidates exceed the supported %d", n, MaxCandidates)
	case n == 1:
		if havens.Contains(cands[0].Country) {
			return Decision{Candidates: 1}, nil
		}
		return Decision{Country: cands[0].Country, Source: cands[0].Source, Candidates: 1}, nil
	}

	var nonHaven []Candidate
	for _, c := range cands {
		if !havens.Contains(c.Country) {
			nonHaven = append(nonHaven, c)
		}
	}
	if len(nonHaven) == 1 {
		return decided(nonHaven[0], false, n), nil
	}
	for _, tie := range []models.Country{modal, assoc} {
		if tie == "" {
			continue
		}
		for _, c := range cands {
			if c.Country == tie {
				return decided(c, false, n), nil
			}
		}
	}
	return decided(cands[0], true, n), nil
}

func decided(c Candidate, usedPref bool, n int) Decision {
	return Decision{Country: c.Country, Source: c.Source, UsedPreference: usedPref, Candidates: n}
}
