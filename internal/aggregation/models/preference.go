package models

import (
	"sort"
	"strings"

	dErrors "upagg/pkg/domain-errors"
)

// Preference is a strict ranking over the five sources. Rank 1 is the most
// trusted. Position i of an attestation array holds the source of rank i+1.
type Preference struct {
	order [NumSources]Source
	rank  map[Source]int
}

// NewPreference validates that ranks is a bijection between five sources and 1..5.
func NewPreference(ranks map[Source]int) (Preference, error) {
	if len(ranks) != NumSources {
		return Preference{}, dErrors.Newf(dErrors.CodeConfig,
			"preference order must rank exactly %d sources, got %d", NumSources, len(ranks))
	}
	p := Preference{rank: make(map[Source]int, NumSources)}
	for src, r := range ranks {
		if src == "" {
			return Preference{}, dErrors.New(dErrors.CodeConfig, "preference order contains an empty source label")
		}
		if r < 1 || r > NumSources {
			return Preference{}, dErrors.Newf(dErrors.CodeConfig, "rank %d for source %q out of range", r, src)
		}
		if p.order[r-1] != "" {
			return Preference{}, dErrors.Newf(dErrors.CodeConfig,
				"rank %d assigned to both %q and %q", r, p.order[r-1], src)
		}
		p.order[r-1] = src
		p.rank[src] = r
	}
	return p, nil
}

// MustPreference is NewPreference for static tables; it panics on invalid input.
func MustPreference(ranks map[Source]int) Preference {
	p, err := NewPreference(ranks)
	if err != nil {
		panic(err)
	}
	return p
}

// Sources returns the sources in rank order.
func (p Preference) Sources() []Source {
	out := make([]Source, NumSources)
	copy(out, p.order[:])
	return out
}

// At returns the source stored at attestation position i.
func (p Preference) At(i int) Source { return p.order[i] }

// Rank returns the 1-based rank of s, or 0 for an unknown source.
func (p Preference) Rank(s Source) int { return p.rank[s] }

// Index returns the attestation position of s.
func (p Preference) Index(s Source) (int, bool) {
	r, ok := p.rank[s]
	return r - 1, ok
}

// Valid reports whether p was built by NewPreference.
func (p Preference) Valid() bool { return len(p.rank) == NumSources }

// Label joins sources in rank order, space separated.
func (p Preference) Label(sources []Source) string {
	sorted := make([]Source, len(sources))
	copy(sorted, sources)
	sort.SliceStable(sorted, func(i, j int) bool { return p.Rank(sorted[i]) < p.Rank(sorted[j]) })
	labels := make([]string, len(sorted))
	for i, s := range sorted {
		labels[i] = string(s)
	}
	return strings.Join(labels, " ")
}
