package models

import (
	"sort"

	dErrors "upagg/pkg/domain-errors"
	"upagg/pkg/platform/strings"
)

// HavenSet holds pass-through jurisdictions whose attribution is discounted.
type HavenSet struct {
	codes map[Country]struct{}
}

// NewHavenSet normalizes and dedupes codes. An empty set is a configuration error.
func NewHavenSet(codes []string) (HavenSet, error) {
	normalized := strings.DedupeCodes(codes)
	if len(normalized) == 0 {
		return HavenSet{}, dErrors.New(dErrors.CodeConfig, "haven set is empty")
	}
	h := HavenSet{codes: make(map[Country]struct{}, len(normalized))}
	for _, c := range normalized {
		h.codes[Country(c)] = struct{}{}
	}
	return h, nil
}

// Contains reports haven membership. The empty country is never a haven.
func (h HavenSet) Contains(c Country) bool {
	if c == "" {
		return false
	}
	_, ok := h.codes[c]
	return ok
}

// NonHaven reports whether c is present and not a haven.
func (h HavenSet) NonHaven(c Country) bool {
	return c != "" && !h.Contains(c)
}

func (h HavenSet) Len() int { return len(h.codes) }

// Codes returns the members in lexical order.
func (h HavenSet) Codes() []Country {
	out := make([]Country, 0, len(h.codes))
	for c := range h.codes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
