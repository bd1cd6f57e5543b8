package models

import "sort"

// Attestation is one source's claim about an issuer's parent and the
// country that source reports for that parent.
type Attestation struct {
	ParentID EntityID
	Country  Country
}

// Present reports whether the source attests a parent at all.
func (a Attestation) Present() bool { return a.ParentID != "" }

func (a Attestation) IsZero() bool { return a.ParentID == "" && a.Country == "" }

// Issuer is one row of the assembled population. Attestation arrays are
// indexed by preference position (rank-1).
type Issuer struct {
	ID       EntityID
	Name     string
	Domicile Country
	// Listed is false for ids that appear only as children in source tables.
	Listed bool

	Attest          [NumSources]Attestation
	Original        [NumSources]Attestation
	OverwriteSource [NumSources]Source

	AssocParentID     EntityID
	AssocCountry      Country
	ModalCountry      Country
	AssocModalCountry Country

	UsedPrefForCountry bool
	UsedPrefForParent  bool
}

// PresentCount returns how many sources attest a parent.
func (i Issuer) PresentCount() int {
	n := 0
	for _, a := range i.Attest {
		if a.Present() {
			n++
		}
	}
	return n
}

// Population is an immutable, id-sorted snapshot of issuers. Stages derive a
// new snapshot with Modify instead of mutating the one they were given.
type Population struct {
	issuers []Issuer
	index   map[EntityID]int
}

// NewPopulation sorts issuers by id. The first row wins for duplicate ids.
func NewPopulation(issuers []Issuer) *Population {
	rows := make([]Issuer, 0, len(issuers))
	seen := make(map[EntityID]struct{}, len(issuers))
	for _, iss := range issuers {
		if _, dup := seen[iss.ID]; dup {
			continue
		}
		seen[iss.ID] = struct{}{}
		rows = append(rows, iss)
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a].ID < rows[b].ID })

	index := make(map[EntityID]int, len(rows))
	for i, iss := range rows {
		index[iss.ID] = i
	}
	return &Population{issuers: rows, index: index}
}

func (p *Population) Len() int { return len(p.issuers) }

// Issuers exposes the rows in id order. Callers must treat the slice as read-only.
func (p *Population) Issuers() []Issuer { return p.issuers }

// At returns a copy of row i.
func (p *Population) At(i int) Issuer { return p.issuers[i] }

// Lookup returns a copy of the row for id.
func (p *Population) Lookup(id EntityID) (Issuer, bool) {
	i, ok := p.index[id]
	if !ok {
		return Issuer{}, false
	}
	return p.issuers[i], true
}

func (p *Population) Has(id EntityID) bool {
	_, ok := p.index[id]
	return ok
}

// IndexOf returns the row position of id.
func (p *Population) IndexOf(id EntityID) (int, bool) {
	i, ok := p.index[id]
	return i, ok
}

// Modify copies the rows, lets fn edit the copy in place and returns the copy
// as a new snapshot. fn must not change ids or reorder rows.
func (p *Population) Modify(fn func(rows []Issuer)) *Population {
	rows := make([]Issuer, len(p.issuers))
	copy(rows, p.issuers)
	fn(rows)
	return &Population{issuers: rows, index: p.index}
}
