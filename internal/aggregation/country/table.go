package country

import (
	"upagg/internal/aggregation/models"
)

// Details is everything known about the country of one id.
type Details struct {
	BySource     [models.NumSources]models.Country
	AssocCountry models.Country
	AssocModal   models.Country
	Domicile     models.Country
	Modal        models.Country
}

// Fallback is the outcome of a table lookup.
type Fallback struct {
	Country models.Country
	Label   string
	Found   bool
}

// Table is the global harmonized country lookup, keyed by any id that is a
// parent in some source or an issuer row.
type Table struct {
	entries map[models.EntityID]Details
	pref    models.Preference
	havens  models.HavenSet
}

// BuildTable snapshots the harmonized population.
func BuildTable(pop *models.Population, pref models.Preference, havens models.HavenSet) *Table {
	t := &Table{
		entries: make(map[models.EntityID]Details, pop.Len()),
		pref:    pref,
		havens:  havens,
	}
	for _, iss := range pop.Issuers() {
		d := t.entries[iss.ID]
		d.AssocCountry = iss.AssocCountry
		d.AssocModal = iss.AssocModalCountry
		d.Domicile = iss.Domicile
		d.Modal = iss.ModalCountry
		t.entries[iss.ID] = d
	}
	for _, iss := range pop.Issuers() {
		for s, a := range iss.Attest {
			if a.ParentID == "" {
				continue
			}
			d := t.entries[a.ParentID]
			if d.BySource[s] == "" {
				d.BySource[s] = a.Country
			}
			t.entries[a.ParentID] = d
		}
	}
	return t
}

// Lookup returns the details recorded for id.
func (t *Table) Lookup(id models.EntityID) (Details, bool) {
	d, ok := t.entries[id]
	return d, ok
}

func (t *Table) Len() int { return len(t.entries) }

// Fallback walks the ladder: sources in rank order, associated country,
// associated modal country, domicile and modal country (each only when
// non-haven), then the domicile even if it is a haven.
func (t *Table) Fallback(id models.EntityID) Fallback {
	d, ok := t.entries[id]
	if !ok {
		return Fallback{}
	}
	for s, c := range d.BySource {
		if t.havens.NonHaven(c) {
			return Fallback{Country: c, Label: t.pref.At(s).String(), Found: true}
		}
	}
	ladder := []struct {
		country models.Country
		label   string
	}{
		{d.AssocCountry, models.ProvAssocCountry},
		{d.AssocModal, models.ProvAssocModal},
		{d.Domicile, models.ProvDomicile},
		{d.Modal, models.ProvModal},
	}
	for _, step := range ladder {
		if t.havens.NonHaven(step.country) {
			return Fallback{Country: step.country, Label: step.label, Found: true}
		}
	}
	if d.Domicile != "" {
		return Fallback{Country: d.Domicile, Label: models.ProvDomicile, Found: true}
	}
	return Fallback{Found: true}
}
