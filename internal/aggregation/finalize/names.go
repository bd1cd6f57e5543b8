package finalize

import (
	"strings"

	"upagg/internal/aggregation/models"
)

// NameIndex resolves an entity id to a display name.
type NameIndex map[models.EntityID]string

// NewNameIndex prefers issuer-table names, then each supplementary table in
// order, upper-cased. The first name recorded for an id wins.
func NewNameIndex(issuers []models.IssuerRecord, tables map[models.Source][]models.NameRecord, order []models.Source) NameIndex {
	idx := make(NameIndex, len(issuers))
	for _, rec := range issuers {
		if rec.ID == "" || rec.Name == "" {
			continue
		}
		if _, ok := idx[rec.ID]; !ok {
			idx[rec.ID] = rec.Name
		}
	}
	for _, src := range order {
		for _, rec := range tables[src] {
			name := strings.ToUpper(strings.TrimSpace(rec.Name))
			if rec.ID == "" || name == "" {
				continue
			}
			if _, ok := idx[rec.ID]; !ok {
				idx[rec.ID] = name
			}
		}
	}
	return idx
}

func (n NameIndex) Lookup(id models.EntityID) string {
	return n[id]
}
