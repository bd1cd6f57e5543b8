package flatten

import (
	"upagg/internal/aggregation/models"
)

// Table is one flattened source table.
type Table struct {
	// Resolved holds the terminal attestation for every child row of the
	// raw table that was not excluded.
	Resolved      map[models.EntityID]models.Attestation
	Cyclic        []models.EntityID
	DepthExceeded []models.EntityID
}

// Attestations flattens a raw source table. The country of a resolved
// attestation is the first non-empty country the table reports for the
// terminal parent.
func Attestations(rows []models.RawAttestation, maxDepth int) Table {
	edges := make([]Edge, 0, len(rows))
	reported := make(map[models.EntityID]models.Country, len(rows))
	for _, r := range rows {
		edges = append(edges, Edge{Child: r.ChildID, Parent: r.ParentID})
		if r.ParentID != "" && r.Country != "" {
			if _, ok := reported[r.ParentID]; !ok {
				reported[r.ParentID] = r.Country
			}
		}
	}

	res := Flatten(edges, maxDepth)
	t := Table{
		Resolved:      make(map[models.EntityID]models.Attestation, len(edges)),
		Cyclic:        res.Cyclic,
		DepthExceeded: res.DepthExceeded,
	}
	for _, e := range normalize(edges) {
		terminal, ok := res.Terminal[e.Child]
		if !ok {
			continue
		}
		t.Resolved[e.Child] = models.Attestation{ParentID: terminal, Country: reported[terminal]}
	}
	return t
}
