// Package population assembles flattened source tables into the issuer
// snapshot and applies the associated-issuer enrichment stages.
package population

import (
	"upagg/internal/aggregation/flatten"
	"upagg/internal/aggregation/models"
)

// Input is everything Build joins. Tables are indexed by preference position.
type Input struct {
	Issuers []models.IssuerRecord
	Tables  [models.NumSources]flatten.Table
	Assoc   flatten.Table
}

// Build outer-joins the issuer table with every flattened source table and
// the flattened associated-issuer relation on entity id.
func Build(in Input) *models.Population {
	records := make(map[models.EntityID]models.IssuerRecord, len(in.Issuers))
	ids := make([]models.EntityID, 0, len(in.Issuers))
	add := func(id models.EntityID) {
		if id == "" {
			return
		}
		if _, ok := records[id]; ok {
			return
		}
		records[id] = models.IssuerRecord{ID: id}
		ids = append(ids, id)
	}

	listed := make(map[models.EntityID]struct{}, len(in.Issuers))
	for _, rec := range in.Issuers {
		if rec.ID == "" {
			continue
		}
		if _, dup := listed[rec.ID]; dup {
			continue
		}
		listed[rec.ID] = struct{}{}
		add(rec.ID)
		records[rec.ID] = rec
	}
	for _, t := range in.Tables {
		for id := range t.Resolved {
			add(id)
		}
	}
	for id := range in.Assoc.Resolved {
		add(id)
	}

	rows := make([]models.Issuer, 0, len(ids))
	for _, id := range ids {
		rec := records[id]
		_, isListed := listed[id]
		iss := models.Issuer{
			ID:           id,
			Name:         rec.Name,
			Domicile:     rec.Domicile,
			Listed:       isListed,
			ModalCountry: rec.ModalCountry,
		}
		for i, t := range in.Tables {
			iss.Attest[i] = t.Resolved[id]
		}
		iss.Original = iss.Attest
		if a, ok := in.Assoc.Resolved[id]; ok {
			iss.AssocParentID = a.ParentID
			iss.AssocCountry = a.Country
		}
		rows = append(rows, iss)
	}
	return models.NewPopulation(rows)
}

// AssocEdges turns the associated-issuer columns of the issuer table into a
// raw relation so it can be flattened like a source table.
func AssocEdges(issuers []models.IssuerRecord) []models.RawAttestation {
	rows := make([]models.RawAttestation, 0, len(issuers))
	for _, rec := range issuers {
		if rec.AssocParentID == "" {
			continue
		}
		rows = append(rows, models.RawAttestation{
			ChildID:  rec.ID,
			ParentID: rec.AssocParentID,
			Country:  rec.AssocCountry,
		})
	}
	return rows
}
