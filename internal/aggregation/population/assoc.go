package population

import (
	"upagg/internal/aggregation/models"
)

// DeriveAssocModal sets each issuer's modal_country_of_assoc_parent from the
// modal country of its associated parent's own row. A blank value, or a
// haven when the associated group agrees on a non-haven code, is replaced
// by the single modal country shared by all issuers of that group.
func DeriveAssocModal(pop *models.Population, havens models.HavenSet) *models.Population {
	group := make(map[models.EntityID]map[models.Country]struct{})
	for _, iss := range pop.Issuers() {
		if iss.AssocParentID == "" || iss.ModalCountry == "" {
			continue
		}
		set, ok := group[iss.AssocParentID]
		if !ok {
			set = make(map[models.Country]struct{})
			group[iss.AssocParentID] = set
		}
		set[iss.ModalCountry] = struct{}{}
	}

	alternative := func(parent models.EntityID) models.Country {
		set := group[parent]
		if len(set) != 1 {
			return ""
		}
		for c := range set {
			return c
		}
		return ""
	}

	return pop.Modify(func(rows []models.Issuer) {
		for i := range rows {
			parent := rows[i].AssocParentID
			if parent == "" {
				continue
			}
			var modal models.Country
			if p, ok := pop.Lookup(parent); ok {
				modal = p.ModalCountry
			}
			alt := alternative(parent)
			if modal == "" || (havens.Contains(modal) && havens.NonHaven(alt)) {
				modal = alt
			}
			rows[i].AssocModalCountry = modal
		}
	})
}

// LinkAssociated lets issuers borrow source attestations from their
// associated parent's row: when the parent row has a complete attestation
// for a source and the issuer has none, or the parent's country is a
// non-haven while the issuer's is a haven.
func LinkAssociated(pop *models.Population, havens models.HavenSet) (*models.Population, int) {
	linked := 0
	next := pop.Modify(func(rows []models.Issuer) {
		for i := range rows {
			parent, ok := pop.Lookup(rows[i].AssocParentID)
			if !ok || parent.ID == rows[i].ID {
				continue
			}
			for s := range rows[i].Attest {
				theirs := parent.Attest[s]
				if theirs.ParentID == "" || theirs.Country == "" {
					continue
				}
				own := rows[i].Attest[s]
				if own.IsZero() || (havens.NonHaven(theirs.Country) && havens.Contains(own.Country)) {
					rows[i].Attest[s] = theirs
					linked++
				}
			}
		}
	})
	return next, linked
}
