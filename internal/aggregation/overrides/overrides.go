// Package overrides applies operator corrections: source exclusions and
// country aliases before flattening, and manual parent links after decisions.
package overrides

import (
	"sort"

	"upagg/internal/aggregation/config"
	"upagg/internal/aggregation/models"
	dErrors "upagg/pkg/domain-errors"
)

// Prepare drops excluded children from a source's rows and maps countries
// through the aliases. It returns new rows and the number dropped.
func Prepare(src models.Source, rows []models.RawAttestation, p *config.Policy) ([]models.RawAttestation, int) {
	out := make([]models.RawAttestation, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		if p.Excluded(src, r.ChildID) {
			dropped++
			continue
		}
		r.Country = p.Alias(r.Country)
		out = append(out, r)
	}
	return out, dropped
}

// AliasIssuers maps issuer-level countries through the aliases.
func AliasIssuers(recs []models.IssuerRecord, p *config.Policy) []models.IssuerRecord {
	out := make([]models.IssuerRecord, len(recs))
	for i, r := range recs {
		r.Domicile = p.Alias(r.Domicile)
		r.AssocCountry = p.Alias(r.AssocCountry)
		r.ModalCountry = p.Alias(r.ModalCountry)
		out[i] = r
	}
	return out
}

// LinkStats counts manual link outcomes.
type LinkStats struct {
	Applied         int
	ChildrenMissing int
}

// ApplyLinks forces each configured child onto its linked parent, copying the
// country and name from a row already resolved to that parent. Links apply in
// child order so each sees the ones before it. A parent absent from the
// results is fatal.
func ApplyLinks(results []models.Result, p *config.Policy) ([]models.Result, LinkStats, error) {
	out := make([]models.Result, len(results))
	copy(out, results)

	byID := make(map[models.EntityID]int, len(out))
	for i, r := range out {
		byID[r.EntityID] = i
	}

	var st LinkStats
	for _, child := range p.LinkChildren() {
		parent := p.Links[child]
		ci, ok := byID[child]
		if !ok {
			st.ChildrenMissing++
			continue
		}
		si, ok := source(out, byID, parent)
		if !ok {
			return nil, st, dErrors.Newf(dErrors.CodeLookupMiss, "manual link %s -> %s: parent not in results", child, parent)
		}
		src := out[si]
		r := &out[ci]
		r.ParentID = parent
		r.Country = src.Country
		r.CountryProvenance = src.CountryProvenance
		r.ParentName = src.ParentName
		r.ParentProvenance = models.ProvManual
		st.Applied++
	}
	return out, st, nil
}

// source finds the row to copy for a manual parent: the parent's own row if
// it is its own ultimate parent, else the lowest id resolved to it, else the
// parent's own row.
func source(rows []models.Result, byID map[models.EntityID]int, parent models.EntityID) (int, bool) {
	own, hasOwn := byID[parent]
	if hasOwn && rows[own].ParentID == parent {
		return own, true
	}
	var matches []int
	for i, r := range rows {
		if r.ParentID == parent {
			matches = append(matches, i)
		}
	}
	if len(matches) > 0 {
		sort.Slice(matches, func(a, b int) bool { return rows[matches[a]].EntityID < rows[matches[b]].EntityID })
		return matches[0], true
	}
	return own, hasOwn
}
