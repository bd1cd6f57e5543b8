// Package finalize patches decided results before manual overrides and the
// stationarity pass: subsidiary consensus, parent names and provenance.
package finalize

import (
	"sort"

	"upagg/internal/aggregation/country"
	"upagg/internal/aggregation/models"
)

// Input carries the run-wide lookups the patches need.
type Input struct {
	Havens        models.HavenSet
	Table         *country.Table
	Decisions     map[models.EntityID]country.Decision
	Names         NameIndex
	Supranational models.Country
}

// Stats counts what the patches changed.
type Stats struct {
	ConsensusApplied int
	Supranational    int
	Blank            int
}

// Apply runs every patch in order and returns new rows.
func Apply(results []models.Result, in Input) ([]models.Result, Stats) {
	out := make([]models.Result, len(results))
	copy(out, results)

	var st Stats
	st.ConsensusApplied = consensus(out, in.Table, in.Havens)
	names(out, in.Names)
	conflictProvenance(out, in.Decisions)
	st.Blank = blankCountries(out)
	st.Supranational = supranational(out, in.Supranational)
	return out, st
}

// consensus gives every subsidiary of one parent the same country.
func consensus(rows []models.Result, table *country.Table, havens models.HavenSet) int {
	byParent := make(map[models.EntityID][]int)
	for i, r := range rows {
		if r.ParentID != "" {
			byParent[r.ParentID] = append(byParent[r.ParentID], i)
		}
	}

	changed := 0
	for parent, idx := range byParent {
		counts := make(map[models.Country]int)
		for _, i := range idx {
			if c := rows[i].Country; c != "" {
				counts[c]++
			}
		}
		if len(counts) < 2 {
			continue
		}
		winner, ok := pick(parent, counts, table, havens)
		if !ok {
			continue
		}
		for _, i := range idx {
			if rows[i].Country == winner {
				continue
			}
			rows[i].Country = winner
			rows[i].CountryProvenance = models.ProvConsensus
			changed++
		}
	}
	return changed
}

func pick(parent models.EntityID, counts map[models.Country]int, table *country.Table, havens models.HavenSet) (models.Country, bool) {
	var nonHaven []models.Country
	for c := range counts {
		if havens.NonHaven(c) {
			nonHaven = append(nonHaven, c)
		}
	}
	if len(nonHaven) == 1 {
		return nonHaven[0], true
	}

	var domicile models.Country
	if d, ok := table.Lookup(parent); ok {
		domicile = d.Domicile
	}
	if len(nonHaven) == 0 {
		return domicile, domicile != ""
	}
	if havens.NonHaven(domicile) {
		return domicile, true
	}
	sort.Slice(nonHaven, func(i, j int) bool {
		if counts[nonHaven[i]] != counts[nonHaven[j]] {
			return counts[nonHaven[i]] > counts[nonHaven[j]]
		}
		return nonHaven[i] < nonHaven[j]
	})
	return nonHaven[0], true
}

func names(rows []models.Result, idx NameIndex) {
	for i := range rows {
		rows[i].ParentName = idx.Lookup(rows[i].ParentID)
	}
}

// conflictProvenance credits the source whose code won a contested
// harmonization for the ultimate parent.
func conflictProvenance(rows []models.Result, decisions map[models.EntityID]country.Decision) {
	for i := range rows {
		d, ok := decisions[rows[i].ParentID]
		if !ok || !d.Contested() || rows[i].Country != d.Country {
			continue
		}
		rows[i].CountryProvenance = d.Source.String()
	}
}

func blankCountries(rows []models.Result) int {
	n := 0
	for i := range rows {
		if rows[i].Country == "" {
			rows[i].CountryProvenance = models.ProvNoCountry
			n++
		}
	}
	return n
}

// supranational resolves issuers domiciled in the supranational code to themselves.
func supranational(rows []models.Result, code models.Country) int {
	if code == "" {
		return 0
	}
	n := 0
	for i := range rows {
		if rows[i].Domicile != code {
			continue
		}
		rows[i].ParentID = rows[i].EntityID
		rows[i].Country = code
		rows[i].ParentName = rows[i].Name
		rows[i].ParentProvenance = models.ProvSupranational
		rows[i].CountryProvenance = models.ProvSupranational
		n++
	}
	return n
}
