package decision

import (
	"sort"

	"upagg/internal/aggregation/country"
	"upagg/internal/aggregation/models"
)

// Partition classifies how the present primary sources relate to each other.
type Partition int

const (
	PartitionUnclassified Partition = iota
	PartitionUnanimous
	PartitionSingle
	PartitionNone
	PartitionDistinct
	PartitionMajority
	PartitionPair
	PartitionTwoPairs
)

func (p Partition) String() string {
	switch p {
	case PartitionUnanimous:
		return "unanimous"
	case PartitionSingle:
		return "single"
	case PartitionNone:
		return "none"
	case PartitionDistinct:
		return "distinct"
	case PartitionMajority:
		return "majority"
	case PartitionPair:
		return "pair"
	case PartitionTwoPairs:
		return "two_pairs"
	default:
		return "unclassified"
	}
}

// Candidate is one present primary attestation.
type Candidate struct {
	Source   models.Source
	Rank     int
	ParentID models.EntityID
	Country  models.Country
	Eligible bool
}

// Group is a set of present sources agreeing on the same parent.
type Group struct {
	ParentID models.EntityID
	Country  models.Country
	Sources  []models.Source
	BestRank int
	Label    string
	Eligible bool
}

func (g Group) Size() int { return len(g.Sources) }

// Ladder records which auxiliary signals can stand in for the primaries.
type Ladder struct {
	Assoc      bool
	AssocModal bool
	Domicile   bool
	Modal      bool
}

// Facts is everything a rule may look at for one issuer. It is computed
// once, so predicates and actions are pure functions of it.
type Facts struct {
	ID           models.EntityID
	Domicile     models.Country
	Modal        models.Country
	AssocParent  models.EntityID
	AssocCountry models.Country
	AssocModal   models.Country

	Partition Partition
	Present   []Candidate
	Groups    []Group
	Outliers  []Candidate
	Ladder    Ladder
}

// EligibleCandidates returns the present candidates marked eligible, in rank order.
func (f *Facts) EligibleCandidates() []Candidate {
	return eligibleOf(f.Present)
}

// EligibleOutliers returns the eligible outliers, in rank order.
func (f *Facts) EligibleOutliers() []Candidate {
	return eligibleOf(f.Outliers)
}

func eligibleOf(cands []Candidate) []Candidate {
	var out []Candidate
	for _, c := range cands {
		if c.Eligible {
			out = append(out, c)
		}
	}
	return out
}

type analyzer struct {
	pref   models.Preference
	havens models.HavenSet
	table  *country.Table
}

// eligible reports whether a primary parent may be adopted: its effective
// country (its own, or the table fallback when blank) is a non-haven and
// the table does not settle the parent on a haven.
func (a analyzer) eligible(parent models.EntityID, c models.Country) bool {
	fb := a.table.Fallback(parent)
	effective := c
	if effective == "" {
		effective = fb.Country
	}
	return a.havens.NonHaven(effective) && !a.havens.Contains(fb.Country)
}

func (a analyzer) analyze(iss models.Issuer) Facts {
	f := Facts{
		ID:           iss.ID,
		Domicile:     iss.Domicile,
		Modal:        iss.ModalCountry,
		AssocParent:  iss.AssocParentID,
		AssocCountry: iss.AssocCountry,
		AssocModal:   iss.AssocModalCountry,
	}
	// A modal country stands in whenever its primary counterpart is blank
	// or a haven.
	f.Ladder = Ladder{
		Assoc:      iss.AssocParentID != "" && a.havens.NonHaven(iss.AssocCountry),
		AssocModal: iss.AssocParentID != "" && !a.havens.NonHaven(iss.AssocCountry) && a.havens.NonHaven(iss.AssocModalCountry),
		Domicile:   a.havens.NonHaven(iss.Domicile),
		Modal:      !a.havens.NonHaven(iss.Domicile) && a.havens.NonHaven(iss.ModalCountry),
	}

	for pos, att := range iss.Attest {
		if !att.Present() {
			continue
		}
		src := a.pref.At(pos)
		f.Present = append(f.Present, Candidate{
			Source:   src,
			Rank:     pos + 1,
			ParentID: att.ParentID,
			Country:  att.Country,
			Eligible: a.eligible(att.ParentID, att.Country),
		})
	}

	f.Groups = a.group(f.Present)
	f.Partition = partition(len(f.Present), f.Groups)

	var leading int
	switch f.Partition {
	case PartitionMajority, PartitionPair:
		leading = 1
	case PartitionTwoPairs:
		leading = 2
	}
	if leading > 0 {
		inLeading := make(map[models.EntityID]struct{}, leading)
		for _, g := range f.Groups[:leading] {
			inLeading[g.ParentID] = struct{}{}
		}
		for _, c := range f.Present {
			if _, ok := inLeading[c.ParentID]; ok {
				continue
			}
			c.Eligible = a.havens.NonHaven(c.Country)
			f.Outliers = append(f.Outliers, c)
		}
	}
	return f
}

func (a analyzer) group(present []Candidate) []Group {
	index := make(map[models.EntityID]int, len(present))
	var groups []Group
	for _, c := range present {
		i, ok := index[c.ParentID]
		if !ok {
			index[c.ParentID] = len(groups)
			groups = append(groups, Group{ParentID: c.ParentID, Country: c.Country, BestRank: c.Rank})
			i = len(groups) - 1
		}
		g := &groups[i]
		g.Sources = append(g.Sources, c.Source)
		if g.Country == "" {
			g.Country = c.Country
		}
	}
	for i := range groups {
		groups[i].Label = a.pref.Label(groups[i].Sources)
		groups[i].Eligible = a.eligible(groups[i].ParentID, groups[i].Country)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Size() != groups[j].Size() {
			return groups[i].Size() > groups[j].Size()
		}
		return groups[i].BestRank < groups[j].BestRank
	})
	return groups
}

func partition(present int, groups []Group) Partition {
	switch {
	case present == 0:
		return PartitionNone
	case present == 1:
		return PartitionSingle
	case present == models.NumSources && len(groups) == 1:
		return PartitionUnanimous
	case len(groups) == present:
		return PartitionDistinct
	case groups[0].Size() >= 3:
		return PartitionMajority
	}
	pairs := 0
	for _, g := range groups {
		if g.Size() == 2 {
			pairs++
		}
	}
	switch {
	case pairs == 1:
		return PartitionPair
	case pairs == 2 && present >= 4:
		return PartitionTwoPairs
	default:
		return PartitionUnclassified
	}
}
