package decision

import (
	"upagg/internal/aggregation/models"
)

// Rule is one predicate+action pair of the decision table. Rules are
// evaluated top-down and the first rule of the issuer's partition whose
// predicate holds produces the resolution.
type Rule struct {
	Case      models.CaseCode
	Name      string
	Partition Partition
	When      func(f *Facts) bool
	Then      func(f *Facts) models.Resolution
}

// Rules returns a copy of the ordered decision table.
func Rules() []Rule {
	out := make([]Rule, len(ruleTable))
	copy(out, ruleTable)
	return out
}

var ruleTable = buildRules()

func buildRules() []Rule {
	var rs []Rule
	add := func(r ...Rule) { rs = append(rs, r...) }

	// All five sources agree.
	add(Rule{Case: 1, Name: "unanimous", Partition: PartitionUnanimous, When: groupEligible(0), Then: useGroup(0)})
	add(ladder(PartitionUnanimous, 2)...)
	add(Rule{Case: 6, Name: "unanimous_haven", Partition: PartitionUnanimous, When: always, Then: useGroup(0)})

	// Exactly one source attests a parent.
	add(Rule{Case: 7, Name: "single", Partition: PartitionSingle, When: presentEligible(0), Then: usePresent(0)})
	add(ladder(PartitionSingle, 8)...)
	add(Rule{Case: 12, Name: "single_haven", Partition: PartitionSingle, When: always, Then: usePresent(0)})

	// No source attests a parent.
	add(ladder(PartitionNone, 13)...)
	add(Rule{Case: 17, Name: "none_assoc_haven", Partition: PartitionNone, When: hasAssocParent, Then: useAssoc})
	add(Rule{Case: 18, Name: "none_self", Partition: PartitionNone, When: always, Then: useDomicile})

	// Every present source names a different parent.
	add(Rule{Case: 19, Name: "distinct_one_eligible", Partition: PartitionDistinct, When: eligibleCount(1), Then: useFirstEligible})
	add(Rule{Case: 25, Name: "distinct_many_eligible", Partition: PartitionDistinct, When: eligibleAtLeast(2), Then: useFirstEligible})
	add(ladder(PartitionDistinct, 20)...)
	add(Rule{Case: 24, Name: "distinct_by_rank", Partition: PartitionDistinct, When: always, Then: usePresent(0)})

	// Three or more sources agree.
	add(Rule{Case: 26, Name: "majority", Partition: PartitionMajority, When: groupEligible(0), Then: useGroup(0)})
	add(Rule{Case: 27, Name: "majority_one_outlier", Partition: PartitionMajority, When: outlierCount(1), Then: useFirstEligibleOutlier})
	add(Rule{Case: 28, Name: "majority_outliers_by_rank", Partition: PartitionMajority, When: outlierAtLeast(2), Then: useFirstEligibleOutlier})
	add(ladder(PartitionMajority, 30)...)
	add(Rule{Case: 34, Name: "majority_haven", Partition: PartitionMajority, When: always, Then: useGroup(0)})

	// Exactly one pair agrees.
	add(Rule{Case: 35, Name: "pair", Partition: PartitionPair, When: groupEligible(0), Then: useGroup(0)})
	add(Rule{Case: 36, Name: "pair_one_outlier", Partition: PartitionPair, When: outlierCount(1), Then: useFirstEligibleOutlier})
	add(Rule{Case: 37, Name: "pair_two_outliers", Partition: PartitionPair, When: outlierCount(2), Then: useFirstEligibleOutlier})
	add(Rule{Case: 39, Name: "pair_three_outliers", Partition: PartitionPair, When: outlierCount(3), Then: useFirstEligibleOutlier})
	add(ladder(PartitionPair, 42)...)
	add(Rule{Case: 46, Name: "pair_haven", Partition: PartitionPair, When: always, Then: useGroup(0)})

	// Two pairs agree on different parents.
	add(Rule{Case: 47, Name: "two_pairs_first", Partition: PartitionTwoPairs, When: onlyGroupEligible(0, 1), Then: useGroup(0)})
	add(Rule{Case: 48, Name: "two_pairs_second", Partition: PartitionTwoPairs, When: onlyGroupEligible(1, 0), Then: useGroup(1)})
	add(Rule{Case: 49, Name: "two_pairs_by_rank", Partition: PartitionTwoPairs, When: bothGroupsEligible, Then: useGroup(0)})
	add(Rule{Case: 51, Name: "two_pairs_outlier", Partition: PartitionTwoPairs, When: outlierCount(1), Then: useFirstEligibleOutlier})
	add(ladder(PartitionTwoPairs, 52)...)
	add(Rule{Case: 56, Name: "two_pairs_haven", Partition: PartitionTwoPairs, When: always, Then: useGroup(0)})

	return rs
}

// ladder builds the four auxiliary-signal rules tried once the primaries
// offer no eligible parent.
func ladder(p Partition, base models.CaseCode) []Rule {
	prefix := p.String()
	return []Rule{
		{Case: base, Name: prefix + "_assoc", Partition: p, When: ladderAssoc, Then: useAssoc},
		{Case: base + 1, Name: prefix + "_assoc_modal", Partition: p, When: ladderAssocModal, Then: useAssocModal},
		{Case: base + 2, Name: prefix + "_domicile", Partition: p, When: ladderDomicile, Then: useDomicile},
		{Case: base + 3, Name: prefix + "_modal", Partition: p, When: ladderModal, Then: useModal},
	}
}

// predicates

func always(*Facts) bool { return true }

func hasAssocParent(f *Facts) bool { return f.AssocParent != "" }

func ladderAssoc(f *Facts) bool      { return f.Ladder.Assoc }
func ladderAssocModal(f *Facts) bool { return f.Ladder.AssocModal }
func ladderDomicile(f *Facts) bool   { return f.Ladder.Domicile }
func ladderModal(f *Facts) bool      { return f.Ladder.Modal }

func groupEligible(i int) func(*Facts) bool {
	return func(f *Facts) bool { return len(f.Groups) > i && f.Groups[i].Eligible }
}

func onlyGroupEligible(yes, no int) func(*Facts) bool {
	return func(f *Facts) bool {
		return len(f.Groups) > yes && len(f.Groups) > no && f.Groups[yes].Eligible && !f.Groups[no].Eligible
	}
}

func bothGroupsEligible(f *Facts) bool {
	return len(f.Groups) > 1 && f.Groups[0].Eligible && f.Groups[1].Eligible
}

func presentEligible(i int) func(*Facts) bool {
	return func(f *Facts) bool { return len(f.Present) > i && f.Present[i].Eligible }
}

func eligibleCount(n int) func(*Facts) bool {
	return func(f *Facts) bool { return len(f.EligibleCandidates()) == n }
}

func eligibleAtLeast(n int) func(*Facts) bool {
	return func(f *Facts) bool { return len(f.EligibleCandidates()) >= n }
}

func outlierCount(n int) func(*Facts) bool {
	return func(f *Facts) bool { return len(f.EligibleOutliers()) == n }
}

func outlierAtLeast(n int) func(*Facts) bool {
	return func(f *Facts) bool { return len(f.EligibleOutliers()) >= n }
}

// actions

func useGroup(i int) func(*Facts) models.Resolution {
	return func(f *Facts) models.Resolution {
		g := f.Groups[i]
		return models.Resolution{ParentID: g.ParentID, Country: g.Country, ParentProvenance: g.Label, CountryProvenance: g.Label}
	}
}

func usePresent(i int) func(*Facts) models.Resolution {
	return func(f *Facts) models.Resolution { return fromCandidate(f.Present[i]) }
}

func useFirstEligible(f *Facts) models.Resolution {
	return fromCandidate(f.EligibleCandidates()[0])
}

func useFirstEligibleOutlier(f *Facts) models.Resolution {
	return fromCandidate(f.EligibleOutliers()[0])
}

func fromCandidate(c Candidate) models.Resolution {
	label := c.Source.String()
	return models.Resolution{ParentID: c.ParentID, Country: c.Country, ParentProvenance: label, CountryProvenance: label}
}

func useAssoc(f *Facts) models.Resolution {
	return models.Resolution{
		ParentID: f.AssocParent, Country: f.AssocCountry,
		ParentProvenance: models.ProvAssocParent, CountryProvenance: models.ProvAssocCountry,
	}
}

func useAssocModal(f *Facts) models.Resolution {
	return models.Resolution{
		ParentID: f.AssocParent, Country: f.AssocModal,
		ParentProvenance: models.ProvAssocParent, CountryProvenance: models.ProvAssocModal,
	}
}

func useDomicile(f *Facts) models.Resolution {
	return models.Resolution{
		ParentID: f.ID, Country: f.Domicile,
		ParentProvenance: models.ProvImmediateIssuer, CountryProvenance: models.ProvDomicile,
	}
}

func useModal(f *Facts) models.Resolution {
	return models.Resolution{
		ParentID: f.ID, Country: f.Modal,
		ParentProvenance: models.ProvImmediateIssuer, CountryProvenance: models.ProvModal,
	}
}
