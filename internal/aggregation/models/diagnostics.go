package models

// Diagnostics accumulates non-fatal conditions observed during a run.
type Diagnostics struct {
	Cyclic        map[string]int `json:"cyclic"`
	DepthExceeded map[string]int `json:"depth_exceeded"`

	ExcludedRows        int `json:"excluded_rows"`
	AssocLinked         int `json:"assoc_linked"`
	CountryConflicts    int `json:"country_conflicts"`
	ChainWalks          int `json:"chain_walks"`
	ChainWalksExhausted int `json:"chain_walks_exhausted"`
	ChainCyclesBroken   int `json:"chain_cycles_broken"`
	ChainsRewritten     int `json:"chains_rewritten"`

	Rescued          int              `json:"rescued"`
	BlankCountries   int              `json:"blank_countries"`
	Supranational    int              `json:"supranational"`
	CaseCounts       map[CaseCode]int `json:"case_counts"`
	ConsensusApplied int              `json:"consensus_applied"`

	OverridesApplied        int `json:"overrides_applied"`
	OverrideChildrenMissing int `json:"override_children_missing"`
	DerivedPatches          int `json:"derived_patches"`
	DroppedCyclic           int `json:"dropped_cyclic"`
	InvalidIDsFiltered      int `json:"invalid_ids_filtered"`
}

func NewDiagnostics() Diagnostics {
	return Diagnostics{
		Cyclic:        make(map[string]int),
		DepthExceeded: make(map[string]int),
		CaseCounts:    make(map[CaseCode]int),
	}
}
