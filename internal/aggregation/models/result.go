package models

import (
	"time"

	"github.com/google/uuid"
)

// CaseCode identifies the decision rule that produced a result.
type CaseCode int

// RescueOffset is added to the case code when a blank country was filled
// from the global country table.
const RescueOffset CaseCode = 100

func (c CaseCode) Rescued() bool { return c >= RescueOffset }

// Base strips the rescue offset.
func (c CaseCode) Base() CaseCode {
	if c.Rescued() {
		return c - RescueOffset
	}
	return c
}

// Provenance literals for results not backed by source labels.
const (
	ProvAssocParent     = "assoc_parent"
	ProvAssocCountry    = "assoc_country"
	ProvAssocModal      = "assoc_modal_country"
	ProvImmediateIssuer = "immediate_issuer"
	ProvDomicile        = "cgs_domicile"
	ProvModal           = "modal_country"
	ProvManual          = "manual_correction"
	ProvSupranational   = "xsn_override"
	ProvDerived         = "derived"
	ProvConsensus       = "subsidiary_consensus"
	ProvNoCountry       = "no_country_source"
)

// Resolution is the decision for one issuer.
type Resolution struct {
	ParentID          EntityID `json:"ultimate_parent_id"`
	Country           Country  `json:"ultimate_country"`
	Case              CaseCode `json:"case_code"`
	ParentProvenance  string   `json:"parent_provenance"`
	CountryProvenance string   `json:"country_provenance"`
	Note              string   `json:"note,omitempty"`
}

// Result is one row of the full output table.
type Result struct {
	EntityID EntityID `json:"entity_id"`
	Name     string   `json:"name"`
	Domicile Country  `json:"domicile"`
	Resolution
	ParentName         string `json:"name_of_ultimate_parent"`
	UsedPrefForParent  bool   `json:"used_pref_for_parent"`
	UsedPrefForCountry bool   `json:"used_pref_for_country"`
}

// CompactResult is the reduced projection of Result.
type CompactResult struct {
	EntityID          EntityID `json:"entity_id"`
	Name              string   `json:"name"`
	Domicile          Country  `json:"domicile"`
	ParentID          EntityID `json:"ultimate_parent_id"`
	Country           Country  `json:"ultimate_country"`
	ParentName        string   `json:"name_of_ultimate_parent"`
	ParentProvenance  string   `json:"parent_provenance"`
	CountryProvenance string   `json:"country_provenance"`
}

func (r Result) Compact() CompactResult {
	return CompactResult{
		EntityID:          r.EntityID,
		Name:              r.Name,
		Domicile:          r.Domicile,
		ParentID:          r.ParentID,
		Country:           r.Country,
		ParentName:        r.ParentName,
		ParentProvenance:  r.ParentProvenance,
		CountryProvenance: r.CountryProvenance,
	}
}

// CompactAll projects results in order.
func CompactAll(results []Result) []CompactResult {
	out := make([]CompactResult, len(results))
	for i, r := range results {
		out[i] = r.Compact()
	}
	return out
}

// Report is the published outcome of one run.
type Report struct {
	RunID       uuid.UUID   `json:"run_id"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	Results     []Result    `json:"-"`
	Diagnostics Diagnostics `json:"diagnostics"`
}
