package country

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"upagg/internal/aggregation/models"
	dErrors "upagg/pkg/domain-errors"
)

type CountrySuite struct {
	suite.Suite
	pref   models.Preference
	havens models.HavenSet
}

func TestCountrySuite(t *testing.T) {
	suite.Run(t, new(CountrySuite))
}

func (s *CountrySuite) SetupTest() {
	s.pref = models.MustPreference(map[models.Source]int{"bvd": 1, "dlg": 2, "fds": 3, "ciq": 4, "sdc": 5})
	h, err := models.NewHavenSet([]string{"BMU", "CYM", "VGB", "JEY"})
	s.Require().NoError(err)
	s.havens = h
}

// =============================================================================
// Resolve
// =============================================================================

func (s *CountrySuite) TestResolve() {
	s.Run("no candidates", func() {
		d, err := Resolve(nil, "", "", s.havens)
		s.Require().NoError(err)
		s.False(d.Resolved())
		s.False(d.UsedPreference)
	})

	s.Run("single non-haven candidate adopted", func() {
		d, err := Resolve([]Candidate{{"DEU", "fds"}}, "", "", s.havens)
		s.Require().NoError(err)
		s.Equal(models.Country("DEU"), d.Country)
		s.Equal(models.Source("fds"), d.Source)
		s.False(d.Contested())
	})

	s.Run("single haven candidate stays unresolved", func() {
		d, err := Resolve([]Candidate{{"BMU", "bvd"}}, "", "", s.havens)
		s.Require().NoError(err)
		s.False(d.Resolved())
	})

	s.Run("exactly one non-haven among three", func() {
		d, err := Resolve([]Candidate{{"BMU", "bvd"}, {"FRA", "fds"}, {"CYM", "sdc"}}, "", "", s.havens)
		s.Require().NoError(err)
		s.Equal(models.Country("FRA"), d.Country)
		s.False(d.UsedPreference)
		s.True(d.Contested())
	})

	s.Run("two havens fall back to the better rank", func() {
		d, err := Resolve([]Candidate{{"CYM", "dlg"}, {"BMU", "ciq"}}, "", "", s.havens)
		s.Require().NoError(err)
		s.Equal(models.Country("CYM"), d.Country)
		s.Equal(models.Source("dlg"), d.Source)
		s.True(d.UsedPreference)
	})

	s.Run("modal country breaks the tie", func() {
		d, err := Resolve([]Candidate{{"USA", "bvd"}, {"GBR", "dlg"}}, "GBR", "USA", s.havens)
		s.Require().NoError(err)
		s.Equal(models.Country("GBR"), d.Country)
		s.False(d.UsedPreference)
	})

	s.Run("associated country breaks the tie when modal does not match", func() {
		d, err := Resolve([]Candidate{{"USA", "bvd"}, {"GBR", "dlg"}, {"ITA", "sdc"}}, "ESP", "ITA", s.havens)
		s.Require().NoError(err)
		s.Equal(models.Country("ITA"), d.Country)
		s.Equal(models.Source("sdc"), d.Source)
	})

	s.Run("several non-havens without ties use preference", func() {
		d, err := Resolve([]Candidate{{"USA", "fds"}, {"GBR", "ciq"}}, "", "", s.havens)
		s.Require().NoError(err)
		s.Equal(models.Country("USA"), d.Country)
		s.True(d.UsedPreference)
	})

	s.Run("five candidates are unsupported", func() {
		_, err := Resolve([]Candidate{{"A1", "bvd"}, {"A2", "dlg"}, {"A3", "fds"}, {"A4", "ciq"}, {"A5", "sdc"}}, "", "", s.havens)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnsupportedCardinality))
	})
}

// =============================================================================
// Harmonize
// =============================================================================

func (s *CountrySuite) TestHarmonize() {
	s.Run("winner written onto every attestation of the parent", func() {
		a := models.Issuer{ID: "AAAAAA"}
		a.Attest[0] = models.Attestation{ParentID: "PPPPPP", Country: "BMU"}
		a.Attest[2] = models.Attestation{ParentID: "PPPPPP", Country: "LUX"}
		b := models.Issuer{ID: "BBBBBB"}
		b.Attest[4] = models.Attestation{ParentID: "PPPPPP", Country: ""}

		next, out, err := Harmonize(models.NewPopulation([]models.Issuer{a, b}), s.pref, s.havens)
		s.Require().NoError(err)
		s.Equal(1, out.Conflicts)
		s.Equal(models.Source("fds"), out.Decisions["PPPPPP"].Source)

		gotA, _ := next.Lookup("AAAAAA")
		s.Equal(models.Country("LUX"), gotA.Attest[0].Country)
		s.Equal(models.Country("LUX"), gotA.Attest[2].Country)
		s.False(gotA.UsedPrefForCountry)

		gotB, _ := next.Lookup("BBBBBB")
		s.Equal(models.Country("LUX"), gotB.Attest[4].Country, "blank report filled from peers")
	})

	s.Run("preference flag marks issuers of the parent", func() {
		a := models.Issuer{ID: "AAAAAA"}
		a.Attest[1] = models.Attestation{ParentID: "PPPPPP", Country: "CYM"}
		a.Attest[3] = models.Attestation{ParentID: "PPPPPP", Country: "BMU"}

		next, _, err := Harmonize(models.NewPopulation([]models.Issuer{a}), s.pref, s.havens)
		s.Require().NoError(err)
		got, _ := next.Lookup("AAAAAA")
		s.Equal(models.Country("CYM"), got.Attest[3].Country)
		s.True(got.UsedPrefForCountry)
	})

	s.Run("parent's own modal country is consulted", func() {
		a := models.Issuer{ID: "AAAAAA"}
		a.Attest[0] = models.Attestation{ParentID: "PPPPPP", Country: "USA"}
		a.Attest[1] = models.Attestation{ParentID: "PPPPPP", Country: "CAN"}
		p := models.Issuer{ID: "PPPPPP", ModalCountry: "CAN"}

		next, out, err := Harmonize(models.NewPopulation([]models.Issuer{a, p}), s.pref, s.havens)
		s.Require().NoError(err)
		s.Equal(models.Source("dlg"), out.Decisions["PPPPPP"].Source)
		got, _ := next.Lookup("AAAAAA")
		s.Equal(models.Country("CAN"), got.Attest[0].Country)
	})

	s.Run("single haven left as is", func() {
		a := models.Issuer{ID: "AAAAAA"}
		a.Attest[0] = models.Attestation{ParentID: "PPPPPP", Country: "BMU"}

		next, out, err := Harmonize(models.NewPopulation([]models.Issuer{a}), s.pref, s.havens)
		s.Require().NoError(err)
		s.Empty(out.Decisions)
		got, _ := next.Lookup("AAAAAA")
		s.Equal(models.Country("BMU"), got.Attest[0].Country)
	})
}

// =============================================================================
// Table
// =============================================================================

func (s *CountrySuite) TestTableFallback() {
	a := models.Issuer{ID: "AAAAAA", Domicile: "JEY", ModalCountry: "GBR"}
	a.Attest[1] = models.Attestation{ParentID: "PPPPPP", Country: "BMU"}
	a.Attest[3] = models.Attestation{ParentID: "PPPPPP", Country: "NLD"}
	p := models.Issuer{ID: "PPPPPP", AssocCountry: "CYM", Domicile: "VGB"}
	q := models.Issuer{ID: "QQQQQQ", Domicile: "VGB"}
	r := models.Issuer{ID: "RRRRRR"}
	t := BuildTable(models.NewPopulation([]models.Issuer{a, p, q, r}), s.pref, s.havens)

	s.Run("first non-haven source country by rank", func() {
		fb := t.Fallback("PPPPPP")
		s.Equal(Fallback{Country: "NLD", Label: "ciq", Found: true}, fb)
	})

	s.Run("modal country after a haven domicile", func() {
		fb := t.Fallback("AAAAAA")
		s.Equal(Fallback{Country: "GBR", Label: models.ProvModal, Found: true}, fb)
	})

	s.Run("haven domicile accepted last", func() {
		fb := t.Fallback("QQQQQQ")
		s.Equal(Fallback{Country: "VGB", Label: models.ProvDomicile, Found: true}, fb)
	})

	s.Run("nothing known", func() {
		s.Equal(Fallback{Found: true}, t.Fallback("RRRRRR"))
	})

	s.Run("unknown id", func() {
		s.False(t.Fallback("ZZZZZZ").Found)
	})
}
