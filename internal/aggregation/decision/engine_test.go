package decision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"upagg/internal/aggregation/country"
	"upagg/internal/aggregation/models"
	dErrors "upagg/pkg/domain-errors"
)

// =============================================================================
// Decision Engine Test Suite
// =============================================================================
// Each scenario builds a small population, derives the country table from it
// the same way the pipeline does, and checks the rule that fires.

type DecisionSuite struct {
	suite.Suite
	pref   models.Preference
	havens models.HavenSet
}

func TestDecisionSuite(t *testing.T) {
	suite.Run(t, new(DecisionSuite))
}

func (s *DecisionSuite) SetupTest() {
	s.pref = models.MustPreference(map[models.Source]int{"bvd": 1, "dlg": 2, "fds": 3, "ciq": 4, "sdc": 5})
	h, err := models.NewHavenSet([]string{"BMU", "CYM", "VGB", "JEY", "LUX"})
	s.Require().NoError(err)
	s.havens = h
}

func (s *DecisionSuite) engineFor(rows ...models.Issuer) (*Engine, *models.Population) {
	pop := models.NewPopulation(rows)
	e, err := NewEngine(s.pref, s.havens, country.BuildTable(pop, s.pref, s.havens))
	s.Require().NoError(err)
	return e, pop
}

func (s *DecisionSuite) decide(target models.EntityID, rows ...models.Issuer) models.Resolution {
	e, pop := s.engineFor(rows...)
	iss, ok := pop.Lookup(target)
	s.Require().True(ok)
	res, err := e.Decide(iss)
	s.Require().NoError(err)
	return res
}

func issuer(id string, attest ...string) models.Issuer {
	iss := models.Issuer{ID: models.EntityID(id), Listed: true}
	for pos := 0; pos+1 < len(attest) && pos/2 < models.NumSources; pos += 2 {
		iss.Attest[pos/2] = models.Attestation{ParentID: models.EntityID(attest[pos]), Country: models.Country(attest[pos+1])}
	}
	return iss
}

// =============================================================================
// Unanimous
// =============================================================================

func (s *DecisionSuite) TestUnanimous() {
	s.Run("haven parent gives way to the associated issuer", func() {
		iss := issuer("AAAAAA", "BBBBBB", "BMU", "BBBBBB", "BMU", "BBBBBB", "BMU", "BBBBBB", "BMU", "BBBBBB", "BMU")
		iss.AssocParentID = "BBBBBB"
		iss.AssocCountry = "FRA"

		res := s.decide("AAAAAA", iss)
		s.Equal(models.EntityID("BBBBBB"), res.ParentID)
		s.Equal(models.Country("FRA"), res.Country)
		s.Equal(models.CaseCode(2), res.Case)
		s.Equal(models.ProvAssocParent, res.ParentProvenance)
		s.Equal(models.ProvAssocCountry, res.CountryProvenance)
	})

	s.Run("agreeing non-haven parent", func() {
		iss := issuer("AAAAAA", "PPPPPP", "DEU", "PPPPPP", "DEU", "PPPPPP", "DEU", "PPPPPP", "DEU", "PPPPPP", "DEU")
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(1), res.Case)
		s.Equal("bvd dlg fds ciq sdc", res.ParentProvenance)
		s.Equal(models.Country("DEU"), res.Country)
	})

	s.Run("haven accepted when nothing else is known", func() {
		iss := issuer("AAAAAA", "PPPPPP", "CYM", "PPPPPP", "CYM", "PPPPPP", "CYM", "PPPPPP", "CYM", "PPPPPP", "CYM")
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(6), res.Case)
		s.Equal(models.Country("CYM"), res.Country)
	})
}

// =============================================================================
// Single and None
// =============================================================================

func (s *DecisionSuite) TestSingle() {
	s.Run("eligible single source", func() {
		iss := issuer("AAAAAA", "", "", "", "", "PPPPPP", "CAN")
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(7), res.Case)
		s.Equal("fds", res.ParentProvenance)
	})

	s.Run("haven single source yields to a non-haven domicile", func() {
		iss := issuer("AAAAAA", "PPPPPP", "VGB")
		iss.Domicile = "USA"
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(10), res.Case)
		s.Equal(models.EntityID("AAAAAA"), res.ParentID)
		s.Equal(models.Country("USA"), res.Country)
		s.Equal(models.ProvImmediateIssuer, res.ParentProvenance)
	})

	s.Run("blank country rescued from the country table", func() {
		target := issuer("AAAAAA", "PPPPPP", "")
		peer := issuer("CCCCCC", "", "", "", "", "PPPPPP", "DEU")
		res := s.decide("AAAAAA", target, peer)
		s.Equal(models.CaseCode(107), res.Case)
		s.Equal(models.Country("DEU"), res.Country)
		s.Equal("fds", res.CountryProvenance)
		s.Equal("blank country replaced with fds", res.Note)
	})
}

func (s *DecisionSuite) TestNone() {
	s.Run("non-haven domicile", func() {
		iss := issuer("AAAAAA")
		iss.Domicile = "JPN"
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(15), res.Case)
	})

	s.Run("haven domicile with non-haven modal country", func() {
		iss := issuer("AAAAAA")
		iss.Domicile = "JEY"
		iss.ModalCountry = "GBR"
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(16), res.Case)
		s.Equal(models.Country("GBR"), res.Country)
	})

	s.Run("associated parent accepted even in a haven", func() {
		iss := issuer("AAAAAA")
		iss.AssocParentID = "QQQQQQ"
		iss.AssocCountry = "CYM"
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(17), res.Case)
		s.Equal(models.EntityID("QQQQQQ"), res.ParentID)
	})

	s.Run("nothing known at all", func() {
		res := s.decide("AAAAAA", issuer("AAAAAA"))
		s.Equal(models.CaseCode(118), res.Case)
		s.Equal(models.EntityID("AAAAAA"), res.ParentID)
		s.Empty(res.Country)
		s.Equal("no non-blank country code present", res.Note)
	})
}

// =============================================================================
// Distinct
// =============================================================================

func (s *DecisionSuite) TestDistinct() {
	s.Run("exactly one eligible", func() {
		iss := issuer("AAAAAA", "P1", "BMU", "P2", "CYM", "P3", "ESP")
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(19), res.Case)
		s.Equal(models.EntityID("P3"), res.ParentID)
	})

	s.Run("several eligible pick the best rank", func() {
		iss := issuer("AAAAAA", "P1", "BMU", "P2", "ITA", "P3", "ESP")
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(25), res.Case)
		s.Equal(models.EntityID("P2"), res.ParentID)
		s.Equal("dlg", res.ParentProvenance)
	})

	s.Run("no eligible and no ladder signal", func() {
		iss := issuer("AAAAAA", "P1", "BMU", "P2", "CYM")
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(24), res.Case)
		s.Equal(models.EntityID("P1"), res.ParentID)
	})
}

// =============================================================================
// Majority and Pair
// =============================================================================

func (s *DecisionSuite) TestMajority() {
	s.Run("eligible majority", func() {
		iss := issuer("AAAAAA", "PM", "NLD", "PM", "NLD", "PM", "NLD", "PX", "BMU")
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(26), res.Case)
		s.Equal("bvd dlg fds", res.ParentProvenance)
	})

	s.Run("haven majority loses to a single non-haven outlier", func() {
		iss := issuer("AAAAAA", "PM", "BMU", "PM", "BMU", "PX", "SWE", "PM", "BMU")
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(27), res.Case)
		s.Equal(models.EntityID("PX"), res.ParentID)
	})

	s.Run("two eligible outliers by rank", func() {
		iss := issuer("AAAAAA", "PM", "BMU", "PX", "SWE", "PM", "BMU", "PY", "NOR", "PM", "BMU")
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(28), res.Case)
		s.Equal(models.EntityID("PX"), res.ParentID)
	})
}

func (s *DecisionSuite) TestPair() {
	s.Run("eligible pair", func() {
		iss := issuer("AAAAAA", "PP", "AUS", "PX", "BMU", "PP", "AUS")
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(35), res.Case)
		s.Equal("bvd fds", res.ParentProvenance)
	})

	s.Run("two present sources agreeing form a pair", func() {
		iss := issuer("AAAAAA", "", "", "", "", "", "", "PP", "AUS", "PP", "AUS")
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(35), res.Case)
		s.Equal("ciq sdc", res.ParentProvenance)
	})

	s.Run("three eligible outliers pick the best rank", func() {
		iss := issuer("AAAAAA", "P1", "ITA", "PP", "CYM", "P3", "ESP", "PP", "CYM", "P5", "PRT")
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(39), res.Case)
		s.Equal(models.EntityID("P1"), res.ParentID)
	})

	s.Run("haven pair without alternatives", func() {
		iss := issuer("AAAAAA", "PP", "CYM", "PX", "BMU", "PP", "CYM")
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(46), res.Case)
		s.Equal(models.EntityID("PP"), res.ParentID)
	})
}

// =============================================================================
// Two Pairs
// =============================================================================

func (s *DecisionSuite) TestTwoPairs() {
	s.Run("only the better-ranked pair is eligible", func() {
		iss := issuer("AAAAAA", "PA", "DEU", "PB", "BMU", "PA", "DEU", "PB", "BMU")
		s.Equal(models.CaseCode(47), s.decide("AAAAAA", iss).Case)
	})

	s.Run("only the other pair is eligible", func() {
		iss := issuer("AAAAAA", "PA", "BMU", "PB", "DEU", "PA", "BMU", "PB", "DEU")
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(48), res.Case)
		s.Equal(models.EntityID("PB"), res.ParentID)
	})

	s.Run("both eligible", func() {
		iss := issuer("AAAAAA", "PA", "DEU", "PB", "FRA", "PB", "FRA", "PA", "DEU")
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(49), res.Case)
		s.Equal(models.EntityID("PA"), res.ParentID)
	})

	s.Run("eligible outlier", func() {
		iss := issuer("AAAAAA", "PA", "BMU", "PB", "CYM", "PA", "BMU", "PB", "CYM", "PX", "CHE")
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(51), res.Case)
		s.Equal(models.EntityID("PX"), res.ParentID)
	})
}

// =============================================================================
// Rule table and preconditions
// =============================================================================

func (s *DecisionSuite) TestRuleTable() {
	seen := make(map[models.CaseCode]string)
	for _, r := range Rules() {
		s.NotNil(r.When, r.Name)
		s.NotNil(r.Then, r.Name)
		s.NotEqual(PartitionUnclassified, r.Partition, r.Name)
		prev, dup := seen[r.Case]
		s.False(dup, "case %d used by %s and %s", r.Case, prev, r.Name)
		seen[r.Case] = r.Name
	}

	s.Equal("unanimous_assoc", RuleName(2))
	s.Equal("single_rescued", RuleName(107))
	s.Equal("unknown", RuleName(29))
}

func (s *DecisionSuite) TestEveryPartitionEndsWithAFallback() {
	last := make(map[Partition]Rule)
	for _, r := range Rules() {
		last[r.Partition] = r
	}
	for _, p := range []Partition{
		PartitionUnanimous, PartitionSingle, PartitionNone, PartitionDistinct,
		PartitionMajority, PartitionPair, PartitionTwoPairs,
	} {
		r, ok := last[p]
		s.Require().True(ok, p.String())
		s.True(r.When(&Facts{}), "%s must end with an unconditional rule", p)
	}
}

func (s *DecisionSuite) TestPreconditions() {
	f := &Facts{
		ID:        "AAAAAA",
		Partition: PartitionTwoPairs,
		Groups:    []Group{{Sources: []models.Source{"bvd", "dlg"}}, {Sources: []models.Source{"fds"}}},
	}
	err := checkPreconditions(f)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	f.Groups[1].Sources = []models.Source{"fds", "ciq"}
	f.Outliers = []Candidate{{Source: "sdc"}, {Source: "sdc"}}
	s.True(dErrors.HasCode(checkPreconditions(f), dErrors.CodeInvariantViolation))

	f.Outliers = f.Outliers[:1]
	s.NoError(checkPreconditions(f))
}

func (s *DecisionSuite) TestNewEngine() {
	_, err := NewEngine(s.pref, s.havens, nil)
	s.Error(err)

	pop := models.NewPopulation(nil)
	_, err = NewEngine(models.Preference{}, s.havens, country.BuildTable(pop, s.pref, s.havens))
	s.True(dErrors.HasCode(err, dErrors.CodeConfig))
}

// =============================================================================
// DecideAll
// =============================================================================

func (s *DecisionSuite) TestDecideAll() {
	rows := []models.Issuer{
		issuer("CCCCCC", "PP", "DEU"),
		issuer("AAAAAA", "PP", "DEU"),
		issuer("BBBBBB"),
	}
	rows[0].UsedPrefForParent = true
	rows[1].Name = "ALPHA"
	e, pop := s.engineFor(rows...)

	results, err := e.DecideAll(context.Background(), pop, 2)
	s.Require().NoError(err)
	s.Require().Len(results, 3)
	s.Equal(models.EntityID("AAAAAA"), results[0].EntityID)
	s.Equal("ALPHA", results[0].Name)
	s.Equal(models.EntityID("CCCCCC"), results[2].EntityID)
	s.True(results[2].UsedPrefForParent)
	s.Equal(models.CaseCode(7), results[2].Case)

	empty, err := e.DecideAll(context.Background(), models.NewPopulation(nil), 4)
	s.NoError(err)
	s.Empty(empty)
}

func (s *DecisionSuite) TestDecideAllHonoursCancellation() {
	e, pop := s.engineFor(issuer("AAAAAA"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.DecideAll(ctx, pop, 1)
	s.ErrorIs(err, context.Canceled)
}

// =============================================================================
// Haven exclusion
// =============================================================================

func (s *DecisionSuite) TestModalStandsInForBlankCountries() {
	s.Run("single haven source with blank domicile uses the modal country", func() {
		iss := issuer("AAAAAA", "PPPPPP", "VGB")
		iss.ModalCountry = "DEU"
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(11), res.Case)
		s.Equal(models.Country("DEU"), res.Country)
		s.Equal(models.ProvModal, res.CountryProvenance)
	})

	s.Run("unanimous haven with blank associated country uses the associated modal", func() {
		iss := issuer("AAAAAA", "BBBBBB", "BMU", "BBBBBB", "BMU", "BBBBBB", "BMU", "BBBBBB", "BMU", "BBBBBB", "BMU")
		iss.AssocParentID = "QQQQQQ"
		iss.AssocModalCountry = "FRA"
		res := s.decide("AAAAAA", iss)
		s.Equal(models.CaseCode(3), res.Case)
		s.Equal(models.EntityID("QQQQQQ"), res.ParentID)
		s.Equal(models.Country("FRA"), res.Country)
		s.Equal(models.ProvAssocModal, res.CountryProvenance)
	})
}

func (s *DecisionSuite) TestHavenNeverBeatsAvailableNonHaven() {
	shapes := map[string][]string{
		"unanimous": {"P1", "BMU", "P1", "BMU", "P1", "BMU", "P1", "BMU", "P1", "BMU"},
		"single":    {"", "", "", "", "P1", "VGB"},
		"distinct":  {"P1", "BMU", "P2", "CYM"},
		"majority":  {"P1", "BMU", "P1", "BMU", "P1", "BMU", "P2", "CYM"},
		"pair":      {"P1", "BMU", "P1", "BMU", "P2", "CYM", "P3", "VGB"},
		"two pairs": {"P1", "BMU", "P1", "BMU", "P2", "CYM", "P2", "CYM"},
	}
	signals := map[string]func(*models.Issuer){
		"domicile":              func(i *models.Issuer) { i.Domicile = "DEU" },
		"modal, blank domicile": func(i *models.Issuer) { i.ModalCountry = "DEU" },
		"modal, haven domicile": func(i *models.Issuer) { i.Domicile = "JEY"; i.ModalCountry = "DEU" },
		"assoc country":         func(i *models.Issuer) { i.AssocParentID = "QQQQQQ"; i.AssocCountry = "FRA" },
		"assoc modal, blank assoc country": func(i *models.Issuer) {
			i.AssocParentID = "QQQQQQ"
			i.AssocModalCountry = "FRA"
		},
		"assoc modal, haven assoc country": func(i *models.Issuer) {
			i.AssocParentID = "QQQQQQ"
			i.AssocCountry = "CYM"
			i.AssocModalCountry = "FRA"
		},
	}
	for shape, attest := range shapes {
		for signal, apply := range signals {
			s.Run(shape+" with "+signal, func() {
				iss := issuer("AAAAAA", attest...)
				apply(&iss)
				res := s.decide("AAAAAA", iss)
				s.True(s.havens.NonHaven(res.Country), "case %d resolved to %q", res.Case, res.Country)
			})
		}
	}
}
