package chain

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"upagg/internal/aggregation/graph"
	"upagg/internal/aggregation/models"
)

// Preference positions used below: bvd=0 (rank 1), dlg=1, fds=2, ciq=3, sdc=4 (rank 5).
const (
	bvd = iota
	dlg
	fds
	ciq
	sdc
)

type ChainSuite struct {
	suite.Suite
	resolver *Resolver
}

func TestChainSuite(t *testing.T) {
	suite.Run(t, new(ChainSuite))
}

func (s *ChainSuite) SetupTest() {
	pref := models.MustPreference(map[models.Source]int{"bvd": 1, "dlg": 2, "fds": 3, "ciq": 4, "sdc": 5})
	havens, err := models.NewHavenSet([]string{"BMU", "CYM", "VGB"})
	s.Require().NoError(err)
	s.resolver = NewResolver(pref, havens, 10)
}

func row(id string, attest map[int]models.Attestation) models.Issuer {
	iss := models.Issuer{ID: models.EntityID(id)}
	for pos, a := range attest {
		iss.Attest[pos] = a
	}
	iss.Original = iss.Attest
	return iss
}

func att(parent, country string) models.Attestation {
	return models.Attestation{ParentID: models.EntityID(parent), Country: models.Country(country)}
}

// =============================================================================
// Walk
// =============================================================================

func (s *ChainSuite) TestWalk() {
	s.Run("single differing source is followed to agreement", func() {
		pop := models.NewPopulation([]models.Issuer{
			row("AAAAAA", map[int]models.Attestation{dlg: att("BBBBBB", "DEU")}),
			row("BBBBBB", map[int]models.Attestation{}),
		})
		hops, reason := s.resolver.Walk(pop, Hop{ID: "AAAAAA", Country: "USA", Source: "ciq"})
		s.Equal(graph.StopTerminal, reason)
		s.Require().Len(hops, 2)
		s.Equal(Hop{ID: "BBBBBB", Country: "DEU", Source: "dlg"}, hops[1])
	})

	s.Run("several differing sources pick the best rank and flag it", func() {
		pop := models.NewPopulation([]models.Issuer{
			row("AAAAAA", map[int]models.Attestation{fds: att("CCCCCC", "FRA"), sdc: att("DDDDDD", "ITA")}),
			row("CCCCCC", map[int]models.Attestation{}),
		})
		hops, _ := s.resolver.Walk(pop, Hop{ID: "AAAAAA", Source: "bvd"})
		s.Require().Len(hops, 2)
		s.Equal(models.EntityID("CCCCCC"), hops[1].ID)
		s.Equal(models.Source("fds"), hops[1].Source)
		s.True(hops[1].UsedPreference)
	})

	s.Run("sources agreeing on the same parent do not flag", func() {
		pop := models.NewPopulation([]models.Issuer{
			row("AAAAAA", map[int]models.Attestation{fds: att("CCCCCC", "FRA"), sdc: att("CCCCCC", "FRA")}),
			row("CCCCCC", map[int]models.Attestation{}),
		})
		hops, _ := s.resolver.Walk(pop, Hop{ID: "AAAAAA", Source: "bvd"})
		s.Require().Len(hops, 2)
		s.False(hops[1].UsedPreference)
	})

	s.Run("three-hop cycle keeps the best-ranked hop", func() {
		pop := models.NewPopulation([]models.Issuer{
			row("AAAAAA", map[int]models.Attestation{bvd: att("BBBBBB", "GBR")}),
			row("BBBBBB", map[int]models.Attestation{fds: att("CCCCCC", "FRA")}),
			row("CCCCCC", map[int]models.Attestation{sdc: att("AAAAAA", "ITA")}),
		})
		hops, reason := s.resolver.Walk(pop, Hop{ID: "AAAAAA", Country: "DEU", Source: "ciq"})
		s.Equal(graph.StopCycle, reason)
		s.Require().Len(hops, 2)
		s.Equal(models.EntityID("AAAAAA"), hops[0].ID)
		s.Equal(Hop{ID: "BBBBBB", Country: "GBR", Source: "bvd", UsedPreference: true}, hops[1])
	})

	s.Run("trailing haven hops are pruned", func() {
		pop := models.NewPopulation([]models.Issuer{
			row("AAAAAA", map[int]models.Attestation{dlg: att("BBBBBB", "BMU")}),
			row("BBBBBB", map[int]models.Attestation{fds: att("CCCCCC", "CYM")}),
			row("CCCCCC", map[int]models.Attestation{}),
		})
		hops, _ := s.resolver.Walk(pop, Hop{ID: "AAAAAA", Country: "NLD", Source: "bvd"})
		s.Require().Len(hops, 1)
		s.Equal(models.EntityID("AAAAAA"), hops[0].ID)
	})

	s.Run("chain of havens prunes to empty", func() {
		pop := models.NewPopulation([]models.Issuer{
			row("AAAAAA", map[int]models.Attestation{dlg: att("BBBBBB", "BMU")}),
			row("BBBBBB", map[int]models.Attestation{}),
		})
		hops, _ := s.resolver.Walk(pop, Hop{ID: "AAAAAA", Country: "VGB", Source: "bvd"})
		s.Empty(hops)
	})

	s.Run("missing row mid-walk keeps what was found", func() {
		pop := models.NewPopulation([]models.Issuer{
			row("AAAAAA", map[int]models.Attestation{dlg: att("ZZZZZZ", "CHE")}),
		})
		hops, reason := s.resolver.Walk(pop, Hop{ID: "AAAAAA", Source: "bvd"})
		s.Equal(graph.StopMiss, reason)
		s.Require().Len(hops, 2)
		s.Equal(models.EntityID("ZZZZZZ"), hops[1].ID)
	})
}

// =============================================================================
// Resolve
// =============================================================================

func (s *ChainSuite) TestResolve() {
	s.Run("contradicted parent is rewritten for every child", func() {
		pop := models.NewPopulation([]models.Issuer{
			row("CHILD1", map[int]models.Attestation{sdc: att("PPPPPP", "USA")}),
			row("CHILD2", map[int]models.Attestation{sdc: att("PPPPPP", "USA")}),
			row("PPPPPP", map[int]models.Attestation{bvd: att("QQQQQQ", "CAN")}),
			row("QQQQQQ", map[int]models.Attestation{}),
		})
		next, out := s.resolver.Resolve(pop)

		for _, id := range []models.EntityID{"CHILD1", "CHILD2"} {
			got, _ := next.Lookup(id)
			s.Equal(att("QQQQQQ", "CAN"), got.Attest[sdc])
			s.Equal(models.Source("bvd"), got.OverwriteSource[sdc])
			s.Equal(att("PPPPPP", "USA"), got.Original[sdc])
		}
		s.Equal(2, out.Rewritten)
		s.GreaterOrEqual(out.Walks, 1)

		before, _ := pop.Lookup("CHILD1")
		s.Equal(att("PPPPPP", "USA"), before.Attest[sdc], "input snapshot untouched")
	})

	s.Run("cycle sets the parent preference flag", func() {
		pop := models.NewPopulation([]models.Issuer{
			row("ISSUER", map[int]models.Attestation{ciq: att("AAAAAA", "DEU")}),
			row("AAAAAA", map[int]models.Attestation{bvd: att("BBBBBB", "GBR")}),
			row("BBBBBB", map[int]models.Attestation{fds: att("CCCCCC", "FRA")}),
			row("CCCCCC", map[int]models.Attestation{sdc: att("AAAAAA", "ITA")}),
		})
		next, out := s.resolver.Resolve(pop)

		got, _ := next.Lookup("ISSUER")
		s.Equal(att("BBBBBB", "GBR"), got.Attest[ciq])
		s.True(got.UsedPrefForParent)
		s.GreaterOrEqual(out.CyclesBroken, 1)
	})

	s.Run("uncontested parents are not walked", func() {
		pop := models.NewPopulation([]models.Issuer{
			row("CHILD1", map[int]models.Attestation{bvd: att("PPPPPP", "USA"), dlg: att("PPPPPP", "USA")}),
			row("PPPPPP", map[int]models.Attestation{bvd: att("PPPPPP", "USA")}),
		})
		_, out := s.resolver.Resolve(pop)
		s.Zero(out.Walks)
		s.Zero(out.Rewritten)
	})
}
