package service

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"upagg/internal/aggregation/chain"
	"upagg/internal/aggregation/config"
	"upagg/internal/aggregation/country"
	"upagg/internal/aggregation/decision"
	"upagg/internal/aggregation/finalize"
	"upagg/internal/aggregation/flatten"
	"upagg/internal/aggregation/models"
	"upagg/internal/aggregation/overrides"
	"upagg/internal/aggregation/population"
	"upagg/internal/aggregation/stationarity"
	dErrors "upagg/pkg/domain-errors"
)

const assocRelation = "assoc"

// run carries the intermediate snapshots of one Resolve call. Each stage
// reads the previous stage's output and replaces it.
type run struct {
	svc    *Service
	ds     *models.Dataset
	policy *config.Policy
	diag   *models.Diagnostics

	issuers   []models.IssuerRecord
	rows      [models.NumSources][]models.RawAttestation
	tables    [models.NumSources]flatten.Table
	assoc     flatten.Table
	pop       *models.Population
	decisions map[models.EntityID]country.Decision
	table     *country.Table
	results   []models.Result
}

type stage struct {
	name string
	fn   func(context.Context) error
}

func (r *run) stages() []stage {
	return []stage{
		{"prepare", r.prepare},
		{"flatten", r.flatten},
		{"assemble", r.assemble},
		{"harmonize", r.harmonize},
		{"chain", r.chain},
		{"decide", r.decide},
		{"finalize", r.finalize},
		{"overrides", r.overrides},
		{"stationarity", r.stationarity},
		{"output", r.output},
	}
}

func (r *run) prepare(_ context.Context) error {
	for src := range r.ds.Attestations {
		if _, ok := r.policy.Preference.Index(src); !ok {
			return dErrors.Newf(dErrors.CodeInvalidInput, "attestations for unknown source %q", src)
		}
	}
	r.issuers = overrides.AliasIssuers(r.ds.Issuers, r.policy)
	for pos := range r.rows {
		src := r.policy.Preference.At(pos)
		rows, dropped := overrides.Prepare(src, r.ds.Attestations[src], r.policy)
		r.rows[pos] = rows
		r.diag.ExcludedRows += dropped
	}
	return nil
}

// flatten runs the five source relations and the associated-issuer relation
// in parallel. Each goroutine owns one slot.
func (r *run) flatten(ctx context.Context) error {
	depth := r.policy.FlattenDepth
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(r.svc.workers)
	for pos := range r.tables {
		g.Go(func() error {
			r.tables[pos] = flatten.Attestations(r.rows[pos], depth)
			return nil
		})
	}
	g.Go(func() error {
		r.assoc = flatten.Attestations(population.AssocEdges(r.issuers), depth)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for pos, t := range r.tables {
		src := r.policy.Preference.At(pos).String()
		r.record(ctx, src, t)
	}
	r.record(ctx, assocRelation, r.assoc)
	return nil
}

func (r *run) record(ctx context.Context, relation string, t flatten.Table) {
	if n := len(t.Cyclic); n > 0 {
		r.diag.Cyclic[relation] += n
		r.svc.logWarn(ctx, "cyclic ownership excluded", "relation", relation, "nodes", n)
	}
	if n := len(t.DepthExceeded); n > 0 {
		r.diag.DepthExceeded[relation] += n
		r.svc.logWarn(ctx, "ownership chain too deep", "relation", relation, "nodes", n)
	}
}

func (r *run) assemble(_ context.Context) error {
	pop := population.Build(population.Input{Issuers: r.issuers, Tables: r.tables, Assoc: r.assoc})
	pop = population.DeriveAssocModal(pop, r.policy.Havens)
	pop, linked := population.LinkAssociated(pop, r.policy.Havens)
	r.pop = pop
	r.diag.AssocLinked = linked
	return nil
}

func (r *run) harmonize(_ context.Context) error {
	pop, out, err := country.Harmonize(r.pop, r.policy.Preference, r.policy.Havens)
	if err != nil {
		return err
	}
	r.pop = pop
	r.decisions = out.Decisions
	r.diag.CountryConflicts = out.Conflicts
	r.table = country.BuildTable(pop, r.policy.Preference, r.policy.Havens)
	return nil
}

func (r *run) chain(_ context.Context) error {
	resolver := chain.NewResolver(r.policy.Preference, r.policy.Havens, r.policy.ChainMaxHops)
	pop, out := resolver.Resolve(r.pop)
	r.pop = pop
	r.diag.ChainWalks = out.Walks
	r.diag.ChainWalksExhausted = out.Exhausted
	r.diag.ChainCyclesBroken = out.CyclesBroken
	r.diag.ChainsRewritten = out.Rewritten
	return nil
}

func (r *run) decide(ctx context.Context) error {
	engine, err := decision.NewEngine(r.policy.Preference, r.policy.Havens, r.table)
	if err != nil {
		return err
	}
	results, err := engine.DecideAll(ctx, r.pop, r.svc.workers)
	if err != nil {
		return err
	}
	for _, res := range results {
		if res.Case.Rescued() {
			r.diag.Rescued++
		}
	}
	r.results = results
	return nil
}

func (r *run) finalize(_ context.Context) error {
	names := finalize.NewNameIndex(r.issuers, r.ds.Names, r.policy.NameSources)
	results, st := finalize.Apply(r.results, finalize.Input{
		Havens:        r.policy.Havens,
		Table:         r.table,
		Decisions:     r.decisions,
		Names:         names,
		Supranational: r.policy.Supranational,
	})
	r.results = results
	r.diag.ConsensusApplied = st.ConsensusApplied
	r.diag.BlankCountries = st.Blank
	r.diag.Supranational = st.Supranational
	return nil
}

func (r *run) overrides(ctx context.Context) error {
	results, st, err := overrides.ApplyLinks(r.results, r.policy)
	if err != nil {
		return err
	}
	if st.ChildrenMissing > 0 {
		r.svc.logWarn(ctx, "manual link children not in population", "missing", st.ChildrenMissing)
	}
	r.results = results
	r.diag.OverridesApplied = st.Applied
	r.diag.OverrideChildrenMissing = st.ChildrenMissing
	return nil
}

func (r *run) stationarity(ctx context.Context) error {
	results, st, err := stationarity.New(r.policy.FlattenDepth).Enforce(r.results)
	if err != nil {
		return err
	}
	if st.Dropped() > 0 {
		r.svc.logWarn(ctx, "issuers dropped from a cyclic final relation", "dropped", st.Dropped())
	}
	r.results = results
	r.diag.DerivedPatches = st.Patched
	r.diag.DroppedCyclic = st.Dropped()
	return nil
}

// output filters invalid ids, sorts by entity id and tallies case codes.
func (r *run) output(_ context.Context) error {
	out := make([]models.Result, 0, len(r.results))
	for _, res := range r.results {
		if r.policy.InvalidID(res.EntityID) {
			r.diag.InvalidIDsFiltered++
			continue
		}
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	for _, res := range out {
		r.diag.CaseCounts[res.Case]++
	}
	r.results = out
	return nil
}
