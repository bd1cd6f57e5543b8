// Package decision turns one issuer's harmonized signals into its final
// ultimate parent and country through an ordered rule table.
package decision

import (
	"context"
	"errors"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"upagg/internal/aggregation/country"
	"upagg/internal/aggregation/models"
	dErrors "upagg/pkg/domain-errors"
)

var errTableRequired = errors.New("country table is required")

// Engine evaluates the rule table. It holds no per-issuer state and is safe
// for concurrent use.
type Engine struct {
	rules    []Rule
	analyzer analyzer
}

// NewEngine builds an engine over the harmonized country table.
func NewEngine(pref models.Preference, havens models.HavenSet, table *country.Table) (*Engine, error) {
	if table == nil {
		return nil, dErrors.Wrap(errTableRequired, dErrors.CodeInternal, "build decision engine")
	}
	if !pref.Valid() {
		return nil, dErrors.New(dErrors.CodeConfig, "decision engine needs a valid preference order")
	}
	return &Engine{
		rules:    Rules(),
		analyzer: analyzer{pref: pref, havens: havens, table: table},
	}, nil
}

// Analyze computes the facts the rules see for iss.
func (e *Engine) Analyze(iss models.Issuer) (Facts, error) {
	f := e.analyzer.analyze(iss)
	if err := checkPreconditions(&f); err != nil {
		return Facts{}, err
	}
	return f, nil
}

// Decide runs the rule table for one issuer and rescues a blank country from
// the country table.
func (e *Engine) Decide(iss models.Issuer) (models.Resolution, error) {
	f, err := e.Analyze(iss)
	if err != nil {
		return models.Resolution{}, err
	}
	for _, r := range e.rules {
		if r.Partition != f.Partition || !r.When(&f) {
			continue
		}
		res := r.Then(&f)
		res.Case = r.Case
		return e.rescue(res), nil
	}
	return models.Resolution{}, dErrors.Newf(dErrors.CodeUnsupportedCardinality,
		"no decision rule matches issuer %s (%d sources present, partition %s)",
		iss.ID, len(f.Present), f.Partition)
}

func (e *Engine) rescue(res models.Resolution) models.Resolution {
	if res.Country != "" {
		return res
	}
	res.Case += models.RescueOffset
	fb := e.analyzer.table.Fallback(res.ParentID)
	switch {
	case !fb.Found:
		res.Note = "no country details for parent"
	case fb.Country == "":
		res.Note = "no non-blank country code present"
	default:
		res.Country = fb.Country
		res.CountryProvenance = fb.Label
		res.Note = "blank country replaced with " + fb.Label
	}
	return res
}

// DecideAll decides every issuer of pop, fanning out over workers. Results
// keep the population's id order.
func (e *Engine) DecideAll(ctx context.Context, pop *models.Population, workers int) ([]models.Result, error) {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	rows := pop.Issuers()
	out := make([]models.Result, len(rows))

	chunk := (len(rows) + workers - 1) / workers
	if chunk == 0 {
		return out, nil
	}
	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				iss := rows[i]
				res, err := e.Decide(iss)
				if err != nil {
					return err
				}
				out[i] = models.Result{
					EntityID:           iss.ID,
					Name:               iss.Name,
					Domicile:           iss.Domicile,
					Resolution:         res,
					UsedPrefForParent:  iss.UsedPrefForParent,
					UsedPrefForCountry: iss.UsedPrefForCountry,
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// RuleName returns the name of the rule that emits c, ignoring the rescue offset.
func RuleName(c models.CaseCode) string {
	base := c.Base()
	for _, r := range ruleTable {
		if r.Case == base {
			if c.Rescued() {
				return r.Name + "_rescued"
			}
			return r.Name
		}
	}
	return "unknown"
}

func checkPreconditions(f *Facts) error {
	if f.Partition != PartitionTwoPairs {
		return nil
	}
	if len(f.Groups) < 2 || f.Groups[0].Size() != 2 || f.Groups[1].Size() != 2 {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"issuer %s: two-pair partition needs exactly two agreeing pairs", f.ID)
	}
	if len(f.Outliers) > 1 {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"issuer %s: two-pair partition allows one outlier, found %s", f.ID, outlierSources(f.Outliers))
	}
	return nil
}

func outlierSources(cands []Candidate) string {
	labels := make([]string, len(cands))
	for i, c := range cands {
		labels[i] = c.Source.String()
	}
	return strings.Join(labels, ", ")
}
