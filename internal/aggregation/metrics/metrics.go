package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"upagg/internal/aggregation/models"
)

// Metrics provides observability for the aggregation pipeline.
type Metrics struct {
	// Stage latencies by stage name
	StageDuration *prometheus.HistogramVec

	// Runs by outcome: "ok", "failed"
	Runs *prometheus.CounterVec

	IssuersResolved prometheus.Counter

	// Final rows by decision case code
	CaseCodes *prometheus.CounterVec

	// Nodes excluded from flattening by relation
	CyclicNodes *prometheus.CounterVec

	ChainWalks prometheus.Counter

	// Lookup API results by outcome: "hit", "miss", "error"
	Lookups *prometheus.CounterVec
}

// NewWithRegistry registers the aggregation metrics with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "upagg_stage_duration_seconds",
			Help:    "Duration of aggregation pipeline stages",
			Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"stage"}),

		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upagg_runs_total",
			Help: "Total aggregation runs by outcome",
		}, []string{"outcome"}),

		IssuersResolved: f.NewCounter(prometheus.CounterOpts{
			Name: "upagg_issuers_resolved_total",
			Help: "Total issuers written to the final table",
		}),

		CaseCodes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upagg_case_codes_total",
			Help: "Final rows by decision case code",
		}, []string{"case"}),

		CyclicNodes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upagg_cyclic_nodes_total",
			Help: "Nodes excluded from flattening because of cycles or depth",
		}, []string{"relation"}),

		ChainWalks: f.NewCounter(prometheus.CounterOpts{
			Name: "upagg_chain_walks_total",
			Help: "Cross-source chain walks performed",
		}),

		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upagg_lookups_total",
			Help: "Result lookups served by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementRun(outcome string) {
	if m != nil {
		m.Runs.WithLabelValues(outcome).Inc()
	}
}

// RecordReport adds the counts of a finished run.
func (m *Metrics) RecordReport(r *models.Report) {
	if m == nil || r == nil {
		return
	}
	m.IssuersResolved.Add(float64(len(r.Results)))
	for c, n := range r.Diagnostics.CaseCounts {
		m.CaseCodes.WithLabelValues(strconv.Itoa(int(c))).Add(float64(n))
	}
	for rel, n := range r.Diagnostics.Cyclic {
		m.CyclicNodes.WithLabelValues(rel).Add(float64(n))
	}
	for rel, n := range r.Diagnostics.DepthExceeded {
		m.CyclicNodes.WithLabelValues(rel).Add(float64(n))
	}
	m.ChainWalks.Add(float64(r.Diagnostics.ChainWalks))
}

func (m *Metrics) IncrementLookup(outcome string) {
	if m != nil {
		m.Lookups.WithLabelValues(outcome).Inc()
	}
}
