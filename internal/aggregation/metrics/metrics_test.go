package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"upagg/internal/aggregation/models"
)

func TestRecordReport(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	diag := models.NewDiagnostics()
	diag.CaseCounts[2] = 3
	diag.CaseCounts[107] = 1
	diag.Cyclic["bvd"] = 2
	diag.ChainWalks = 5
	m.RecordReport(&models.Report{Results: make([]models.Result, 4), Diagnostics: diag})

	assert.Equal(t, 4.0, testutil.ToFloat64(m.IssuersResolved))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CaseCodes.WithLabelValues("2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CaseCodes.WithLabelValues("107")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CyclicNodes.WithLabelValues("bvd")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ChainWalks))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStage("flatten", time.Second)
		m.IncrementRun("ok")
		m.RecordReport(&models.Report{})
		m.IncrementLookup("hit")
	})
}
