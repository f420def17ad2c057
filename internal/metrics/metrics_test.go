package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/snow-wind-001/CodeRecoder/internal/metrics"
)

func TestCollector_ObserveRecordsSuccessAndFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.Observe("filestore", "CreateSnapshot", time.Now(), "")
	c.Observe("filestore", "CreateSnapshot", time.Now(), "Corrupt")

	families, err := reg.Gather()
	require.NoError(t, err)

	var opsTotal, failuresTotal float64

	for _, mf := range families {
		switch mf.GetName() {
		case "coderecoder_operations_total":
			opsTotal += sumCounters(mf)
		case "coderecoder_operation_failures_total":
			failuresTotal += sumCounters(mf)
		}
	}

	require.Equal(t, float64(2), opsTotal)
	require.Equal(t, float64(1), failuresTotal)
}

func TestCollector_NilCollectorIsNoop(t *testing.T) {
	var c *metrics.Collector

	require.NotPanics(t, func() {
		c.Observe("filestore", "CreateSnapshot", time.Now(), "")
	})
}

func TestNewCollector_SharedRegistryDoesNotPanicOnSecondCall(t *testing.T) {
	reg := prometheus.NewRegistry()

	require.NotPanics(t, func() {
		metrics.NewCollector(reg)
		metrics.NewCollector(reg)
	})
}

func sumCounters(mf *dto.MetricFamily) float64 {
	var total float64

	for _, m := range mf.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}

	return total
}
