package prom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func TestCreateAndDomainHelpers(t *testing.T) {
	require.NoError(t, Create("test-host", "test", "arcanum_test"))
	require.NoError(t, Create("test-host", "test", "arcanum_test"), "second create is a no-op")

	JobTransition("transformation", "queued")
	JobTransition("transformation", "queued")
	ReconciliationEvent("stale_job")
	QueueDepth("jobs", 7)

	jobs := MetricCollectionCounterVec[SystemJobs+MetricJobTransitions]
	require.NotNil(t, jobs)
	assert.Equal(t, float64(2), testutil.ToFloat64(jobs.WithLabelValues("transformation", "queued")))

	depth := MetricCollectionGaugeVec[SystemQueue+MetricQueueDepth]
	require.NotNil(t, depth)
	assert.Equal(t, float64(7), testutil.ToFloat64(depth.WithLabelValues("jobs")))

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/metrics")
	Handler()(ctx)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "arcanum_test_jobs_transitions_total")
}

func TestCreateMetric_UnknownType(t *testing.T) {
	assert.Error(t, CreateMetric("summary", SystemJobs, "whatever"))
}
