package prom

import (
	"errors"
	"fmt"
	"sync"

	xhttp "github.com/Pguillen87/arcanum-ai-sub001/pkg/http"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemJobs           = "jobs"
	SystemLedger         = "ledger"
	SystemWebhooks       = "webhooks"
	SystemExternal       = "external"
	SystemReconciliation = "reconciliation"
	SystemQueue          = "queue"
)

const (
	MetricJobTransitions      = "transitions_total"
	MetricJobRunDuration      = "run_duration_seconds"
	MetricLedgerOperations    = "operations_total"
	MetricWebhookEvents       = "events_total"
	MetricExternalCallSeconds = "call_duration_seconds"
	MetricReconciliationEvent = "events_total"
	MetricQueueDepth          = "depth"
)

const (
	TypeCounter      = "counter"
	TypeCounterVec   = "counterVec"
	TypeHistogram    = "histogram"
	TypeHistogramVec = "histogramVec"
	TypeGaugeVec     = "gaugeVec"
)

var lockCreateMetricLock = &sync.Mutex{}
var namespace = "none"

var MetricSystemEnabled = false

var MetricCollectionCounters = make(map[string]prometheus.Counter)
var MetricCollectionCounterVec = make(map[string]*prometheus.CounterVec)
var MetricCollectionGaugeVec = make(map[string]*prometheus.GaugeVec)
var MetricCollectionHistogram = make(map[string]prometheus.Histogram)
var MetricCollectionHistogramVec = make(map[string]*prometheus.HistogramVec)

var defaultLabels prometheus.Labels

// Create registers every metric the services report into the default
// registry. Calling it again is a no-op for metrics that already exist.
func Create(host string, env string, nameSpace string) error {
	defaultLabels = make(prometheus.Labels)
	defaultLabels["env"] = env
	defaultLabels["instance"] = host
	namespace = nameSpace
	MetricSystemEnabled = true

	var err error
	hasError := func(e error) {
		var are prometheus.AlreadyRegisteredError
		if errors.As(e, &are) {
			return
		}
		if err == nil && e != nil {
			err = e
		}
	}

	hasError(createCounterVec(SystemJobs, MetricJobTransitions, []string{"kind", "status"}))
	hasError(createHistogramVec(SystemJobs, MetricJobRunDuration, []string{"kind", "result"}))
	hasError(createCounterVec(SystemLedger, MetricLedgerOperations, []string{"op", "result"}))
	hasError(createCounterVec(SystemWebhooks, MetricWebhookEvents, []string{"provider", "status", "result"}))
	hasError(createHistogramVec(SystemExternal, MetricExternalCallSeconds, []string{"api", "result"}))
	hasError(createCounterVec(SystemReconciliation, MetricReconciliationEvent, []string{"reason"}))
	hasError(createGaugeVec(SystemQueue, MetricQueueDepth, []string{"stream"}))

	return err
}

func CreateMetric(metricType, metricSubsystem, metricName string, labelsValues ...string) error {
	switch metricType {
	case TypeCounter:
		return createCounter(metricSubsystem, metricName)
	case TypeCounterVec:
		return createCounterVec(metricSubsystem, metricName, labelsValues)
	case TypeHistogram:
		return createHistogram(metricSubsystem, metricName)
	case TypeHistogramVec:
		return createHistogramVec(metricSubsystem, metricName, labelsValues)
	case TypeGaugeVec:
		return createGaugeVec(metricSubsystem, metricName, labelsValues)
	}
	return fmt.Errorf("metric type %s is not defined", metricType)
}

// Handler exposes the default registry as a fasthttp handler.
func Handler() xhttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
}

// ListenAndServer runs a dedicated metrics server. It blocks.
func ListenAndServer(addr string, url string) error {
	s := xhttp.CreateServer(0, 0)
	s.GET(url, Handler())
	logger.Info("[metrics-server] listening...", "addr", addr, "url", url)
	return s.ListenAndServe(addr)
}

func createCounter(subsystem, name string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: defaultLabels,
	})
	if err := prometheus.Register(c); err != nil {
		return err
	}
	MetricCollectionCounters[subsystem+name] = c
	return nil
}

func createCounterVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: defaultLabels,
	}, labels)
	if err := prometheus.Register(c); err != nil {
		return err
	}
	MetricCollectionCounterVec[subsystem+name] = c
	return nil
}

func createHistogram(subsystem, name string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: defaultLabels,
		Buckets:     prometheus.DefBuckets,
	})
	if err := prometheus.Register(h); err != nil {
		return err
	}
	MetricCollectionHistogram[subsystem+name] = h
	return nil
}

func createHistogramVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: defaultLabels,
		Buckets:     prometheus.DefBuckets,
	}, labels)
	if err := prometheus.Register(h); err != nil {
		return err
	}
	MetricCollectionHistogramVec[subsystem+name] = h
	return nil
}

func createGaugeVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: defaultLabels,
	}, labels)
	if err := prometheus.Register(g); err != nil {
		return err
	}
	MetricCollectionGaugeVec[subsystem+name] = g
	return nil
}

func IncCounter(subsystem, name string) {
	AddCounter(subsystem, name, 1)
}

func AddCounter(subsystem, name string, number float64) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionCounters[subsystem+name]; ok {
		v.Add(number)
		return
	}
	logger.Warn("[metrics-server] counter not found", "subsystem", subsystem, "name", name)
}

func SetGaugeVec(subsystem, name string, num float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionGaugeVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Set(num)
		return
	}
	logger.Warn("[metrics-server] gauge not found", "subsystem", subsystem, "name", name)
}

func AddCounterVec(subsystem, name string, num float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionCounterVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func IncCounterVec(subsystem, name string, labelValues ...string) {
	AddCounterVec(subsystem, name, 1, labelValues...)
}

func AddHistogramVec(subsystem, name string, number float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionHistogramVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram vec not found", "subsystem", subsystem, "name", name)
}

// Domain helpers.

func JobTransition(kind, status string) {
	IncCounterVec(SystemJobs, MetricJobTransitions, kind, status)
}

func JobRunDuration(seconds float64, kind, result string) {
	AddHistogramVec(SystemJobs, MetricJobRunDuration, seconds, kind, result)
}

func LedgerOperation(op, result string) {
	IncCounterVec(SystemLedger, MetricLedgerOperations, op, result)
}

func WebhookEvent(provider, status, result string) {
	IncCounterVec(SystemWebhooks, MetricWebhookEvents, provider, status, result)
}

func ExternalCall(seconds float64, api, result string) {
	AddHistogramVec(SystemExternal, MetricExternalCallSeconds, seconds, api, result)
}

func ReconciliationEvent(reason string) {
	IncCounterVec(SystemReconciliation, MetricReconciliationEvent, reason)
}

func QueueDepth(stream string, depth int64) {
	SetGaugeVec(SystemQueue, MetricQueueDepth, float64(depth), stream)
}
