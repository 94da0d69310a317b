// Package metrics collects and exposes Prometheus metrics for the dispatch
// cycle, the webhook queue runner, and the maintenance sweep.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns every Outflow metric. It registers against its own
// registry, so multiple collectors can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	cyclesTotal      prometheus.Counter
	cyclesSuppressed prometheus.Counter
	jobsEnqueued     prometheus.Counter
	jobsInline       prometheus.Counter
	jobsFailed       prometheus.Counter
	cycleDuration    prometheus.Histogram

	eventsProcessed prometheus.Counter
	eventsSucceeded prometheus.Counter
	eventsFailed    prometheus.Counter
	eventsRetried   prometheus.Counter
	eventsSkipped   prometheus.Counter
	locksReleased   prometheus.Counter
	queueRemaining  prometheus.Gauge
	passDuration    prometheus.Histogram

	sweepsTotal prometheus.Counter
	rowsPruned  prometheus.Counter
}

// NewCollector creates and registers a collector.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_dispatch_cycles_total",
			Help: "Total number of dispatch cycles started",
		}),
		cyclesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_dispatch_cycles_suppressed_total",
			Help: "Total number of dispatch cycles suppressed as duplicates",
		}),
		jobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_dispatch_jobs_enqueued_total",
			Help: "Total number of jobs handed to the background executor",
		}),
		jobsInline: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_dispatch_jobs_inline_total",
			Help: "Total number of jobs executed inline after enqueue failure",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_dispatch_jobs_failed_total",
			Help: "Total number of jobs that failed both enqueue and inline execution",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "outflow_dispatch_cycle_duration_seconds",
			Help:    "Dispatch cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_webhook_events_processed_total",
			Help: "Total number of webhook events claimed and processed",
		}),
		eventsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_webhook_events_succeeded_total",
			Help: "Total number of webhook events processed successfully",
		}),
		eventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_webhook_events_failed_total",
			Help: "Total number of webhook events failed permanently",
		}),
		eventsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_webhook_events_retried_total",
			Help: "Total number of webhook events scheduled for retry",
		}),
		eventsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_webhook_events_skipped_total",
			Help: "Total number of webhook events skipped for lack of a handler",
		}),
		locksReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_webhook_stale_locks_released_total",
			Help: "Total number of stale webhook event locks released",
		}),
		queueRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outflow_webhook_events_remaining",
			Help: "Due webhook events remaining after the most recent pass",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "outflow_webhook_pass_duration_seconds",
			Help:    "Webhook queue pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		sweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_maintenance_sweeps_total",
			Help: "Total number of maintenance sweeps executed",
		}),
		rowsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outflow_maintenance_rows_pruned_total",
			Help: "Total number of rows removed by retention pruning",
		}),
	}

	c.registry.MustRegister(
		c.cyclesTotal, c.cyclesSuppressed, c.jobsEnqueued, c.jobsInline,
		c.jobsFailed, c.cycleDuration,
		c.eventsProcessed, c.eventsSucceeded, c.eventsFailed, c.eventsRetried,
		c.eventsSkipped, c.locksReleased, c.queueRemaining, c.passDuration,
		c.sweepsTotal, c.rowsPruned,
	)
	return c
}

// RecordCycle records a completed dispatch cycle.
func (c *Collector) RecordCycle(suppressed bool, enqueued, inline, failed int, seconds float64) {
	c.cyclesTotal.Inc()
	if suppressed {
		c.cyclesSuppressed.Inc()
		return
	}
	c.jobsEnqueued.Add(float64(enqueued))
	c.jobsInline.Add(float64(inline))
	c.jobsFailed.Add(float64(failed))
	c.cycleDuration.Observe(seconds)
}

// RecordPass records a completed webhook queue pass.
func (c *Collector) RecordPass(processed, succeeded, failed, retried, skipped, released, remaining int, seconds float64) {
	c.eventsProcessed.Add(float64(processed))
	c.eventsSucceeded.Add(float64(succeeded))
	c.eventsFailed.Add(float64(failed))
	c.eventsRetried.Add(float64(retried))
	c.eventsSkipped.Add(float64(skipped))
	c.locksReleased.Add(float64(released))
	c.queueRemaining.Set(float64(remaining))
	c.passDuration.Observe(seconds)
}

// RecordSweep records a completed maintenance sweep.
func (c *Collector) RecordSweep(rowsPruned int) {
	c.sweepsTotal.Inc()
	c.rowsPruned.Add(float64(rowsPruned))
}

// Handler returns the HTTP handler exposing this collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
