// Package metrics counts ingestion activity on a private Prometheus registry
// and optionally pushes it to a Pushgateway at the end of a run.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "vidstat"

// Metrics holds the ingestion counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	reg *prometheus.Registry

	PagesFetched      *prometheus.CounterVec
	ItemsRetained     *prometheus.CounterVec
	ItemsSkipped      *prometheus.CounterVec
	BlobsWritten      *prometheus.CounterVec
	EntityFailures    *prometheus.CounterVec
	WatermarkAdvances *prometheus.CounterVec
	LastRunSuccess    prometheus.Gauge
}

// New registers all counters on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		PagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pages_fetched_total",
			Help: "API pages fetched, by entity.",
		}, []string{"entity"}),
		ItemsRetained: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "items_retained_total",
			Help: "Items newer than the watermark and persisted, by entity.",
		}, []string{"entity"}),
		ItemsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "items_skipped_total",
			Help: "Items at or below the watermark, by entity.",
		}, []string{"entity"}),
		BlobsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "blobs_written_total",
			Help: "Raw blobs written to the sink, by entity.",
		}, []string{"entity"}),
		EntityFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "entity_failures_total",
			Help: "Entity fetches that ended in an error, by entity.",
		}, []string{"entity"}),
		WatermarkAdvances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "watermark_advances_total",
			Help: "Watermark writes, by entity.",
		}, []string{"entity"}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_success",
			Help: "1 if the last run completed without entity failures.",
		}),
	}
	reg.MustRegister(
		m.PagesFetched, m.ItemsRetained, m.ItemsSkipped, m.BlobsWritten,
		m.EntityFailures, m.WatermarkAdvances, m.LastRunSuccess,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for promhttp or tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Pages(entity string, n int) {
	if m != nil {
		m.PagesFetched.WithLabelValues(entity).Add(float64(n))
	}
}

func (m *Metrics) Retained(entity string, n int) {
	if m != nil {
		m.ItemsRetained.WithLabelValues(entity).Add(float64(n))
	}
}

func (m *Metrics) Skipped(entity string, n int) {
	if m != nil {
		m.ItemsSkipped.WithLabelValues(entity).Add(float64(n))
	}
}

func (m *Metrics) Blob(entity string) {
	if m != nil {
		m.BlobsWritten.WithLabelValues(entity).Inc()
	}
}

func (m *Metrics) Failure(entity string) {
	if m != nil {
		m.EntityFailures.WithLabelValues(entity).Inc()
	}
}

func (m *Metrics) Advance(entity string) {
	if m != nil {
		m.WatermarkAdvances.WithLabelValues(entity).Inc()
	}
}

func (m *Metrics) RunFinished(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.LastRunSuccess.Set(1)
	} else {
		m.LastRunSuccess.Set(0)
	}
}

// Push sends the registry to the Pushgateway at url under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("metrics push: %w", err)
	}
	return nil
}
