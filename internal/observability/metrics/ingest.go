// Package metrics provides custom Prometheus metrics for the mirroring
// engine's components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics contains all Prometheus metrics related to resolution and
// ingestion of origin resources.
type IngestMetrics struct {
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	Downloads        *prometheus.CounterVec
	DownloadErrors   *prometheus.CounterVec
	DownloadDuration prometheus.Histogram
	Tombstones       *prometheus.CounterVec
	DegradedServes   *prometheus.CounterVec
}

// NewIngestMetrics creates a new instance of IngestMetrics registered with
// the given registry.
func NewIngestMetrics(registry *prometheus.Registry) (*IngestMetrics, error) {
	m := &IngestMetrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_cache_hits_total",
			Help: "Total number of resolves served from fresh metadata.",
		}, []string{"provider"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_cache_misses_total",
			Help: "Total number of resolves that required an origin fetch.",
		}, []string{"provider"}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_downloads_total",
			Help: "Total number of origin byte downloads.",
		}, []string{"provider"}),
		DownloadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_download_errors_total",
			Help: "Total number of failed origin byte downloads.",
		}, []string{"provider"}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_download_duration_seconds",
			Help:    "Duration of origin byte downloads in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		Tombstones: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_tombstones_total",
			Help: "Total number of records tombstoned after confirmed origin absence.",
		}, []string{"provider"}),
		DegradedServes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_degraded_serves_total",
			Help: "Total number of stale records served because the origin was unavailable.",
		}, []string{"provider"}),
	}

	collectors := []prometheus.Collector{
		m.CacheHits, m.CacheMisses, m.Downloads, m.DownloadErrors,
		m.DownloadDuration, m.Tombstones, m.DegradedServes,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register ingest metrics: %w", err)
		}
	}
	return m, nil
}

// IncrementCacheHits increases the fresh-serve counter for a provider.
func (m *IngestMetrics) IncrementCacheHits(provider string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(provider).Inc()
}

// IncrementCacheMisses increases the origin-fetch counter for a provider.
func (m *IngestMetrics) IncrementCacheMisses(provider string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(provider).Inc()
}

// IncrementDownloads increases the download counter for a provider.
func (m *IngestMetrics) IncrementDownloads(provider string) {
	if m == nil {
		return
	}
	m.Downloads.WithLabelValues(provider).Inc()
}

// IncrementDownloadErrors increases the download error counter for a provider.
func (m *IngestMetrics) IncrementDownloadErrors(provider string) {
	if m == nil {
		return
	}
	m.DownloadErrors.WithLabelValues(provider).Inc()
}

// ObserveDownloadDuration records the duration of one byte download.
func (m *IngestMetrics) ObserveDownloadDuration(seconds float64) {
	if m == nil {
		return
	}
	m.DownloadDuration.Observe(seconds)
}

// IncrementTombstones increases the tombstone counter for a provider.
func (m *IngestMetrics) IncrementTombstones(provider string) {
	if m == nil {
		return
	}
	m.Tombstones.WithLabelValues(provider).Inc()
}

// IncrementDegradedServes increases the degraded-serve counter for a provider.
func (m *IngestMetrics) IncrementDegradedServes(provider string) {
	if m == nil {
		return
	}
	m.DegradedServes.WithLabelValues(provider).Inc()
}
