// Package metrics provides internal Prometheus instrumentation for the
// memory pipeline, consolidation router, and caches. This package is
// internal and should not be imported outside cogmem.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector owns the process-wide Prometheus vectors for cogmem.
type Collector struct {
	pipelineStagesTotal   *prometheus.CounterVec
	pipelineStageDuration *prometheus.HistogramVec

	consolidationsTotal    *prometheus.CounterVec
	consolidationDuration  *prometheus.HistogramVec
	classifierFeedback     *prometheus.CounterVec
	classifierRetrainTotal prometheus.Counter

	saliencyScored   *prometheus.CounterVec
	surpriseBoundary *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	wmEvictionsTotal *prometheus.CounterVec
	wmItemsGauge     *prometheus.GaugeVec

	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
	mu     sync.RWMutex
}

// NewCollector registers every metric under namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.pipelineStagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_stages_total",
			Help:      "Total number of pipeline stage executions by stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)

	c.pipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	c.consolidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidations_total",
			Help:      "Total number of working-memory items consolidated by target layer and decision source.",
		},
		[]string{"target_layer", "source"},
	)

	c.consolidationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "consolidation_duration_seconds",
			Help:      "Consolidation transaction duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"target_layer"},
	)

	c.classifierFeedback = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidation_classifier_feedback_total",
			Help:      "Feedback entries recorded for the consolidation classifier.",
		},
		[]string{"was_correct"},
	)

	c.classifierRetrainTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidation_classifier_retrain_total",
			Help:      "Total number of consolidation classifier retrain cycles.",
		},
	)

	c.saliencyScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saliency_scored_total",
			Help:      "Total number of saliency scores computed by band.",
		},
		[]string{"band"},
	)

	c.surpriseBoundary = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "surprise_boundaries_total",
			Help:      "Total number of surprise boundaries emitted.",
		},
		[]string{"project_id"},
	)

	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits by cache type.",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses by cache type.",
		},
		[]string{"cache_type"},
	)

	c.wmEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "working_memory_evictions_total",
			Help:      "Total number of working-memory evictions by component and reason.",
		},
		[]string{"component", "reason"},
	)

	c.wmItemsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "working_memory_items",
			Help:      "Current number of working-memory items by component.",
		},
		[]string{"component"},
	)

	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections.",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections.",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordPipelineStage records a single stage execution outcome and latency.
func (c *Collector) RecordPipelineStage(stage, outcome string, d time.Duration) {
	c.pipelineStagesTotal.WithLabelValues(stage, outcome).Inc()
	c.pipelineStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordConsolidation records a consolidation decision and its transaction
// latency. source labels where the decision was recorded from; the
// integrated pipeline passes "pipeline".
func (c *Collector) RecordConsolidation(targetLayer, source string, d time.Duration) {
	c.consolidationsTotal.WithLabelValues(targetLayer, source).Inc()
	c.consolidationDuration.WithLabelValues(targetLayer).Observe(d.Seconds())
}

// RecordClassifierFeedback records a provide_feedback call.
func (c *Collector) RecordClassifierFeedback(wasCorrect bool) {
	label := "false"
	if wasCorrect {
		label = "true"
	}
	c.classifierFeedback.WithLabelValues(label).Inc()
}

// RecordClassifierRetrain increments the retrain counter.
func (c *Collector) RecordClassifierRetrain() {
	c.classifierRetrainTotal.Inc()
}

// RecordSaliency records the focus_type band a saliency score fell into.
func (c *Collector) RecordSaliency(band string) {
	c.saliencyScored.WithLabelValues(band).Inc()
}

// RecordSurpriseBoundary records an emitted surprise boundary for a project.
func (c *Collector) RecordSurpriseBoundary(projectID string) {
	c.surpriseBoundary.WithLabelValues(projectID).Inc()
}

// RecordCacheHit records a cache hit for cacheType.
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss for cacheType.
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordWMEviction records a working-memory eviction.
func (c *Collector) RecordWMEviction(component, reason string) {
	c.wmEvictionsTotal.WithLabelValues(component, reason).Inc()
}

// SetWMItems sets the current item count gauge for component.
func (c *Collector) SetWMItems(component string, count int) {
	c.wmItemsGauge.WithLabelValues(component).Set(float64(count))
}

// RecordDBConnections records pool gauges for database.
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery records a database query duration.
func (c *Collector) RecordDBQuery(database, operation string, d time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(d.Seconds())
}
