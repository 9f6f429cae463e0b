// internal/utils/metrics.go
package utils

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects application metrics
type MetricsCollector struct {
	counters   map[string]*Counter
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Counter metric - using atomic operations for thread-safe value updates
type Counter struct {
	name  string
	value int64
}

// Histogram metric (simple implementation tracking count, sum, min, max)
type Histogram struct {
	name  string
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

// NewMetricsCollector creates an isolated collector, mainly for tests.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*Counter),
		histograms: make(map[string]*Histogram),
	}
}

// IncrementCounter increments a counter metric
func (m *MetricsCollector) IncrementCounter(name string) {
	m.AddCounter(name, 1)
}

// AddCounter adds a value to a counter metric using atomic operations
func (m *MetricsCollector) AddCounter(name string, value int64) {
	if m == nil {
		return
	}
	// Fast path for existing counters
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		counter, exists = m.counters[name]
		if !exists {
			counter = &Counter{name: name}
			m.counters[name] = counter
		}
		m.mu.Unlock()
	}

	atomic.AddInt64(&counter.value, value)
}

// GetCounterValue gets the current value of a counter using atomic load
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		return 0
	}
	return atomic.LoadInt64(&counter.value)
}

// RecordHistogram records a value in a histogram
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	if m == nil {
		return
	}
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		histogram, exists = m.histograms[name]
		if !exists {
			histogram = &Histogram{name: name, min: value, max: value}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.mu.Lock()
	defer histogram.mu.Unlock()

	histogram.count++
	histogram.sum += value
	if value < histogram.min {
		histogram.min = value
	}
	if value > histogram.max {
		histogram.max = value
	}
}

// GetMetrics returns a snapshot of all metrics
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, counter := range m.counters {
		counters[name] = atomic.LoadInt64(&counter.value)
	}

	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, histogram := range m.histograms {
		histogram.mu.Lock()
		histograms[name] = map[string]int64{
			"count": histogram.count,
			"sum":   histogram.sum,
			"min":   histogram.min,
			"max":   histogram.max,
		}
		histogram.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"histograms": histograms,
	}
}

// Metric names shared by the client services.
const (
	MetricAssetFetches     = "asset_fetches_total"
	MetricAssetFailures    = "asset_fetch_failures_total"
	MetricAssetCacheHits   = "asset_cache_hits_total"
	MetricSaveAttempts     = "gamestate_saves_total"
	MetricSaveFailures     = "gamestate_save_failures_total"
	MetricSaveSkipped      = "gamestate_saves_skipped_total"
	MetricSaveQueued       = "gamestate_saves_queued_total"
	MetricSaveDurationMs   = "gamestate_save_duration_ms"
	MetricAPIRequests      = "api_requests_total"
	MetricAPIRequestTimeMs = "api_request_duration_ms"
)

// RecordAssetFetch counts one network fetch of a theme asset.
func (m *MetricsCollector) RecordAssetFetch(kind string, ok bool) {
	m.IncrementCounter(MetricAssetFetches)
	m.IncrementCounter(MetricAssetFetches + "_" + kind)
	if !ok {
		m.IncrementCounter(MetricAssetFailures)
	}
}

// RecordSave records the outcome of one save round trip.
func (m *MetricsCollector) RecordSave(ok bool, duration time.Duration) {
	m.IncrementCounter(MetricSaveAttempts)
	if !ok {
		m.IncrementCounter(MetricSaveFailures)
	}
	m.RecordHistogram(MetricSaveDurationMs, duration.Milliseconds())
}

// RecordAPIRequest records one backend request.
func (m *MetricsCollector) RecordAPIRequest(method string, status int, duration time.Duration) {
	m.IncrementCounter(MetricAPIRequests)
	m.IncrementCounter(MetricAPIRequests + "_" + method)
	m.RecordHistogram(MetricAPIRequestTimeMs, duration.Milliseconds())
}
