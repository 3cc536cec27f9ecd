// Package monitoring records timings and row counts of viewer operations.
package monitoring

import (
	"sync"
	"time"
)

// DefaultHistory bounds the number of retained operation records.
const DefaultHistory = 1024

// OperationMetrics describes one completed operation.
type OperationMetrics struct {
	Operation     string        `json:"operation"`
	Dataset       string        `json:"dataset,omitempty"`
	Duration      time.Duration `json:"duration"`
	RowsProcessed int64         `json:"rows_processed"`
	Cached        bool          `json:"cached"`
	Failed        bool          `json:"failed"`
	Finished      time.Time     `json:"finished"`
}

// Recording is filled in by the measured function.
type Recording struct {
	Dataset string
	Rows    int64
	Cached  bool
}

// MetricsCollector keeps the most recent operation records and running
// totals. A disabled collector only runs the measured function.
type MetricsCollector struct {
	mu      sync.RWMutex
	enabled bool
	history int
	metrics []OperationMetrics
	next    int
	totals  map[string]*OperationTotals
}

// OperationTotals aggregates all records of one operation name, including
// records that have rotated out of the history.
type OperationTotals struct {
	Count    int64         `json:"count"`
	Failures int64         `json:"failures"`
	CacheHit int64         `json:"cache_hits"`
	Rows     int64         `json:"rows"`
	Duration time.Duration `json:"duration"`
}

// NewMetricsCollector creates a collector retaining DefaultHistory records.
func NewMetricsCollector(enabled bool) *MetricsCollector {
	return NewMetricsCollectorWithHistory(enabled, DefaultHistory)
}

// NewMetricsCollectorWithHistory creates a collector retaining up to history
// records. Non-positive values use DefaultHistory.
func NewMetricsCollectorWithHistory(enabled bool, history int) *MetricsCollector {
	if history <= 0 {
		history = DefaultHistory
	}
	return &MetricsCollector{
		enabled: enabled,
		history: history,
		metrics: make([]OperationMetrics, 0, min(history, 64)),
		totals:  make(map[string]*OperationTotals),
	}
}

// IsEnabled returns whether metrics collection is enabled.
func (mc *MetricsCollector) IsEnabled() bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.enabled
}

// SetEnabled enables or disables metrics collection.
func (mc *MetricsCollector) SetEnabled(enabled bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.enabled = enabled
}

// RecordOperation runs fn and records its duration and the rows it
// reported. The error of fn is returned unchanged.
func (mc *MetricsCollector) RecordOperation(operation string, fn func(rec *Recording) error) error {
	var rec Recording
	if mc == nil || !mc.IsEnabled() {
		return fn(&rec)
	}

	start := time.Now()
	err := fn(&rec)
	finished := time.Now()

	mc.add(OperationMetrics{
		Operation:     operation,
		Dataset:       rec.Dataset,
		Duration:      finished.Sub(start),
		RowsProcessed: rec.Rows,
		Cached:        rec.Cached,
		Failed:        err != nil,
		Finished:      finished,
	})
	return err
}

func (mc *MetricsCollector) add(m OperationMetrics) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if len(mc.metrics) < mc.history {
		mc.metrics = append(mc.metrics, m)
	} else {
		mc.metrics[mc.next] = m
	}
	mc.next = (mc.next + 1) % mc.history

	t, ok := mc.totals[m.Operation]
	if !ok {
		t = &OperationTotals{}
		mc.totals[m.Operation] = t
	}
	t.Count++
	t.Rows += m.RowsProcessed
	t.Duration += m.Duration
	if m.Failed {
		t.Failures++
	}
	if m.Cached {
		t.CacheHit++
	}
}

// GetMetrics returns the retained records, oldest first.
func (mc *MetricsCollector) GetMetrics() []OperationMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make([]OperationMetrics, 0, len(mc.metrics))
	if len(mc.metrics) < mc.history {
		return append(result, mc.metrics...)
	}
	result = append(result, mc.metrics[mc.next:]...)
	return append(result, mc.metrics[:mc.next]...)
}

// Clear removes all records and totals.
func (mc *MetricsCollector) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics = mc.metrics[:0]
	mc.next = 0
	mc.totals = make(map[string]*OperationTotals)
}

// MetricsSummary provides aggregate statistics for collected metrics.
type MetricsSummary struct {
	TotalOperations int64                      `json:"total_operations"`
	TotalFailures   int64                      `json:"total_failures"`
	TotalRows       int64                      `json:"total_rows"`
	TotalDuration   time.Duration              `json:"total_duration"`
	AverageDuration time.Duration              `json:"average_duration"`
	Operations      map[string]OperationTotals `json:"operations"`
}

// GetSummary returns totals by operation.
func (mc *MetricsCollector) GetSummary() MetricsSummary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	s := MetricsSummary{Operations: make(map[string]OperationTotals, len(mc.totals))}
	for name, t := range mc.totals {
		s.Operations[name] = *t
		s.TotalOperations += t.Count
		s.TotalFailures += t.Failures
		s.TotalRows += t.Rows
		s.TotalDuration += t.Duration
	}
	if s.TotalOperations > 0 {
		s.AverageDuration = s.TotalDuration / time.Duration(s.TotalOperations)
	}
	return s
}
