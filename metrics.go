package brainy

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational
// metrics. Implement it to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordAdd is called after each node write.
	RecordAdd(duration time.Duration, err error)

	// RecordSearch is called after each search. k is the number of
	// neighbors requested, degraded the number of partitions that
	// missed their deadline.
	RecordSearch(k int, degraded int, duration time.Duration, err error)

	// RecordDelete is called after each delete.
	RecordDelete(duration time.Duration, err error)

	// RecordRelate is called after each edge write or removal.
	RecordRelate(duration time.Duration, err error)

	// RecordSync is called after each change-log sync pass. applied is
	// the number of remote entries replayed.
	RecordSync(applied int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAdd(time.Duration, error)              {}
func (NoopMetricsCollector) RecordSearch(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)           {}
func (NoopMetricsCollector) RecordRelate(time.Duration, error)           {}
func (NoopMetricsCollector) RecordSync(int, time.Duration, error)        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external
// dependencies.
type BasicMetricsCollector struct {
	AddCount           atomic.Int64
	AddErrors          atomic.Int64
	AddTotalNanos      atomic.Int64
	SearchCount        atomic.Int64
	SearchErrors       atomic.Int64
	SearchDegraded     atomic.Int64
	SearchTotalNanos   atomic.Int64
	DeleteCount        atomic.Int64
	DeleteErrors       atomic.Int64
	RelateCount        atomic.Int64
	RelateErrors       atomic.Int64
	SyncCount          atomic.Int64
	SyncErrors         atomic.Int64
	SyncAppliedEntries atomic.Int64
}

// RecordAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdd(duration time.Duration, err error) {
	b.AddCount.Add(1)
	b.AddTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AddErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(k, degraded int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchDegraded.Add(int64(degraded))
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordRelate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRelate(duration time.Duration, err error) {
	b.RelateCount.Add(1)
	if err != nil {
		b.RelateErrors.Add(1)
	}
}

// RecordSync implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSync(applied int, duration time.Duration, err error) {
	b.SyncCount.Add(1)
	b.SyncAppliedEntries.Add(int64(applied))
	if err != nil {
		b.SyncErrors.Add(1)
	}
}

// BasicMetricsStats is a point-in-time snapshot of a
// BasicMetricsCollector.
type BasicMetricsStats struct {
	AddCount           int64
	AddErrors          int64
	AddAvgNanos        int64
	SearchCount        int64
	SearchErrors       int64
	SearchDegraded     int64
	SearchAvgNanos     int64
	DeleteCount        int64
	DeleteErrors       int64
	RelateCount        int64
	RelateErrors       int64
	SyncCount          int64
	SyncErrors         int64
	SyncAppliedEntries int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	s := BasicMetricsStats{
		AddCount:           b.AddCount.Load(),
		AddErrors:          b.AddErrors.Load(),
		SearchCount:        b.SearchCount.Load(),
		SearchErrors:       b.SearchErrors.Load(),
		SearchDegraded:     b.SearchDegraded.Load(),
		DeleteCount:        b.DeleteCount.Load(),
		DeleteErrors:       b.DeleteErrors.Load(),
		RelateCount:        b.RelateCount.Load(),
		RelateErrors:       b.RelateErrors.Load(),
		SyncCount:          b.SyncCount.Load(),
		SyncErrors:         b.SyncErrors.Load(),
		SyncAppliedEntries: b.SyncAppliedEntries.Load(),
	}
	if s.AddCount > 0 {
		s.AddAvgNanos = b.AddTotalNanos.Load() / s.AddCount
	}
	if s.SearchCount > 0 {
		s.SearchAvgNanos = b.SearchTotalNanos.Load() / s.SearchCount
	}
	return s
}
