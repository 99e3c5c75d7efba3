// Package metrics wires the cache's refresh behavior to Prometheus, the
// way the teacher's internal/metrics package wires command execution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clustercache"

var (
	// RefreshDuration measures how long a full Aggregator.Refresh call
	// takes, end to end.
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Wall-clock duration of a full cache refresh.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// CategoryReloadsTotal counts how often each dirty-bit category was
	// actually reloaded from the metadata store.
	CategoryReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "category_reloads_total",
			Help:      "Number of times a change category was reloaded from the metadata store.",
		},
		[]string{"category"},
	)

	// EntryReloadsTotal counts individual entry-level fetch decisions made
	// by the incremental-reload stat-compare policy (current-state and
	// instance-messages sub-caches).
	EntryReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entry_reloads_total",
			Help:      "Entry-level fetch decisions made during incremental reload.",
		},
		[]string{"subcache", "decision"}, // decision: new/reloaded/skipped/missing
	)

	// DirtyCategories reports how many change categories are currently
	// marked dirty, sampled at the start of each refresh.
	DirtyCategories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dirty_categories",
			Help:      "Number of change categories dirty at the start of the most recent refresh.",
		},
	)

	// OfflineInstances reports the size of instanceOfflineTimeMap after the
	// most recent refresh.
	OfflineInstances = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offline_instances",
			Help:      "Number of instances currently recorded as offline.",
		},
	)

	// WriteBackFailuresTotal counts failed participant-history write-backs
	// to the metadata store. Job/workflow context write-back failures are
	// returned to the caller and are not counted here.
	WriteBackFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_back_failures_total",
			Help:      "Write-backs to the metadata store that failed.",
		},
		[]string{"kind"},
	)
)

// RecordEntryReload reports an IncrementalReload decision tally for one
// sub-cache refresh.
func RecordEntryReload(subcache string, newCount, reloaded, skipped, missing int) {
	EntryReloadsTotal.WithLabelValues(subcache, "new").Add(float64(newCount))
	EntryReloadsTotal.WithLabelValues(subcache, "reloaded").Add(float64(reloaded))
	EntryReloadsTotal.WithLabelValues(subcache, "skipped").Add(float64(skipped))
	EntryReloadsTotal.WithLabelValues(subcache, "missing").Add(float64(missing))
}
