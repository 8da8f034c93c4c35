// Package metrics provides Prometheus metrics for fsmirror.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Registry holds every fsmirror metric. It is separate from the default
// registry so embedding programs decide whether to expose it.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// Mirror lookups by partition (immutable, mutable), kind (file, tree, content) and result.
	mirrorLookupsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsmirror_mirror_lookups_total",
			Help: "Total number of file-system mirror lookups",
		},
		[]string{"partition", "kind", "result"},
	)

	mirrorInvalidationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsmirror_mirror_invalidations_total",
			Help: "Total number of bulk mirror invalidations",
		},
		[]string{"trigger"},
	)

	walkDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fsmirror_walk_duration_seconds",
			Help:    "Time to walk and hash one directory tree",
			Buckets: prometheus.DefBuckets,
		},
	)

	walkedFilesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "fsmirror_walked_files_total",
			Help: "Total number of regular files visited by directory walks",
		},
	)

	hashedBytesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "fsmirror_hashed_bytes_total",
			Help: "Total bytes read to compute content hashes",
		},
	)

	hashCacheTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fsmirror_hash_cache_total",
			Help: "Hash cache lookups by result",
		},
		[]string{"result"},
	)

	symlinkLoopsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "fsmirror_symlink_loops_total",
			Help: "Total number of symlink loops skipped during walks",
		},
	)
)

func result(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// RecordMirrorLookup records a mirror lookup.
func RecordMirrorLookup(partition, kind string, hit bool) {
	mirrorLookupsTotal.WithLabelValues(partition, kind, result(hit)).Inc()
}

// RecordInvalidation records a bulk invalidation triggered by a lifecycle signal.
func RecordInvalidation(trigger string) {
	mirrorInvalidationsTotal.WithLabelValues(trigger).Inc()
}

// ObserveWalk records a completed directory walk.
func ObserveWalk(d time.Duration, files int) {
	walkDuration.Observe(d.Seconds())
	walkedFilesTotal.Add(float64(files))
}

// RecordHashedBytes records bytes read by a hasher.
func RecordHashedBytes(n int64) {
	hashedBytesTotal.Add(float64(n))
}

// RecordHashCache records a hash cache lookup.
func RecordHashCache(hit bool) {
	hashCacheTotal.WithLabelValues(result(hit)).Inc()
}

// RecordSymlinkLoop records a skipped symlink loop.
func RecordSymlinkLoop() {
	symlinkLoopsTotal.Inc()
}

// Write dumps all metrics in the Prometheus text exposition format.
func Write(w io.Writer) error {
	families, err := Registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}
