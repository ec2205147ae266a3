package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Auto-mark scheduler instrumentation, served on /metrics by cmd/api.
var (
	AutoMarkScans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtrack_automark_scans_total",
		Help: "Number of auto-mark scan passes.",
	})

	AutoMarkStaged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtrack_automark_staged_total",
		Help: "Number of slots staged as pending attendance.",
	})

	AutoMarkFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtrack_automark_flushes_total",
		Help: "Number of successful end-of-day batch uploads.",
	})

	AutoMarkFlushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classtrack_automark_flush_failures_total",
		Help: "Number of failed batch uploads (retried next cycle).",
	})

	AutoMarkBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "classtrack_automark_batch_size",
		Help:    "Records per uploaded batch.",
		Buckets: prometheus.LinearBuckets(1, 2, 8),
	})
)
