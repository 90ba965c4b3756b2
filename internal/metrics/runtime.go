// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queuePending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xl2wh_queue_jobs_pending",
		Help: "Jobs waiting in the local queue",
	})
	queueRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xl2wh_queue_jobs_running",
		Help: "Jobs currently executing",
	})
	queueCompleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xl2wh_queue_jobs_completed",
		Help: "Jobs finished since startup",
	})

	cacheHits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xl2wh_cache_hits",
		Help: "Analysis cache hits since startup",
	})
	cacheMisses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xl2wh_cache_misses",
		Help: "Analysis cache misses since startup",
	})
	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xl2wh_cache_entries",
		Help: "Entries currently cached",
	})

	batchesSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xl2wh_batches_swept_total",
		Help: "Stale processing batches marked failed by the sweeper",
	})
)

// RecordQueueStats publishes a queue depth snapshot. The daemon polls the
// queue on an interval and pushes the numbers here.
func RecordQueueStats(pending, running, completed int) {
	queuePending.Set(float64(pending))
	queueRunning.Set(float64(running))
	queueCompleted.Set(float64(completed))
}

// RecordCacheStats publishes a cache counter snapshot.
func RecordCacheStats(hits, misses int64, entries int) {
	cacheHits.Set(float64(hits))
	cacheMisses.Set(float64(misses))
	cacheEntries.Set(float64(entries))
}

func AddBatchesSwept(n int64) {
	if n > 0 {
		batchesSweptTotal.Add(float64(n))
	}
}
