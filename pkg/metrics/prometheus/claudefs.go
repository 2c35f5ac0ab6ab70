package prometheus

import (
	"strconv"

	"github.com/marmos91/dittofs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterClaudeFSMetricsConstructor(func() metrics.ClaudeFSMetrics {
		return NewClaudeFSMetrics()
	})
}

// claudefsMetrics is the Prometheus implementation for the claudefs engine:
// journal, scheduler, compactor, scrubber and failover gauges.
// Journal, scheduler, compaction and scrub fields are gauges, not counters:
// RecordXStats is fed a lifetime cumulative total from each component's
// Stats() snapshot on every poll, and re-adding a cumulative value to a
// Counter on each poll would overcount it. A Gauge set to the latest
// cumulative value reports the same lifetime total correctly.
type claudefsMetrics struct {
	journalEntriesAppended  prometheus.Gauge
	journalEntriesCommitted prometheus.Gauge
	journalBytesWritten     prometheus.Gauge
	journalCommits          prometheus.Gauge

	schedulerEnqueued             prometheus.Gauge
	schedulerDequeued             prometheus.Gauge
	schedulerRejected             prometheus.Gauge
	schedulerStarvationPromotions prometheus.Gauge
	schedulerQueueDepth           prometheus.Gauge

	compactionTotal          prometheus.Gauge
	compactionActive         prometheus.Gauge
	compactionBytesReclaimed prometheus.Gauge
	compactionAvgReclaimPct  prometheus.Gauge

	scrubTotal          prometheus.Gauge
	scrubBlocksChecked  prometheus.Gauge
	scrubErrorsDetected prometheus.Gauge
	scrubErrorsRepaired prometheus.Gauge

	siteWritable      *prometheus.GaugeVec
	siteFailoverCount *prometheus.GaugeVec
}

// NewClaudeFSMetrics creates a new Prometheus-backed ClaudeFSMetrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewClaudeFSMetrics() *claudefsMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &claudefsMetrics{
		journalEntriesAppended: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_journal_entries_appended",
			Help: "Lifetime number of write journal entries appended",
		}),
		journalEntriesCommitted: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_journal_entries_committed",
			Help: "Lifetime number of write journal entries committed",
		}),
		journalBytesWritten: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_journal_bytes_written",
			Help: "Lifetime number of bytes appended to the write journal",
		}),
		journalCommits: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_journal_commits",
			Help: "Lifetime number of journal commit calls",
		}),
		schedulerEnqueued: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_scheduler_enqueued",
			Help: "Lifetime number of I/O requests enqueued",
		}),
		schedulerDequeued: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_scheduler_dequeued",
			Help: "Lifetime number of I/O requests dequeued",
		}),
		schedulerRejected: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_scheduler_rejected",
			Help: "Lifetime number of I/O requests rejected at admission",
		}),
		schedulerStarvationPromotions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_scheduler_starvation_promotions",
			Help: "Lifetime number of requests promoted to the inflight window to avoid starvation",
		}),
		schedulerQueueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_scheduler_queue_depth",
			Help: "Current total I/O scheduler queue depth across all priorities",
		}),
		compactionTotal: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_compaction_total",
			Help: "Lifetime number of compaction tasks completed",
		}),
		compactionActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_compaction_active",
			Help: "Current number of active compaction tasks",
		}),
		compactionBytesReclaimed: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_compaction_bytes_reclaimed",
			Help: "Lifetime number of bytes reclaimed by compaction",
		}),
		compactionAvgReclaimPct: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_compaction_avg_reclaim_pct",
			Help: "Average percentage of bytes reclaimed per compaction task",
		}),
		scrubTotal: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_scrub_total",
			Help: "Lifetime number of scrub passes run",
		}),
		scrubBlocksChecked: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_scrub_blocks_checked",
			Help: "Lifetime number of blocks checksum-verified by the scrubber",
		}),
		scrubErrorsDetected: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_scrub_errors_detected",
			Help: "Lifetime number of checksum mismatches detected by the scrubber",
		}),
		scrubErrorsRepaired: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_scrub_errors_repaired",
			Help: "Lifetime number of checksum mismatches repaired by the scrubber",
		}),
		siteWritable: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_site_writable",
			Help: "Whether a site is currently writable (1) or not (0)",
		}, []string{"site_id"}),
		siteFailoverCount: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "dittofs_claudefs_site_failover_count",
			Help: "Lifetime failover count for a site",
		}, []string{"site_id"}),
	}
}

func (m *claudefsMetrics) RecordJournalStats(entriesAppended, entriesCommitted, bytesWritten, commits uint64) {
	if m == nil {
		return
	}
	m.journalEntriesAppended.Set(float64(entriesAppended))
	m.journalEntriesCommitted.Set(float64(entriesCommitted))
	m.journalBytesWritten.Set(float64(bytesWritten))
	m.journalCommits.Set(float64(commits))
}

func (m *claudefsMetrics) RecordSchedulerStats(enqueued, dequeued, rejected, starvationPromotions uint64, queueDepth int) {
	if m == nil {
		return
	}
	m.schedulerEnqueued.Set(float64(enqueued))
	m.schedulerDequeued.Set(float64(dequeued))
	m.schedulerRejected.Set(float64(rejected))
	m.schedulerStarvationPromotions.Set(float64(starvationPromotions))
	m.schedulerQueueDepth.Set(float64(queueDepth))
}

func (m *claudefsMetrics) RecordCompactionStats(totalCompactions, activeCompactions, bytesReclaimed uint64, avgReclaimPct float64) {
	if m == nil {
		return
	}
	m.compactionTotal.Set(float64(totalCompactions))
	m.compactionActive.Set(float64(activeCompactions))
	m.compactionBytesReclaimed.Set(float64(bytesReclaimed))
	m.compactionAvgReclaimPct.Set(avgReclaimPct)
}

func (m *claudefsMetrics) RecordScrubStats(totalScrubs, blocksChecked, errorsDetected, errorsRepaired uint64) {
	if m == nil {
		return
	}
	m.scrubTotal.Set(float64(totalScrubs))
	m.scrubBlocksChecked.Set(float64(blocksChecked))
	m.scrubErrorsDetected.Set(float64(errorsDetected))
	m.scrubErrorsRepaired.Set(float64(errorsRepaired))
}

func (m *claudefsMetrics) RecordSiteHealth(siteID uint64, writable bool, failoverCount uint64) {
	if m == nil {
		return
	}
	label := strconv.FormatUint(siteID, 10)
	w := 0.0
	if writable {
		w = 1.0
	}
	m.siteWritable.WithLabelValues(label).Set(w)
	m.siteFailoverCount.WithLabelValues(label).Set(float64(failoverCount))
}
