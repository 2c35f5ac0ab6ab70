package metrics

// ClaudeFSMetrics provides observability for the claudefs engine: the write
// journal, I/O scheduler, compactor, scrubber and failover controller each
// report a snapshot through this interface. Implementations are optional -
// pass nil to disable metrics collection with zero overhead.
type ClaudeFSMetrics interface {
	// RecordJournalStats reports the write journal's lifetime counters.
	RecordJournalStats(entriesAppended, entriesCommitted, bytesWritten, commits uint64)

	// RecordSchedulerStats reports the I/O scheduler's lifetime counters and
	// current queue depth.
	RecordSchedulerStats(enqueued, dequeued, rejected, starvationPromotions uint64, queueDepth int)

	// RecordCompactionStats reports the compactor's lifetime and current
	// state.
	RecordCompactionStats(totalCompactions, activeCompactions, bytesReclaimed uint64, avgReclaimPct float64)

	// RecordScrubStats reports the scrubber's lifetime activity.
	RecordScrubStats(totalScrubs, blocksChecked, errorsDetected, errorsRepaired uint64)

	// RecordSiteHealth reports a site's writability and its lifetime
	// failover count, identified by its numeric site ID.
	RecordSiteHealth(siteID uint64, writable bool, failoverCount uint64)
}

// NewClaudeFSMetrics creates a new Prometheus-backed ClaudeFSMetrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). When nil
// is returned, callers should pass nil to the engine, which results in zero
// overhead.
func NewClaudeFSMetrics() ClaudeFSMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusClaudeFSMetrics()
}

// newPrometheusClaudeFSMetrics is implemented in
// pkg/metrics/prometheus/claudefs.go. This indirection avoids an import
// cycle between pkg/metrics and pkg/metrics/prometheus.
var newPrometheusClaudeFSMetrics func() ClaudeFSMetrics

// RegisterClaudeFSMetricsConstructor registers the Prometheus claudefs
// metrics constructor. Called by pkg/metrics/prometheus/claudefs.go during
// package initialization.
func RegisterClaudeFSMetricsConstructor(constructor func() ClaudeFSMetrics) {
	newPrometheusClaudeFSMetrics = constructor
}

func RecordJournalStats(m ClaudeFSMetrics, entriesAppended, entriesCommitted, bytesWritten, commits uint64) {
	if m != nil {
		m.RecordJournalStats(entriesAppended, entriesCommitted, bytesWritten, commits)
	}
}

func RecordSchedulerStats(m ClaudeFSMetrics, enqueued, dequeued, rejected, starvationPromotions uint64, queueDepth int) {
	if m != nil {
		m.RecordSchedulerStats(enqueued, dequeued, rejected, starvationPromotions, queueDepth)
	}
}

func RecordCompactionStats(m ClaudeFSMetrics, totalCompactions, activeCompactions, bytesReclaimed uint64, avgReclaimPct float64) {
	if m != nil {
		m.RecordCompactionStats(totalCompactions, activeCompactions, bytesReclaimed, avgReclaimPct)
	}
}

func RecordScrubStats(m ClaudeFSMetrics, totalScrubs, blocksChecked, errorsDetected, errorsRepaired uint64) {
	if m != nil {
		m.RecordScrubStats(totalScrubs, blocksChecked, errorsDetected, errorsRepaired)
	}
}

func RecordSiteHealth(m ClaudeFSMetrics, siteID uint64, writable bool, failoverCount uint64) {
	if m != nil {
		m.RecordSiteHealth(siteID, writable, failoverCount)
	}
}
