package session

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes a session's counters to Prometheus.  Register one per
// session; the session id rides as a constant label so multiple sessions
// coexist in a registry.  Collection reads atomics and cached mirrors only,
// never the edit lock, so scrapes don't stall behind open brackets.
type Collector struct {
	s *Session

	opsCommitted *prometheus.Desc
	opsCancelled *prometheus.Desc
	undos        *prometheus.Desc
	redos        *prometheus.Desc

	undoRecords     *prometheus.Desc
	redoRecords     *prometheus.Desc
	undoBytesUsed   *prometheus.Desc
	undoBytesBudget *prometheus.Desc
	undoEvictions   *prometheus.Desc
	undoLostActions *prometheus.Desc

	labels *prometheus.Desc

	cacheAttempts *prometheus.Desc
	cacheHits     *prometheus.Desc
	cacheEntries  *prometheus.Desc
}

// NewCollector returns a Prometheus collector for the session.
func NewCollector(s *Session) *Collector {
	constLabels := prometheus.Labels{"session": s.id}
	return &Collector{
		s: s,

		opsCommitted: prometheus.NewDesc(
			"voxedit_operations_committed_total",
			"Total number of committed edit operations",
			nil, constLabels,
		),
		opsCancelled: prometheus.NewDesc(
			"voxedit_operations_cancelled_total",
			"Total number of cancelled edit operations",
			nil, constLabels,
		),
		undos: prometheus.NewDesc(
			"voxedit_undo_total",
			"Total number of undos performed",
			nil, constLabels,
		),
		redos: prometheus.NewDesc(
			"voxedit_redo_total",
			"Total number of redos performed",
			nil, constLabels,
		),

		undoRecords: prometheus.NewDesc(
			"voxedit_undo_records",
			"Number of undoable action records held",
			nil, constLabels,
		),
		redoRecords: prometheus.NewDesc(
			"voxedit_redo_records",
			"Number of redoable action records held",
			nil, constLabels,
		),
		undoBytesUsed: prometheus.NewDesc(
			"voxedit_undo_bytes_used",
			"Accounted bytes held by the undo/redo log",
			nil, constLabels,
		),
		undoBytesBudget: prometheus.NewDesc(
			"voxedit_undo_bytes_budget",
			"Configured byte budget of the undo/redo log",
			nil, constLabels,
		),
		undoEvictions: prometheus.NewDesc(
			"voxedit_undo_evictions_total",
			"Total number of action records evicted to honor the budget",
			nil, constLabels,
		),
		undoLostActions: prometheus.NewDesc(
			"voxedit_undo_lost_actions_total",
			"Total number of actions whose undo was lost to the budget",
			nil, constLabels,
		),

		labels: prometheus.NewDesc(
			"voxedit_labels",
			"Number of object entries including background",
			nil, constLabels,
		),

		cacheAttempts: prometheus.NewDesc(
			"voxedit_slicecache_attempts_total",
			"Total number of slice cache lookups",
			nil, constLabels,
		),
		cacheHits: prometheus.NewDesc(
			"voxedit_slicecache_hits_total",
			"Total number of slice cache hits",
			nil, constLabels,
		),
		cacheEntries: prometheus.NewDesc(
			"voxedit_slicecache_entries",
			"Number of slices currently cached",
			nil, constLabels,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.opsCommitted
	ch <- c.opsCancelled
	ch <- c.undos
	ch <- c.redos

	ch <- c.undoRecords
	ch <- c.redoRecords
	ch <- c.undoBytesUsed
	ch <- c.undoBytesBudget
	ch <- c.undoEvictions
	ch <- c.undoLostActions

	ch <- c.labels

	ch <- c.cacheAttempts
	ch <- c.cacheHits
	ch <- c.cacheEntries
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.s.GetStats()
	ch <- prometheus.MustNewConstMetric(
		c.opsCommitted,
		prometheus.CounterValue,
		float64(stats.Committed),
	)
	ch <- prometheus.MustNewConstMetric(
		c.opsCancelled,
		prometheus.CounterValue,
		float64(stats.Cancelled),
	)
	ch <- prometheus.MustNewConstMetric(
		c.undos,
		prometheus.CounterValue,
		float64(stats.Undos),
	)
	ch <- prometheus.MustNewConstMetric(
		c.redos,
		prometheus.CounterValue,
		float64(stats.Redos),
	)

	logStats := c.s.LogStats()
	ch <- prometheus.MustNewConstMetric(
		c.undoRecords,
		prometheus.GaugeValue,
		float64(logStats.NumUndo),
	)
	ch <- prometheus.MustNewConstMetric(
		c.redoRecords,
		prometheus.GaugeValue,
		float64(logStats.NumRedo),
	)
	ch <- prometheus.MustNewConstMetric(
		c.undoBytesUsed,
		prometheus.GaugeValue,
		float64(logStats.UsageBytes),
	)
	ch <- prometheus.MustNewConstMetric(
		c.undoBytesBudget,
		prometheus.GaugeValue,
		float64(logStats.BudgetBytes),
	)
	ch <- prometheus.MustNewConstMetric(
		c.undoEvictions,
		prometheus.CounterValue,
		float64(logStats.Evictions),
	)
	ch <- prometheus.MustNewConstMetric(
		c.undoLostActions,
		prometheus.CounterValue,
		float64(logStats.LostActions),
	)

	ch <- prometheus.MustNewConstMetric(
		c.labels,
		prometheus.GaugeValue,
		float64(atomic.LoadInt64(&c.s.numLabels)),
	)

	cacheStats := c.s.GetCacheStats()
	ch <- prometheus.MustNewConstMetric(
		c.cacheAttempts,
		prometheus.CounterValue,
		float64(cacheStats.Attempts),
	)
	ch <- prometheus.MustNewConstMetric(
		c.cacheHits,
		prometheus.CounterValue,
		float64(cacheStats.Hits),
	)
	ch <- prometheus.MustNewConstMetric(
		c.cacheEntries,
		prometheus.GaugeValue,
		float64(cacheStats.Entries),
	)
}
