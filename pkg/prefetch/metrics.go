package prefetch

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Namespace prefixes all metrics exposed by this package.
	Namespace = "prefetcher"

	// Status label values for the fetch counter.
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds the Prometheus instruments for one publisher. A nil *Metrics
// is valid everywhere; recording becomes a no-op so a metrics failure can
// never affect cache correctness.
type Metrics struct {
	expiredIterators prometheus.Counter
	fetches          *prometheus.CounterVec
	fetchDuration    prometheus.Histogram

	cachedEntries prometheus.Gauge
	cachedRecords prometheus.Gauge
	cachedBytes   prometheus.Gauge
	millisBehind  prometheus.Gauge

	deliveries prometheus.Counter
	rewinds    prometheus.Counter
}

// NewMetrics creates a Metrics instance and registers all instruments with
// the provided registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		expiredIterators: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "expired_iterators_total",
			Help:      "Total number of fetches that failed because the continuation token expired",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fetches_total",
			Help:      "Total number of fetch strategy calls by status",
		}, []string{"status"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of fetch strategy calls",
			Buckets:   prometheus.DefBuckets,
		}),
		cachedEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cached_entries",
			Help:      "Number of batches currently resident in the cache queue",
		}),
		cachedRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cached_records",
			Help:      "Total buffered record count across all cached batches",
		}),
		cachedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cached_bytes",
			Help:      "Total buffered payload size across all cached batches",
		}),
		millisBehind: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "millis_behind_latest",
			Help:      "Millis-behind-latest reported by the most recent successful fetch",
		}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "deliveries_total",
			Help:      "Total number of batches delivered to the consumer",
		}),
		rewinds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rewinds_total",
			Help:      "Total number of position rewinds requested by the consumer",
		}),
	}

	collectors := []prometheus.Collector{
		m.expiredIterators,
		m.fetches,
		m.fetchDuration,
		m.cachedEntries,
		m.cachedRecords,
		m.cachedBytes,
		m.millisBehind,
		m.deliveries,
		m.rewinds,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register prefetch metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observeFetch(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(status).Inc()
	m.fetchDuration.Observe(d.Seconds())
}

func (m *Metrics) incExpiredIterator() {
	if m == nil {
		return
	}
	m.expiredIterators.Inc()
}

func (m *Metrics) incDelivery() {
	if m == nil {
		return
	}
	m.deliveries.Inc()
}

func (m *Metrics) incRewind() {
	if m == nil {
		return
	}
	m.rewinds.Inc()
}

func (m *Metrics) setCacheState(entries int, records, bytes int64) {
	if m == nil {
		return
	}
	m.cachedEntries.Set(float64(entries))
	m.cachedRecords.Set(float64(records))
	m.cachedBytes.Set(float64(bytes))
}

func (m *Metrics) setMillisBehind(v int64) {
	if m == nil {
		return
	}
	m.millisBehind.Set(float64(v))
}
