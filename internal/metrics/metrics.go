// Package metrics exposes Prometheus collectors for replication, merge and
// metalog activity.
//
// A *Metrics is created per node so several nodes can share a process
// (tests, the convergence harness). All methods are no-ops on a nil
// *Metrics.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds one node's collectors.
type Metrics struct {
	EventsEmitted   *prometheus.CounterVec
	ApplyOutcomes   *prometheus.CounterVec
	ScanDuration    prometheus.Histogram
	ApplyDuration   prometheus.Histogram
	StoriesMerged   prometheus.Counter
	VectorCounter   *prometheus.GaugeVec
	MetalogIndex    prometheus.Gauge
	MetalogAppended prometheus.Counter
}

// New creates collectors labelled with the node's actor ID.
func New(actorID string) *Metrics {
	labels := prometheus.Labels{"node": actorID}
	return &Metrics{
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fleetsync_events_emitted_total",
			Help:        "Events emitted by local scans",
			ConstLabels: labels,
		}, []string{"table", "op"}),

		ApplyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fleetsync_apply_events_total",
			Help:        "Remote events processed by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}), // applied|duplicate|stale|unsupported|conflicting|invalid

		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "fleetsync_scan_duration_seconds",
			Help:        "Duration of scan passes",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),

		ApplyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "fleetsync_apply_duration_seconds",
			Help:        "Duration of batch applies",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),

		StoriesMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "fleetsync_stories_merged_total",
			Help:        "Duplicate stories removed by merge passes",
			ConstLabels: labels,
		}),

		VectorCounter: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "fleetsync_version_vector_counter",
			Help:        "Highest counter seen per actor",
			ConstLabels: labels,
		}, []string{"actor"}),

		MetalogIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "fleetsync_metalog_last_index",
			Help:        "Last index written to the metadata log",
			ConstLabels: labels,
		}),

		MetalogAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "fleetsync_metalog_appended_total",
			Help:        "Entries appended to the metadata log",
			ConstLabels: labels,
		}),
	}
}

// Register registers every collector on reg (or the default registerer if
// nil). Collectors that are already registered are not an error.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if m == nil {
		return nil
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range m.collectors() {
		if err := registerCollector(reg, c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.EventsEmitted, m.ApplyOutcomes, m.ScanDuration, m.ApplyDuration,
		m.StoriesMerged, m.VectorCounter, m.MetalogIndex, m.MetalogAppended,
	}
}

func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
	}
	return nil
}

// Handler serves the metrics in gatherer (or the default gatherer if nil).
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveEmitted counts one scanned event.
func (m *Metrics) ObserveEmitted(table, op string) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(table, op).Inc()
}

// ObserveOutcome adds n events with the given apply outcome.
func (m *Metrics) ObserveOutcome(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ApplyOutcomes.WithLabelValues(outcome).Add(float64(n))
}

// ObserveScan records a scan pass duration.
func (m *Metrics) ObserveScan(d time.Duration) {
	if m == nil {
		return
	}
	m.ScanDuration.Observe(d.Seconds())
}

// ObserveApply records a batch apply duration.
func (m *Metrics) ObserveApply(d time.Duration) {
	if m == nil {
		return
	}
	m.ApplyDuration.Observe(d.Seconds())
}

// ObserveMerged adds removed duplicates.
func (m *Metrics) ObserveMerged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.StoriesMerged.Add(float64(n))
}

// SetVector publishes the version vector.
func (m *Metrics) SetVector(vv map[string]int64) {
	if m == nil {
		return
	}
	for actor, counter := range vv {
		m.VectorCounter.WithLabelValues(actor).Set(float64(counter))
	}
}

// ObserveMetalog records appended entries and the resulting last index.
func (m *Metrics) ObserveMetalog(appended int, lastIndex uint64) {
	if m == nil {
		return
	}
	if appended > 0 {
		m.MetalogAppended.Add(float64(appended))
	}
	m.MetalogIndex.Set(float64(lastIndex))
}
