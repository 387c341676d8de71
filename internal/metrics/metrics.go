package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	fetchDuration *prometheus.HistogramVec
	fetchErrors   prometheus.Counter
	fallbacks     prometheus.Counter
	sampleSize    prometheus.Histogram
	snapshotFails prometheus.Counter
}

func New(namespace string) *Metrics {
	return &Metrics{
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Time spent fetching the meme catalog from the source.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetch_errors_total",
			Help:      "Failed catalog fetches.",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_fallbacks_total",
			Help:      "Requests served from the stored catalog snapshot.",
		}),
		sampleSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sample_size",
			Help:      "Number of memes returned per sample.",
			Buckets:   prometheus.LinearBuckets(0, 5, 6),
		}),
		snapshotFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_save_errors_total",
			Help:      "Catalog snapshots that could not be stored.",
		}),
	}
}

func (m *Metrics) Register(registerer prometheus.Registerer) error {
	return errors.Join(
		registerer.Register(m.fetchDuration),
		registerer.Register(m.fetchErrors),
		registerer.Register(m.fallbacks),
		registerer.Register(m.sampleSize),
		registerer.Register(m.snapshotFails),
	)
}

func (m *Metrics) ObserveFetch(start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.fetchErrors.Inc()
	}
	m.fetchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Fallback() { m.fallbacks.Inc() }

func (m *Metrics) SnapshotFailed() { m.snapshotFails.Inc() }

func (m *Metrics) ObserveSample(n int) { m.sampleSize.Observe(float64(n)) }
