// Package metrics exposes Prometheus collectors for the voice core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "suara"

// Metrics groups the collectors used by the gateway, the streaming engine and
// the retrieval engine. A nil *Metrics is valid and records nothing.
type Metrics struct {
	connectionsActive prometheus.Gauge
	roomsActive       prometheus.Gauge
	bootstrapTotal    *prometheus.CounterVec
	framesSent        prometheus.Counter
	utterancesTotal   *prometheus.CounterVec
	synthesisDuration *prometheus.HistogramVec
	retrievalDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open websocket connections",
		}),
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Number of conversation rooms with at least one member",
		}),
		bootstrapTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bootstrap_total",
			Help:      "Bootstrap attempts by connection kind and outcome",
		}, []string{"kind", "status"}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_sent_total",
			Help:      "Total number of outbound audio frames written",
		}),
		utterancesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Utterances by provider and outcome",
		}, []string{"provider", "status"}),
		synthesisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Time spent waiting for synthesis providers",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		retrievalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Duration of knowledge ingestion and queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.connectionsActive,
			m.roomsActive,
			m.bootstrapTotal,
			m.framesSent,
			m.utterancesTotal,
			m.synthesisDuration,
			m.retrievalDuration,
		)
	}
	return m
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connectionsActive.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connectionsActive.Dec()
	}
}

func (m *Metrics) RoomCreated() {
	if m != nil {
		m.roomsActive.Inc()
	}
}

func (m *Metrics) RoomDeleted() {
	if m != nil {
		m.roomsActive.Dec()
	}
}

func (m *Metrics) Bootstrap(kind, status string) {
	if m != nil {
		m.bootstrapTotal.WithLabelValues(kind, status).Inc()
	}
}

func (m *Metrics) FrameSent() {
	if m != nil {
		m.framesSent.Inc()
	}
}

func (m *Metrics) Utterance(provider, status string) {
	if m != nil {
		m.utterancesTotal.WithLabelValues(provider, status).Inc()
	}
}

func (m *Metrics) ObserveSynthesis(provider string, d time.Duration) {
	if m != nil {
		m.synthesisDuration.WithLabelValues(provider).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveRetrieval(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.retrievalDuration.WithLabelValues(operation, status).Observe(d.Seconds())
}
