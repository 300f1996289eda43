// Package metrics exports sync outcomes to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beekhof/mirror-agenda/internal/sync"
)

const namespace = "mirror_agenda"

// Metrics records every completed sync. It implements sync.Observer.
type Metrics struct {
	registry *prometheus.Registry

	syncTotal     *prometheus.CounterVec
	syncDuration  prometheus.Summary
	displayed     *prometheus.GaugeVec
	lastSuccessTS prometheus.Gauge
	signedIn      prometheus.Gauge
}

// New creates the collectors on a private registry, together with the
// standard Go and process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.syncTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_total",
		Help:      "Completed sync cycles by trigger and resulting state",
	}, []string{"trigger", "state"})
	m.syncDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: namespace,
		Name:      "sync_duration_seconds",
		Help:      "Time spent in a sync cycle",
	})
	m.displayed = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "displayed_events",
		Help:      "Events in the current display by source",
	}, []string{"source"})
	m.lastSuccessTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful live fetch",
	})
	m.signedIn = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "signed_in",
		Help:      "1 when a token is held, 0 otherwise",
	})

	m.registry.MustRegister(
		m.syncTotal, m.syncDuration, m.displayed, m.lastSuccessTS, m.signedIn,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveSync(d sync.Display, elapsed time.Duration) {
	m.syncTotal.WithLabelValues(string(d.Trigger), d.State.String()).Inc()
	m.syncDuration.Observe(elapsed.Seconds())

	m.displayed.Reset()
	m.displayed.WithLabelValues(string(d.Source)).Set(float64(len(d.Items)))

	if d.State == sync.StateSuccess {
		m.lastSuccessTS.Set(float64(d.GeneratedAt.Unix()))
	}
	if d.SignedIn {
		m.signedIn.Set(1)
	} else {
		m.signedIn.Set(0)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
