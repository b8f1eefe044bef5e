// Package metrics exposes Prometheus counters for installs and notifications.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roombridge"

// Metrics implements install.Recorder and notifier.Recorder.
type Metrics struct {
	installs      *prometheus.CounterVec
	uninstalls    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	gatherer      prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "installs_total",
			Help:      "Install callbacks by result.",
		}, []string{"result"}),
		uninstalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uninstalls_total",
			Help:      "Uninstall callbacks by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Room notifications sent, by kind and result.",
		}, []string{"kind", "result"}),
		gatherer: reg,
	}
	reg.MustRegister(m.installs, m.uninstalls, m.notifications)
	return m
}

func (m *Metrics) InstallResult(result string) {
	m.installs.WithLabelValues(result).Inc()
}

func (m *Metrics) UninstallResult(result string) {
	m.uninstalls.WithLabelValues(result).Inc()
}

func (m *Metrics) NotificationResult(kind, result string) {
	m.notifications.WithLabelValues(kind, result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
