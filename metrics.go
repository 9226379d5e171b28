package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mirrors the shape of ipadev88-proxy-checker-api's
// metrics.Collector: promauto-registered gauges/counters/histograms
// under one namespace, with Record*/Set* methods. Each Metrics owns its
// own registry rather than registering on prometheus's global
// DefaultRegisterer, so multiple instances (e.g. one per test) can
// coexist without a duplicate-collector panic.
type Metrics struct {
	registry       *prometheus.Registry
	readyBots  prometheus.Gauge
	busyBots   prometheus.Gauge
	inspects   *prometheus.CounterVec
	inspectLatency prometheus.Histogram
	loginAttempts *prometheus.CounterVec
	gcReconnects prometheus.Counter
	proxySwitches prometheus.Counter
}

// NewMetrics registers the collectors under cfg.MetricsNamespace on a
// fresh registry.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		readyBots: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready_bots",
			Help:      "Number of bots currently ready and not busy.",
		}),
		busyBots: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "busy_bots",
			Help:      "Number of bots currently serving an inspect request.",
		}),
		inspects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inspect_requests_total",
			Help:      "Inspect requests by outcome.",
		}, []string{"outcome"}),
		inspectLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inspect_latency_seconds",
			Help:      "Time from dispatch to reply delivery.",
			Buckets:   prometheus.DefBuckets,
		}),
		loginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		gcReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_reconnects_total",
			Help:      "Game Coordinator reconnect attempts.",
		}),
		proxySwitches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_switches_total",
			Help:      "Successful proxy-control switch commands.",
		}),
	}
}

// Handler serves this Metrics' own registry, rather than the process
// global one, so /metrics reflects exactly the collectors above.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordInspect(outcome string) {
	if m == nil {
		return
	}
	m.inspects.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveInspectLatencySeconds(s float64) {
	if m == nil {
		return
	}
	m.inspectLatency.Observe(s)
}

func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordGCReconnect() {
	if m == nil {
		return
	}
	m.gcReconnects.Inc()
}

func (m *Metrics) RecordProxySwitch() {
	if m == nil {
		return
	}
	m.proxySwitches.Inc()
}

func (m *Metrics) SetReadyBusy(ready, busy int) {
	if m == nil {
		return
	}
	m.readyBots.Set(float64(ready))
	m.busyBots.Set(float64(busy))
}
