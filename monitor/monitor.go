// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlineConnections prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	MessagesReceived  *prometheus.CounterVec
	MessageLatency    prometheus.Histogram
	RoundsFinished    *prometheus.CounterVec
	MovesRejected     *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		OnlineConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_connections",
			Help:      "Number of open websocket connections",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of active rooms",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received",
		}, []string{"event"}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		RoundsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_finished_total",
			Help:      "Finished rounds by outcome",
		}, []string{"outcome"}),
		MovesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_rejected_total",
			Help:      "Rejected moves by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.OnlineConnections,
		m.ActiveRooms,
		m.MessagesReceived,
		m.MessageLatency,
		m.RoundsFinished,
		m.MovesRejected,
	}
}

type Monitor struct {
	metrics   *Metrics
	gatherer  prometheus.Gatherer
	startTime time.Time
}

// NewMonitor 在默认注册表上注册指标
func NewMonitor(namespace string) *Monitor {
	return NewMonitorWithRegistry(namespace, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMonitorWithRegistry registers the metrics on reg and serves them from g.
func NewMonitorWithRegistry(namespace string, reg prometheus.Registerer, g prometheus.Gatherer) *Monitor {
	m := &Monitor{
		metrics:   NewMetrics(namespace),
		gatherer:  g,
		startTime: time.Now(),
	}
	reg.MustRegister(m.metrics.collectors()...)
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the server started",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	}))
	return m
}

// NewTestMonitor returns a monitor backed by a fresh registry.
func NewTestMonitor() (*Monitor, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewMonitorWithRegistry("tictac", reg, reg), reg
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

func (m *Monitor) IncOnlineConnections() {
	m.metrics.OnlineConnections.Inc()
}

func (m *Monitor) DecOnlineConnections() {
	m.metrics.OnlineConnections.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) IncMessagesReceived(event string) {
	m.metrics.MessagesReceived.WithLabelValues(event).Inc()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

// RoundFinished 记录一局结束，outcome 为 win 或 draw
func (m *Monitor) RoundFinished(outcome string) {
	m.metrics.RoundsFinished.WithLabelValues(outcome).Inc()
}

func (m *Monitor) MoveRejected(reason string) {
	m.metrics.MovesRejected.WithLabelValues(reason).Inc()
}
