package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveMemoryStates prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	Turns              *prometheus.CounterVec
	ProviderErrors     *prometheus.CounterVec
	RiskSignals        *prometheus.CounterVec
	WSMessages         *prometheus.CounterVec
	ModelLatency       prometheus.Histogram
	TurnLatency        prometheus.Histogram

	turnStages *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveMemoryStates: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_memory_states",
			Help:      "Number of (user, session) conversation memories held in process.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Chat turns by outcome.",
		}, []string{"outcome"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		RiskSignals: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_signals_total",
			Help:      "User messages flagged by the safety policy, by level.",
		}, []string{"level"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ModelLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_latency_ms",
			Help:      "Language model call latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}),
		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "End to end chat turn latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}),
		turnStages: newLatencyWindow(512),
	}
}

func (m *Metrics) ObserveModelLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ModelLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveTurn(outcome string, total time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnLatency.Observe(float64(total.Milliseconds()))
	m.turnStages.Add("turn_total", float64(total.Microseconds())/1000)
}

// ObserveTurnStage records the time from turn receipt to stage.
func (m *Metrics) ObserveTurnStage(stage string, sinceReceived time.Duration) {
	if m == nil {
		return
	}
	m.turnStages.Add("received_to_"+stage, float64(sinceReceived.Microseconds())/1000)
}

func (m *Metrics) ObserveRisk(level string) {
	if m == nil {
		return
	}
	m.RiskSignals.WithLabelValues(level).Inc()
	m.turnStages.Flag("risk_" + level)
}

func (m *Metrics) ObserveProviderError(provider, code string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) SetActiveMemoryStates(n int) {
	if m == nil {
		return
	}
	m.ActiveMemoryStates.Set(float64(n))
}

// SnapshotTurnStages summarizes the recent turn stage latencies.
func (m *Metrics) SnapshotTurnStages() LatencySnapshot {
	if m == nil {
		return newLatencyWindow(0).Snapshot()
	}
	return m.turnStages.Snapshot()
}

func (m *Metrics) ResetTurnStages() {
	if m == nil {
		return
	}
	m.turnStages.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
