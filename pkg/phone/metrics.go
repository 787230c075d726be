package phone

import (
	"github.com/arzzra/web_phone/pkg/history"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig конфигурация метрик
type MetricsConfig struct {
	Namespace string
	Subsystem string
}

// DefaultMetricsConfig возвращает конфигурацию по умолчанию
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Namespace: "webphone", Subsystem: "phone"}
}

// Metrics Prometheus метрики менеджера звонков. Методы безопасны для nil.
type Metrics struct {
	callsStarted      prometheus.Counter
	callsFinished     *prometheus.CounterVec
	callsRejected     *prometheus.CounterVec
	callDuration      prometheus.Histogram
	statusTransitions *prometheus.CounterVec
	connectionEvents  *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg. Несколько менеджеров одного
// процесса должны разделять один *Metrics.
func NewMetrics(reg prometheus.Registerer, cfg MetricsConfig) *Metrics {
	if cfg.Namespace == "" {
		cfg = DefaultMetricsConfig()
	}
	f := promauto.With(reg)
	return &Metrics{
		callsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "calls_started_total",
			Help:      "Total number of admitted outgoing and answered incoming calls",
		}),
		callsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "calls_finished_total",
			Help:      "Total number of finished calls by outcome",
		}, []string{"outcome"}),
		callsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "call_admission_rejected_total",
			Help:      "Total number of refused call attempts by reason",
		}, []string{"reason"}),
		callDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "call_duration_seconds",
			Help:      "Duration of completed calls",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		statusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "status_transitions_total",
			Help:      "Total number of call status transitions by target status",
		}, []string{"to"}),
		connectionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "connection_events_total",
			Help:      "Total number of transport events seen by the manager",
		}, []string{"event"}),
	}
}

func (m *Metrics) callStarted() {
	if m != nil {
		m.callsStarted.Inc()
	}
}

func (m *Metrics) callFinished(outcome history.Status, duration int) {
	if m == nil {
		return
	}
	m.callsFinished.WithLabelValues(string(outcome)).Inc()
	if outcome == history.StatusCompleted {
		m.callDuration.Observe(float64(duration))
	}
}

func (m *Metrics) callRejected(err *PhoneError) {
	if m != nil && err != nil {
		m.callsRejected.WithLabelValues(err.Code).Inc()
	}
}

func (m *Metrics) transition(to Status) {
	if m != nil {
		m.statusTransitions.WithLabelValues(string(to)).Inc()
	}
}

func (m *Metrics) connectionEvent(event string) {
	if m != nil {
		m.connectionEvents.WithLabelValues(event).Inc()
	}
}
