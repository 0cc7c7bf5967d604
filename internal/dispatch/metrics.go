package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tmt-csw/gocsw/pkg/command"
)

// Metrics collects dispatcher counters. A nil *Metrics records nothing.
type Metrics struct {
	commands     *prometheus.CounterVec
	violations   *prometheus.CounterVec
	inFlight     prometheus.Gauge
	taskDuration prometheus.Histogram
}

// NewMetrics creates the dispatcher collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "csw_commands_total",
			Help: "Commands answered, by verb and immediate response type.",
		}, []string{"verb", "response"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "csw_contract_violations_total",
			Help: "Handler responses replaced with Error because they were illegal for the verb.",
		}, []string{"verb"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "csw_tasks_in_flight",
			Help: "Long-running submit tasks that have not completed.",
		}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "csw_task_duration_seconds",
			Help:    "Time from Started to the final response of a long-running submit.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.commands, m.violations, m.inFlight, m.taskDuration)
	}
	return m
}

func (m *Metrics) answered(verb command.Verb, resp command.Response) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(string(verb), string(resp.Type())).Inc()
}

func (m *Metrics) violation(verb command.Verb) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(string(verb)).Inc()
}

func (m *Metrics) taskStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) taskFinished(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.taskDuration.Observe(elapsed.Seconds())
}
