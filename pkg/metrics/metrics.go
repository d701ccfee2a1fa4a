// Package metrics exposes Prometheus counters for engine operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "questie"

// Collector records engine activity. A nil *Collector records nothing.
type Collector struct {
	assignments       *prometheus.CounterVec
	rerolls           *prometheus.CounterVec
	completions       *prometheus.CounterVec
	badgesAwarded     *prometheus.CounterVec
	badgeFailures     prometheus.Counter
	operationDuration *prometheus.HistogramVec
}

// NewCollector creates the engine metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		assignments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quest_assignments_total",
				Help:      "Total number of quests assigned",
			},
			[]string{"type"},
		),
		rerolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quest_rerolls_total",
				Help:      "Total number of period sets rerolled",
			},
			[]string{"type"},
		),
		completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quest_completions_total",
				Help:      "Total number of quest completions and undos",
			},
			[]string{"action"},
		),
		badgesAwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "badges_awarded_total",
				Help:      "Total number of badges awarded",
			},
			[]string{"requirement_type"},
		),
		badgeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "badge_evaluation_failures_total",
				Help:      "Total number of failed post-completion badge evaluations",
			},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of engine operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "outcome"},
		),
	}

	reg.MustRegister(
		c.assignments,
		c.rerolls,
		c.completions,
		c.badgesAwarded,
		c.badgeFailures,
		c.operationDuration,
	)
	return c
}

func (c *Collector) QuestsAssigned(assignmentType string, n int) {
	if c == nil {
		return
	}
	c.assignments.WithLabelValues(assignmentType).Add(float64(n))
}

func (c *Collector) Rerolled(assignmentType string) {
	if c == nil {
		return
	}
	c.rerolls.WithLabelValues(assignmentType).Inc()
}

func (c *Collector) Completed() {
	if c == nil {
		return
	}
	c.completions.WithLabelValues("complete").Inc()
}

func (c *Collector) Uncompleted() {
	if c == nil {
		return
	}
	c.completions.WithLabelValues("uncomplete").Inc()
}

func (c *Collector) BadgeAwarded(requirementType string) {
	if c == nil {
		return
	}
	c.badgesAwarded.WithLabelValues(requirementType).Inc()
}

func (c *Collector) BadgeEvaluationFailed() {
	if c == nil {
		return
	}
	c.badgeFailures.Inc()
}

// ObserveOperation records how long an operation took since start.
func (c *Collector) ObserveOperation(operation string, start time.Time, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.operationDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}
