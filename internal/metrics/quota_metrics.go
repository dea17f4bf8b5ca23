package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cramdesk/backend/internal/ledger"
)

// QuotaMetrics is the Prometheus implementation of ledger.Metrics plus the
// generation pipeline counters.
type QuotaMetrics struct {
	checks      *prometheus.CounterVec
	pages       *prometheus.CounterVec
	rollovers   prometheus.Counter
	overshoot   prometheus.Counter
	generations *prometheus.CounterVec
}

var _ ledger.Metrics = (*QuotaMetrics)(nil)

func NewQuotaMetrics(registry *prometheus.Registry) *QuotaMetrics {
	factory := promauto.With(registry)
	return &QuotaMetrics{
		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_checks_total",
				Help: "Usage checks by outcome",
			},
			[]string{"outcome"},
		),
		pages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_pages_deducted_total",
				Help: "Pages committed to usage by operation",
			},
			[]string{"operation"},
		),
		rollovers: factory.NewCounter(prometheus.CounterOpts{
			Name: "quota_cycle_rollovers_total",
			Help: "Monthly usage resets performed",
		}),
		overshoot: factory.NewCounter(prometheus.CounterOpts{
			Name: "quota_overshoot_pages_total",
			Help: "Pages committed beyond the plan limit",
		}),
		generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generations_finished_total",
				Help: "Finished generation jobs by kind and status",
			},
			[]string{"kind", "status"},
		),
	}
}

func (m *QuotaMetrics) CheckEvaluated(outcome string) {
	m.checks.WithLabelValues(outcome).Inc()
}

func (m *QuotaMetrics) PagesDeducted(operation string, pages int) {
	m.pages.WithLabelValues(operation).Add(float64(pages))
}

func (m *QuotaMetrics) CycleRolledOver() {
	m.rollovers.Inc()
}

func (m *QuotaMetrics) Overshoot(pages int) {
	m.overshoot.Add(float64(pages))
}

func (m *QuotaMetrics) GenerationFinished(kind, status string) {
	m.generations.WithLabelValues(kind, status).Inc()
}
