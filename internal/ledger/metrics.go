package ledger

// Metrics receives ledger events. internal/metrics provides the Prometheus
// implementation.
type Metrics interface {
	CheckEvaluated(outcome string)
	PagesDeducted(operation string, pages int)
	CycleRolledOver()
	Overshoot(pages int)
}

type nopMetrics struct{}

func (nopMetrics) CheckEvaluated(string)     {}
func (nopMetrics) PagesDeducted(string, int) {}
func (nopMetrics) CycleRolledOver()          {}
func (nopMetrics) Overshoot(int)             {}
