package server

import (
	prom "github.com/prometheus/client_golang/prometheus"
)

// Metrics carries the server's own registry so tests can stand up
// multiple servers without duplicate-registration panics.
type Metrics struct {
	Registry *prom.Registry

	TurnsTotal     *prom.CounterVec
	SnapshotsTotal prom.Counter
	StoreOpsTotal  *prom.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prom.NewRegistry(),
		TurnsTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "healthcoach_turns_total",
			Help: "Conversational turns handled, by outcome.",
		}, []string{"outcome"}),
		SnapshotsTotal: prom.NewCounter(prom.CounterOpts{
			Name: "healthcoach_snapshots_total",
			Help: "Display snapshots streamed to clients.",
		}),
		StoreOpsTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "healthcoach_store_ops_total",
			Help: "Medication store operations served over REST.",
		}, []string{"op"}),
	}
	m.Registry.MustRegister(m.TurnsTotal, m.SnapshotsTotal, m.StoreOpsTotal)
	return m
}
