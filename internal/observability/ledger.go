package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/caixa/internal/ledger"
)

type ledgerCollectors struct {
	lifecycle   *prometheus.CounterVec
	movements   *prometheus.CounterVec
	amount      *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	consolServe *prometheus.HistogramVec
}

func newLedgerCollectors(reg prometheus.Registerer) *ledgerCollectors {
	c := &ledgerCollectors{
		lifecycle: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caixa_register_transitions_total",
			Help: "Register open and close transitions per unit.",
		}, []string{"unit", "transition"}),
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caixa_movements_recorded_total",
			Help: "Movements accepted per unit and origin.",
		}, []string{"unit", "origin"}),
		amount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caixa_movement_amount_cents_total",
			Help: "Sum of accepted movement amounts in minor units per direction.",
		}, []string{"unit", "direction"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "caixa_operations_rejected_total",
			Help: "Register operations rejected by reason.",
		}, []string{"reason"}),
		consolServe: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "caixa_consolidation_duration_seconds",
			Help:    "Time to serve a consolidated view, by cache outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"cache"}),
	}
	reg.MustRegister(c.lifecycle, c.movements, c.amount, c.rejections, c.consolServe)
	return c
}

// RegisterOpened counts an open transition.
func (m *Metrics) RegisterOpened(unitID int64) {
	if m == nil {
		return
	}
	m.ledger.lifecycle.WithLabelValues(unitLabel(unitID), "open").Inc()
}

// RegisterClosed counts a close transition.
func (m *Metrics) RegisterClosed(unitID int64) {
	if m == nil {
		return
	}
	m.ledger.lifecycle.WithLabelValues(unitLabel(unitID), "close").Inc()
}

// MovementsRecorded counts accepted movements and their amounts.
func (m *Metrics) MovementsRecorded(unitID int64, movements []ledger.Movement) {
	if m == nil {
		return
	}
	unit := unitLabel(unitID)
	for _, mv := range movements {
		m.ledger.movements.WithLabelValues(unit, string(mv.Origin)).Inc()
		m.ledger.amount.WithLabelValues(unit, string(mv.Direction)).Add(float64(mv.Amount))
	}
}

// OperationRejected counts a rejected register operation.
func (m *Metrics) OperationRejected(reason string) {
	if m == nil {
		return
	}
	m.ledger.rejections.WithLabelValues(reason).Inc()
}

// ConsolidationServed observes a consolidated view request.
func (m *Metrics) ConsolidationServed(cacheHit bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "miss"
	if cacheHit {
		outcome = "hit"
	}
	m.ledger.consolServe.WithLabelValues(outcome).Observe(duration.Seconds())
}

func unitLabel(unitID int64) string {
	return strconv.FormatInt(unitID, 10)
}
