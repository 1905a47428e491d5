package coordinator

import (
	"time"

	"spray_ledger/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spray_ledger",
			Name:      "operations_total",
			Help:      "Atomic operations by name and result.",
		},
		[]string{"operation", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spray_ledger",
			Name:      "operation_duration_seconds",
			Help:      "Latency of atomic operations, commit included.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	movedAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spray_ledger",
			Name:      "moved_amount_total",
			Help:      "Committed value moved, by transaction type.",
		},
		[]string{"type"},
	)
)

var resultLabels = map[error]string{
	domain.ErrValidation:             "validation",
	domain.ErrNotFound:               "not_found",
	domain.ErrUnauthorized:           "unauthorized",
	domain.ErrInsufficientFunds:      "insufficient_funds",
	domain.ErrInvalidStateTransition: "invalid_state",
	domain.ErrLedgerIntegrity:        "ledger_integrity",
	domain.ErrExternalDependency:     "external",
	domain.ErrInternal:               "internal",
}

func observe(op string, err error, took time.Duration) {
	operationDuration.WithLabelValues(op).Observe(took.Seconds())
	result := "ok"
	if err != nil {
		result = resultLabels[domain.KindOf(err)]
	}
	operationsTotal.WithLabelValues(op, result).Inc()
}

// countMoved must only be called after the entry committed.
func countMoved(t domain.Transaction) {
	f, _ := t.Amount.Float64()
	movedAmount.WithLabelValues(string(t.Type)).Add(f)
}
