package payment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Callback labels.
const (
	CallbackPayed    = "payed"
	CallbackCanceled = "canceled"
)

var (
	initiationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_initiations_total",
			Help: "Remote transactions opened for orders, by outcome.",
		},
		[]string{"gateway", "outcome"},
	)
	callbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Return callbacks reconciled, by callback and outcome.",
		},
		[]string{"gateway", "callback", "outcome"},
	)
)

// GetInitiationsTotal exposes the initiation counter for tests.
func GetInitiationsTotal() *prometheus.CounterVec {
	return initiationsTotal
}

// GetCallbacksTotal exposes the callback counter for tests.
func GetCallbacksTotal() *prometheus.CounterVec {
	return callbacksTotal
}
