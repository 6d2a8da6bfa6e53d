package gateway

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for remote calls.
const (
	OutcomeSuccess   = "success"
	OutcomeAPIError  = "api_error"
	OutcomeTransport = "transport_error"
	OutcomeNotPaid   = "not_paid"
)

var remoteRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "gateway_remote_request_duration_seconds",
		Help:    "Duration of calls to remote payment APIs.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"gateway", "operation", "outcome"},
)

// GetRemoteRequestDuration exposes the histogram for tests.
func GetRemoteRequestDuration() *prometheus.HistogramVec {
	return remoteRequestDuration
}

// ObserveRemoteCall records one remote call against the duration histogram,
// classifying err into an outcome label.
func ObserveRemoteCall(gateway, operation string, start time.Time, err error) {
	remoteRequestDuration.
		WithLabelValues(gateway, operation, Outcome(err)).
		Observe(time.Since(start).Seconds())
}

// Outcome maps an error returned by a Gateway into a metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrNotPaid):
		return OutcomeNotPaid
	case IsAPI(err):
		return OutcomeAPIError
	default:
		return OutcomeTransport
	}
}
