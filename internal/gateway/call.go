package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/checkout-gateway/internal/gateway/circuitbreaker"
)

const tracerName = "github.com/yourorg/checkout-gateway/internal/gateway"

// NewBreaker returns a breaker for a remote API that only counts transport
// failures. API errors and unpaid sessions are complete round trips.
func NewBreaker(name string, logger *slog.Logger) *circuitbreaker.Breaker {
	return circuitbreaker.New(name, circuitbreaker.Config{
		IsFailure: IsTransport,
		Logger:    logger,
	})
}

// Call runs one remote operation inside a client span, through the breaker
// when one is given, and records its duration. A rejected call comes back as
// a *TransportError without fn being invoked.
func Call(ctx context.Context, gatewayName, op string, breaker *circuitbreaker.Breaker, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, gatewayName+"."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("payment.gateway", gatewayName),
			attribute.String("payment.operation", op),
		))
	defer span.End()

	start := time.Now()
	var err error
	if breaker != nil {
		err = breaker.Execute(func() error { return fn(ctx) })
		if errors.Is(err, circuitbreaker.ErrOpen) {
			err = &TransportError{Gateway: gatewayName, Op: op, Err: err}
		}
	} else {
		err = fn(ctx)
	}
	ObserveRemoteCall(gatewayName, op, start, err)

	span.SetAttributes(attribute.String("payment.outcome", Outcome(err)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// InjectTraceHeaders writes the active trace context into outbound headers.
func InjectTraceHeaders(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}
