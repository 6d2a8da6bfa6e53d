package payment

import (
	"log/slog"

	"github.com/yourorg/checkout-gateway/internal/gateway"
	"github.com/yourorg/checkout-gateway/internal/gateway/quaestur"
	"github.com/yourorg/checkout-gateway/internal/gateway/stripecheckout"
	"github.com/yourorg/checkout-gateway/internal/settings"
)

// Order attribute keys holding the pending remote transaction.
const (
	AttributeQuaesturTransactionID   = "QuaesturTransactionId"
	AttributeStripeCheckoutSessionID = "StripeCheckoutSessionId"
)

// QuaesturDefinition describes the Quaestur method. Clients are built from
// the current settings on every call and share one circuit breaker.
func QuaesturDefinition(logger *slog.Logger, opts ...quaestur.Option) Definition {
	breaker := gateway.NewBreaker(quaestur.Name, logger)
	return Definition{
		SystemName:   "Payments.Quaestur",
		GatewayName:  quaestur.Name,
		RouteName:    quaestur.RouteName,
		FriendlyName: "Quaestur",
		Description:  "You will be redirected to Quaestur site to complete the payment",
		AttributeKey: AttributeQuaesturTransactionID,
		Notes: NoteTemplates{
			Paid:         "Quaestur transaction %s for order %d commited.",
			Failed:       "Failed to commit Quaestur transaction %s for order %d. %s",
			Canceled:     "Customer canceled Quaestur transaction %s for order %d",
			CreateFailed: "Failed to create Quaestur transaction for order %d. %s",
		},
		Enabled: func(s settings.Settings) bool { return s.Quaestur.Enabled },
		NewGateway: func(s settings.Settings) gateway.Gateway {
			o := make([]quaestur.Option, 0, len(opts)+1)
			o = append(o, quaestur.WithBreaker(breaker))
			return quaestur.NewClient(s.QuaesturConfig(), append(o, opts...)...)
		},
	}
}

// StripeCheckoutDefinition describes the Stripe Checkout method.
func StripeCheckoutDefinition(logger *slog.Logger, opts ...stripecheckout.Option) Definition {
	breaker := gateway.NewBreaker(stripecheckout.Name, logger)
	return Definition{
		SystemName:   "Payments.StripeCheckout",
		GatewayName:  stripecheckout.Name,
		RouteName:    stripecheckout.RouteName,
		FriendlyName: "StripeCheckout",
		Description:  "You will be redirected to Stripe.com site to complete the payment",
		AttributeKey: AttributeStripeCheckoutSessionID,
		Notes: NoteTemplates{
			Paid:         "StripeCheckout session %s for order %d is payed.",
			Failed:       "StripeCheckout session %s for order %d failed. %s",
			Canceled:     "Customer canceled StripeCheckout session %s for order %d",
			CreateFailed: "Failed to create StripeCheckout session for order %d. %s",
		},
		Enabled: func(s settings.Settings) bool { return s.StripeCheckout.Enabled },
		NewGateway: func(s settings.Settings) gateway.Gateway {
			o := make([]stripecheckout.Option, 0, len(opts)+1)
			o = append(o, stripecheckout.WithBreaker(breaker))
			return stripecheckout.NewClient(s.StripeCheckoutConfig(), append(o, opts...)...)
		},
	}
}

// NewQuaesturProcessor creates the Quaestur payment method.
func NewQuaesturProcessor(deps Deps, opts ...quaestur.Option) *Processor {
	return NewProcessor(QuaesturDefinition(deps.Logger, opts...), deps)
}

// NewStripeCheckoutProcessor creates the Stripe Checkout payment method.
func NewStripeCheckoutProcessor(deps Deps, opts ...stripecheckout.Option) *Processor {
	return NewProcessor(StripeCheckoutDefinition(deps.Logger, opts...), deps)
}
