// Package payment implements the redirect payment methods: opening a remote
// transaction for an order, sending the customer off-site and reconciling the
// order when the customer comes back through a return callback.
package payment

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/yourorg/checkout-gateway/internal/order"
)

// PaymentMethodType tells the checkout how a method collects payment.
type PaymentMethodType int

const (
	PaymentMethodTypeStandard PaymentMethodType = iota
	PaymentMethodTypeRedirection
	PaymentMethodTypeButton
)

func (t PaymentMethodType) String() string {
	switch t {
	case PaymentMethodTypeRedirection:
		return "redirection"
	case PaymentMethodTypeButton:
		return "button"
	default:
		return "standard"
	}
}

// RecurringPaymentType tells the checkout whether recurring orders are possible.
type RecurringPaymentType int

const (
	RecurringPaymentTypeNotSupported RecurringPaymentType = iota
	RecurringPaymentTypeManual
	RecurringPaymentTypeAutomatic
)

// Capabilities describes what a payment method supports beyond taking a payment.
type Capabilities struct {
	SupportCapture         bool
	SupportPartiallyRefund bool
	SupportRefund          bool
	SupportVoid            bool
	SkipPaymentInfo        bool
	RecurringPaymentType   RecurringPaymentType
	PaymentMethodType      PaymentMethodType
}

// Result is the outcome of a synchronous payment operation.
type Result struct {
	Errors       []string
	NotSupported bool
}

// Success reports whether the operation produced no errors.
func (r Result) Success() bool { return len(r.Errors) == 0 }

// Unsupported reports whether the method does not implement the operation.
func (r Result) Unsupported() bool { return r.NotSupported }

func unsupported(msg string) Result {
	return Result{Errors: []string{msg}, NotSupported: true}
}

// PostProcessResult is the outcome of opening a remote transaction.
// Exactly one of RedirectURL and Failure is set.
type PostProcessResult struct {
	RedirectURL   string
	TransactionID string
	Failure       string // the order note recorded for a failed attempt
}

// Redirect reports whether the customer should be sent to RedirectURL.
func (r PostProcessResult) Redirect() bool { return r.RedirectURL != "" }

// CallbackOutcome is what a return callback did to an order.
type CallbackOutcome string

const (
	OutcomePaid        CallbackOutcome = "paid"
	OutcomeFailed      CallbackOutcome = "failed"
	OutcomeCanceled    CallbackOutcome = "canceled"
	OutcomeAlreadyPaid CallbackOutcome = "already_paid"
	OutcomeInProgress  CallbackOutcome = "in_progress" // another callback holds the order
)

// CallbackResult is the outcome of a return callback.
type CallbackResult struct {
	Outcome       CallbackOutcome
	OrderID       int64
	TransactionID string
	Note          string // empty when no note was written
}

// Method is a redirect payment method as the checkout and the return
// callbacks see it.
type Method interface {
	SystemName() string
	RouteName() string
	FriendlyName() string
	Description() string
	Capabilities() Capabilities

	// Enabled reports whether the current settings activate the method.
	Enabled(ctx context.Context) bool
	// LookupOrder resolves the orderid of a return callback. Malformed and
	// unknown ids both report order.ErrNotFound.
	LookupOrder(ctx context.Context, rawCorrelationID string) (*order.Order, error)

	ProcessPayment(ctx context.Context, o *order.Order) Result
	PostProcessPayment(ctx context.Context, o *order.Order) (PostProcessResult, error)
	CanRePostProcessPayment(ctx context.Context, o *order.Order) (bool, error)
	CompletePayment(ctx context.Context, o *order.Order) (CallbackResult, error)
	CancelPayment(ctx context.Context, o *order.Order) (CallbackResult, error)

	Capture(ctx context.Context, o *order.Order) Result
	Refund(ctx context.Context, o *order.Order, amount decimal.Decimal) Result
	Void(ctx context.Context, o *order.Order) Result
	ProcessRecurringPayment(ctx context.Context, o *order.Order) Result
	CancelRecurringPayment(ctx context.Context, o *order.Order) Result

	HidePaymentMethod(ctx context.Context) bool
	AdditionalHandlingFee(ctx context.Context) decimal.Decimal
}
