package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/checkout-gateway/internal/gateway"
	"github.com/yourorg/checkout-gateway/internal/idempotency"
	"github.com/yourorg/checkout-gateway/internal/order"
	"github.com/yourorg/checkout-gateway/internal/policy"
	"github.com/yourorg/checkout-gateway/internal/reporting"
	"github.com/yourorg/checkout-gateway/internal/settings"
)

const tracerName = "github.com/yourorg/checkout-gateway/internal/payment"

// ErrNoPendingTransaction is recorded when a paid callback arrives for an
// order without a pending remote transaction, e.g. a replayed callback.
var ErrNoPendingTransaction = errors.New("no pending transaction")

// NoteTemplates are the fmt formats of the order notes a method writes.
// Paid and Canceled take (transaction id, order id); Failed takes
// (transaction id, order id, message); CreateFailed takes (order id, message).
type NoteTemplates struct {
	Paid         string
	Failed       string
	Canceled     string
	CreateFailed string
}

// Definition is everything that differs between two redirect methods.
type Definition struct {
	SystemName   string // e.g. "Payments.Quaestur"
	GatewayName  string // metric and journal label, e.g. "quaestur"
	RouteName    string // callback route segment, e.g. "PaymentQuaestur"
	FriendlyName string
	Description  string
	AttributeKey string // order attribute holding the pending transaction id
	Notes        NoteTemplates

	Enabled    func(s settings.Settings) bool
	NewGateway func(s settings.Settings) gateway.Gateway
}

// Deps are the host collaborators a Processor works against.
type Deps struct {
	Settings   settings.Source
	Orders     order.Store
	Processing order.Processing
	Attributes order.Attributes
	Locker     idempotency.Locker  // defaults to an in-memory locker
	Policy     *policy.RetryPolicy // defaults to policy.DefaultRules
	Journal    *reporting.Journal  // optional
	Logger     *slog.Logger        // defaults to slog.Default()
	Now        func() time.Time    // defaults to time.Now
}

// Processor implements Method for one remote payment API.
type Processor struct {
	def        Definition
	settings   settings.Source
	orders     order.Store
	processing order.Processing
	attributes order.Attributes
	locker     idempotency.Locker
	policy     *policy.RetryPolicy
	journal    *reporting.Journal
	log        *slog.Logger
	now        func() time.Time
}

// NewProcessor creates a Processor. It panics if a mandatory collaborator is
// missing.
func NewProcessor(def Definition, deps Deps) *Processor {
	if def.NewGateway == nil {
		panic("payment: gateway factory cannot be nil")
	}
	if deps.Settings == nil || deps.Orders == nil || deps.Processing == nil || deps.Attributes == nil {
		panic("payment: settings, orders, processing and attributes are required")
	}
	p := &Processor{
		def:        def,
		settings:   deps.Settings,
		orders:     deps.Orders,
		processing: deps.Processing,
		attributes: deps.Attributes,
		locker:     deps.Locker,
		policy:     deps.Policy,
		journal:    deps.Journal,
		log:        deps.Logger,
		now:        deps.Now,
	}
	if p.locker == nil {
		p.locker = idempotency.NewMemoryLocker()
	}
	if p.policy == nil {
		p.policy = policy.MustDefault()
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.def.Enabled == nil {
		p.def.Enabled = func(settings.Settings) bool { return true }
	}
	p.log = p.log.With("gateway", def.GatewayName)
	return p
}

func (p *Processor) SystemName() string   { return p.def.SystemName }
func (p *Processor) RouteName() string    { return p.def.RouteName }
func (p *Processor) FriendlyName() string { return p.def.FriendlyName }
func (p *Processor) Description() string  { return p.def.Description }

// Capabilities reports a redirection method that supports nothing after the
// payment itself.
func (p *Processor) Capabilities() Capabilities {
	return Capabilities{
		RecurringPaymentType: RecurringPaymentTypeNotSupported,
		PaymentMethodType:    PaymentMethodTypeRedirection,
	}
}

// Enabled loads the current settings. A settings error disables the method.
func (p *Processor) Enabled(ctx context.Context) bool {
	s, err := p.settings.Load(ctx)
	if err != nil {
		p.log.Error("failed to load settings", "err", err)
		return false
	}
	return p.def.Enabled(s)
}

// LookupOrder implements Method.
func (p *Processor) LookupOrder(ctx context.Context, raw string) (*order.Order, error) {
	guid, err := order.ParseCorrelationID(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", order.ErrNotFound, err)
	}
	return p.orders.GetByGUID(ctx, guid)
}

// ProcessPayment is a no-op: the payment happens after the redirect.
func (p *Processor) ProcessPayment(context.Context, *order.Order) Result {
	return Result{}
}

// PostProcessPayment opens a remote transaction for the order and stores its
// id as the pending transaction attribute. A remote failure is recorded as an
// order note and returned in the Failure field with a nil error; missing
// configuration and persistence failures are returned as errors.
func (p *Processor) PostProcessPayment(ctx context.Context, o *order.Order) (PostProcessResult, error) {
	ctx, span := p.startSpan(ctx, "payment.PostProcessPayment", o)
	defer span.End()

	s, err := p.settings.Load(ctx)
	if err != nil {
		return PostProcessResult{}, p.spanError(span, fmt.Errorf("payment: %s: load settings: %w", p.def.GatewayName, err))
	}
	gw := p.def.NewGateway(s)
	currency := currencyOf(gw)
	storeLocation := s.StoreLocation()

	tx, err := gw.CreateTransaction(ctx, gateway.CreateRequest{
		OrderGUID:     o.OrderGUID,
		Amount:        o.OrderTotal,
		Currency:      currency,
		Reason:        "Order No " + o.CustomOrderNumber,
		DetailsURL:    storeLocation + "orderdetails/" + url.PathEscape(o.CustomOrderNumber),
		ReturnBaseURL: storeLocation,
	})
	if errors.Is(err, gateway.ErrNotConfigured) {
		initiationsTotal.WithLabelValues(p.def.GatewayName, "not_configured").Inc()
		return PostProcessResult{}, p.spanError(span, err)
	}
	if err != nil {
		outcome := outcomeOf(err)
		msg := fmt.Sprintf(p.def.Notes.CreateFailed, o.ID, err.Error())
		p.log.Error(msg, "order_id", o.ID, "order_guid", o.OrderGUID.String(), "outcome", outcome, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		initiationsTotal.WithLabelValues(p.def.GatewayName, outcome).Inc()
		p.record(o, reporting.StatusInitiationFailed, currency, "", outcome, err.Error())
		if err := p.addNote(ctx, o.ID, msg); err != nil {
			return PostProcessResult{}, err
		}
		return PostProcessResult{Failure: msg}, nil
	}

	if err := p.attributes.SaveAttribute(ctx, o.ID, p.def.AttributeKey, tx.ID); err != nil {
		return PostProcessResult{}, p.spanError(span, fmt.Errorf("payment: %s: save pending transaction for order %d: %w", p.def.GatewayName, o.ID, err))
	}
	span.SetAttributes(attribute.String("payment.transaction_id", tx.ID))
	initiationsTotal.WithLabelValues(p.def.GatewayName, gateway.OutcomeSuccess).Inc()
	p.record(o, reporting.StatusInitiated, currency, tx.ID, "", "")
	p.log.Info("remote transaction created", "order_id", o.ID, "transaction_id", tx.ID)

	return PostProcessResult{RedirectURL: tx.RedirectURL, TransactionID: tx.ID}, nil
}

// CanRePostProcessPayment reports whether the customer may open another
// remote transaction for the order.
func (p *Processor) CanRePostProcessPayment(_ context.Context, o *order.Order) (bool, error) {
	if o == nil {
		return false, errors.New("payment: order cannot be nil")
	}
	d, err := p.policy.CanRePost(o, p.def.GatewayName, p.now())
	if err != nil {
		return false, fmt.Errorf("payment: %s: %w", p.def.GatewayName, err)
	}
	if !d.AllowRePost {
		p.log.Debug("re-post denied", "order_id", o.ID, "rule", d.RuleID)
	}
	return d.AllowRePost, nil
}

// CompletePayment reconciles the order after the customer returned from the
// remote payment page. Remote failures end as a Failed outcome with an error
// note; only persistence failures are returned as errors. The pending
// transaction attribute is cleared on every path except InProgress, where
// the callback holding the order clears it.
func (p *Processor) CompletePayment(ctx context.Context, o *order.Order) (CallbackResult, error) {
	ctx, span := p.startSpan(ctx, "payment.CompletePayment", o)
	defer span.End()

	res, err := p.completePayment(ctx, o)
	if err != nil {
		return res, p.spanError(span, err)
	}
	span.SetAttributes(attribute.String("payment.outcome", string(res.Outcome)))
	callbacksTotal.WithLabelValues(p.def.GatewayName, CallbackPayed, string(res.Outcome)).Inc()
	return res, nil
}

func (p *Processor) completePayment(ctx context.Context, o *order.Order) (CallbackResult, error) {
	res := CallbackResult{OrderID: o.ID}
	if o.IsPaid() {
		res.Outcome = OutcomeAlreadyPaid
		return res, p.clearPending(ctx, o.ID)
	}

	lease, err := p.locker.Acquire(ctx, idempotency.PaidKey(o.OrderGUID), idempotency.DefaultTTL)
	if errors.Is(err, idempotency.ErrLocked) {
		p.log.Info("paid callback already in progress", "order_id", o.ID)
		res.Outcome = OutcomeInProgress
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("payment: %s: lock order %d: %w", p.def.GatewayName, o.ID, err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			p.log.Warn("failed to release order lock", "order_id", o.ID, "err", err)
		}
	}()

	// Past this point the remote commit may already have happened, so a
	// dropped browser connection must not abort the reconciliation. The
	// gateway client timeout still bounds the remote call.
	ctx = context.WithoutCancel(ctx)

	// The previous holder may have finished between the caller's read and the lock.
	current, err := p.orders.GetByGUID(ctx, o.OrderGUID)
	if err != nil {
		return res, fmt.Errorf("payment: %s: reload order %d: %w", p.def.GatewayName, o.ID, err)
	}
	if current.IsPaid() {
		res.Outcome = OutcomeAlreadyPaid
		return res, p.clearPending(ctx, o.ID)
	}

	txID, err := p.attributes.GetAttribute(ctx, current.ID, p.def.AttributeKey)
	if err != nil {
		return res, fmt.Errorf("payment: %s: read pending transaction for order %d: %w", p.def.GatewayName, o.ID, err)
	}
	res.TransactionID = txID

	var currency string
	remoteErr := ErrNoPendingTransaction
	if txID != "" {
		s, err := p.settings.Load(ctx)
		if err != nil {
			return res, fmt.Errorf("payment: %s: load settings: %w", p.def.GatewayName, err)
		}
		gw := p.def.NewGateway(s)
		currency = currencyOf(gw)
		remoteErr = gw.Finalize(ctx, txID)
	}

	if remoteErr != nil {
		outcome := outcomeOf(remoteErr)
		res.Outcome = OutcomeFailed
		res.Note = fmt.Sprintf(p.def.Notes.Failed, displayID(txID), current.ID, remoteErr.Error())
		p.log.Error(res.Note, "order_id", current.ID, "order_guid", current.OrderGUID.String(), "transaction_id", txID, "outcome", outcome, "err", remoteErr)
		trace.SpanFromContext(ctx).RecordError(remoteErr)
		if err := p.addNote(ctx, current.ID, res.Note); err != nil {
			return res, err
		}
		if err := p.clearPending(ctx, current.ID); err != nil {
			return res, err
		}
		p.record(current, reporting.StatusFailure, currency, txID, outcome, remoteErr.Error())
		return res, nil
	}

	res.Outcome = OutcomePaid
	res.Note = fmt.Sprintf(p.def.Notes.Paid, txID, current.ID)
	current.AuthorizationTransactionID = txID
	if err := p.orders.Update(ctx, current); err != nil {
		return res, fmt.Errorf("payment: %s: update order %d: %w", p.def.GatewayName, current.ID, err)
	}
	if err := p.processing.MarkAsPaid(ctx, current); err != nil {
		if !errors.Is(err, order.ErrAlreadyPaid) {
			return res, fmt.Errorf("payment: %s: mark order %d as paid: %w", p.def.GatewayName, current.ID, err)
		}
		p.log.Warn("order was paid concurrently", "order_id", current.ID)
	}
	// The success note is only written once the order is paid.
	p.log.Info(res.Note, "order_id", current.ID, "order_guid", current.OrderGUID.String(), "transaction_id", txID)
	if err := p.addNote(ctx, current.ID, res.Note); err != nil {
		return res, err
	}
	if err := p.clearPending(ctx, current.ID); err != nil {
		return res, err
	}
	p.record(current, reporting.StatusSuccess, currency, txID, "", "")
	*o = *current
	return res, nil
}

// CancelPayment records that the customer abandoned the remote payment page.
// No remote call is made.
func (p *Processor) CancelPayment(ctx context.Context, o *order.Order) (CallbackResult, error) {
	ctx, span := p.startSpan(ctx, "payment.CancelPayment", o)
	defer span.End()

	txID, err := p.attributes.GetAttribute(ctx, o.ID, p.def.AttributeKey)
	if err != nil {
		return CallbackResult{}, p.spanError(span, fmt.Errorf("payment: %s: read pending transaction for order %d: %w", p.def.GatewayName, o.ID, err))
	}
	res := CallbackResult{
		Outcome:       OutcomeCanceled,
		OrderID:       o.ID,
		TransactionID: txID,
		Note:          fmt.Sprintf(p.def.Notes.Canceled, displayID(txID), o.ID),
	}
	p.log.Info(res.Note, "order_id", o.ID, "order_guid", o.OrderGUID.String(), "transaction_id", txID)
	if err := p.addNote(ctx, o.ID, res.Note); err != nil {
		return res, p.spanError(span, err)
	}
	if err := p.clearPending(ctx, o.ID); err != nil {
		return res, p.spanError(span, err)
	}
	p.record(o, reporting.StatusCanceled, "", txID, "", "")
	callbacksTotal.WithLabelValues(p.def.GatewayName, CallbackCanceled, string(res.Outcome)).Inc()
	return res, nil
}

func (p *Processor) Capture(context.Context, *order.Order) Result {
	return unsupported("Capture method not supported")
}

func (p *Processor) Refund(context.Context, *order.Order, decimal.Decimal) Result {
	return unsupported("Refund method not supported")
}

func (p *Processor) Void(context.Context, *order.Order) Result {
	return unsupported("Void method not supported")
}

func (p *Processor) ProcessRecurringPayment(context.Context, *order.Order) Result {
	return unsupported("Recurring payment not supported")
}

func (p *Processor) CancelRecurringPayment(context.Context, *order.Order) Result {
	return unsupported("Recurring payment not supported")
}

func (p *Processor) HidePaymentMethod(context.Context) bool { return false }

func (p *Processor) AdditionalHandlingFee(context.Context) decimal.Decimal { return decimal.Zero }

func (p *Processor) addNote(ctx context.Context, orderID int64, text string) error {
	err := p.orders.InsertNote(ctx, order.Note{
		OrderID:      orderID,
		Note:         text,
		CreatedOnUTC: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("payment: %s: add note to order %d: %w", p.def.GatewayName, orderID, err)
	}
	return nil
}

func (p *Processor) clearPending(ctx context.Context, orderID int64) error {
	if err := p.attributes.SaveAttribute(ctx, orderID, p.def.AttributeKey, ""); err != nil {
		return fmt.Errorf("payment: %s: clear pending transaction for order %d: %w", p.def.GatewayName, orderID, err)
	}
	return nil
}

func (p *Processor) record(o *order.Order, status, currency, txID, errorCode, errorMessage string) {
	if p.journal == nil {
		return
	}
	p.journal.Record(reporting.LogEntry{
		Timestamp:     p.now().UTC(),
		OrderID:       o.ID,
		OrderGUID:     o.OrderGUID.String(),
		Status:        status,
		Amount:        o.OrderTotal,
		Currency:      currency,
		Gateway:       p.def.GatewayName,
		TransactionID: txID,
		ErrorCode:     errorCode,
		ErrorMessage:  errorMessage,
	})
}

func (p *Processor) startSpan(ctx context.Context, name string, o *order.Order) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(
		attribute.String("payment.gateway", p.def.GatewayName),
		attribute.Int64("order.id", o.ID),
		attribute.String("order.guid", o.OrderGUID.String()),
	))
}

func (p *Processor) spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// outcomeOf labels a remote failure; errors raised before any remote call
// are labeled "rejected".
func outcomeOf(err error) string {
	if errors.Is(err, gateway.ErrNotPaid) || gateway.IsAPI(err) || gateway.IsTransport(err) {
		return gateway.Outcome(err)
	}
	if errors.Is(err, ErrNoPendingTransaction) {
		return "no_pending_transaction"
	}
	return "rejected"
}

func currencyOf(gw gateway.Gateway) string {
	if c, ok := gw.(interface{ Currency() string }); ok {
		return c.Currency()
	}
	return ""
}

func displayID(txID string) string {
	if txID == "" {
		return "(none)"
	}
	return txID
}

var _ Method = (*Processor)(nil)
