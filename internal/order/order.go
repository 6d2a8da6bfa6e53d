// Package order defines the host-owned order entity and the collaborator
// interfaces the payment plugins need from the host: order lookup and update,
// order notes, the mark-as-paid transition and order-scoped attributes.
// The plugins never create or delete orders.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a correlation id does not resolve to an order.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyPaid is returned by MarkAsPaid when the order was already paid.
	ErrAlreadyPaid = errors.New("order already paid")
)

// PaymentStatus mirrors the host's payment status of an order.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// Order is the subset of the host order the plugins read and write.
type Order struct {
	ID                         int64
	OrderGUID                  uuid.UUID // correlation id carried through the remote round trip
	CustomOrderNumber          string
	OrderTotal                 decimal.Decimal
	CreatedOnUTC               time.Time
	PaymentStatus              PaymentStatus
	PaymentMethodSystemName    string
	AuthorizationTransactionID string
}

// IsPaid reports whether the order already went through MarkAsPaid.
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

// Note is a timestamped free-text annotation on an order.
type Note struct {
	OrderID           int64
	Note              string
	DisplayToCustomer bool
	CreatedOnUTC      time.Time
}

// Store is the host's order service.
type Store interface {
	// GetByGUID returns ErrNotFound when no order carries the correlation id.
	GetByGUID(ctx context.Context, guid uuid.UUID) (*Order, error)
	Update(ctx context.Context, o *Order) error
	InsertNote(ctx context.Context, n Note) error
}

// Processing is the host's order-processing service.
type Processing interface {
	// MarkAsPaid transitions the order to paid. Implementations must be safe
	// under concurrent calls for one order and return ErrAlreadyPaid when
	// the order was paid before the call.
	MarkAsPaid(ctx context.Context, o *Order) error
}

// Attributes stores string values keyed by name on an order. Saving an empty
// value removes the attribute.
type Attributes interface {
	GetAttribute(ctx context.Context, orderID int64, key string) (string, error)
	SaveAttribute(ctx context.Context, orderID int64, key, value string) error
}

// ParseCorrelationID parses the orderid query value of a return callback.
// Only GUID-formatted strings are accepted.
func ParseCorrelationID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("order: empty correlation id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("order: malformed correlation id %q: %w", raw, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("order: nil correlation id")
	}
	return id, nil
}
