// Package gateway defines the contract between the redirect payment
// processors and the remote payment APIs they drive, together with the error
// taxonomy every remote client reports through.
// Concrete clients live in the quaestur and stripecheckout sub-packages.
package gateway

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestTimeout bounds every outbound call to a remote payment API.
const RequestTimeout = 20 * time.Second

// UserAgent is sent with every outbound request.
const UserAgent = "checkout-gateway/1.0"

// CreateRequest carries what a remote API needs to open a transaction for an order.
type CreateRequest struct {
	OrderGUID     uuid.UUID       // correlation id, echoed back in the return URLs
	Amount        decimal.Decimal // order total, must be positive
	Currency      string          // ISO code, only used by APIs that want one
	Reason        string          // human readable, e.g. "Order No 1007"
	DetailsURL    string          // where the customer can see the order afterwards
	ReturnBaseURL string          // store location the return callbacks hang off
}

// Transaction is the opaque reference a remote API hands back on creation.
type Transaction struct {
	ID          string
	RedirectURL string // remote payment page for the customer
}

// Gateway is implemented by each remote payment API client.
type Gateway interface {
	// Name returns a short identifier, e.g. "quaestur".
	Name() string

	// CreateTransaction opens a remote transaction. Failures are reported as
	// *TransportError or *APIError.
	CreateTransaction(ctx context.Context, req CreateRequest) (Transaction, error)

	// Finalize confirms a previously created transaction: commit for
	// commit-style APIs, a single status poll for poll-style APIs.
	// A nil error means the remote side confirms payment; ErrNotPaid means the
	// remote side answered but payment is not confirmed.
	Finalize(ctx context.Context, transactionID string) error
}

// ReturnURLs builds the pay-return and cancel-return URLs for a processor by
// appending the correlation id to fixed paths under the store location.
// routeName is the processor's route segment, e.g. "PaymentQuaestur".
func ReturnURLs(storeLocation, routeName string, orderGUID uuid.UUID) (payReturnURL, cancelReturnURL string) {
	base := strings.TrimRight(storeLocation, "/") + "/Plugins/" + routeName + "/"
	query := "?orderid=" + url.QueryEscape(orderGUID.String())
	return base + "Payed" + query, base + "Canceled" + query
}
