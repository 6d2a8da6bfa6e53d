package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/yourorg/checkout-gateway/internal/gateway"
)

// Gateway is a gateway.Gateway for tests. It records every call and
// delegates to CreateFunc/FinalizeFunc when set.
type Gateway struct {
	GatewayName  string
	CreateFunc   func(ctx context.Context, req gateway.CreateRequest) (gateway.Transaction, error)
	FinalizeFunc func(ctx context.Context, transactionID string) error

	mu        sync.Mutex
	creates   []gateway.CreateRequest
	finalizes []string
}

// NewGateway creates a Gateway that succeeds by default.
func NewGateway(name string) *Gateway {
	return &Gateway{GatewayName: name}
}

// Name implements gateway.Gateway.
func (m *Gateway) Name() string {
	return m.GatewayName
}

// CreateTransaction calls CreateFunc if defined, otherwise returns a random
// id and a redirect under https://pay.example/.
func (m *Gateway) CreateTransaction(ctx context.Context, req gateway.CreateRequest) (gateway.Transaction, error) {
	m.mu.Lock()
	m.creates = append(m.creates, req)
	m.mu.Unlock()

	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, req)
	}
	id := uuid.NewString()
	return gateway.Transaction{ID: id, RedirectURL: "https://pay.example/" + id}, nil
}

// Finalize calls FinalizeFunc if defined, otherwise confirms payment.
func (m *Gateway) Finalize(ctx context.Context, transactionID string) error {
	m.mu.Lock()
	m.finalizes = append(m.finalizes, transactionID)
	m.mu.Unlock()

	if m.FinalizeFunc != nil {
		return m.FinalizeFunc(ctx, transactionID)
	}
	return nil
}

// CreateCalls returns the requests passed to CreateTransaction so far.
func (m *Gateway) CreateCalls() []gateway.CreateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]gateway.CreateRequest(nil), m.creates...)
}

// FinalizeCalls returns the transaction ids passed to Finalize so far.
func (m *Gateway) FinalizeCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.finalizes...)
}
