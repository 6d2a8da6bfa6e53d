package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/checkout-gateway/internal/order"
)

func TestStore_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	o := s.Insert(order.Order{CustomOrderNumber: "1007", OrderTotal: decimal.RequireFromString("49.99")})
	assert.Equal(t, int64(1), o.ID)
	assert.NotEqual(t, uuid.Nil, o.OrderGUID)
	assert.Equal(t, order.PaymentStatusPending, o.PaymentStatus)
	assert.False(t, o.CreatedOnUTC.IsZero())

	got, err := s.GetByGUID(ctx, o.OrderGUID)
	require.NoError(t, err)
	assert.Equal(t, o, *got)

	got.CustomOrderNumber = "mutated"
	again, _ := s.GetByGUID(ctx, o.OrderGUID)
	assert.Equal(t, "1007", again.CustomOrderNumber, "reads return copies")

	_, err = s.GetByGUID(ctx, uuid.New())
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestStore_UpdateKeepsPaymentStatus(t *testing.T) {
	ctx := context.Background()
	s := New()
	o := s.Insert(order.Order{})

	o.AuthorizationTransactionID = "Q-1"
	o.PaymentStatus = order.PaymentStatusPaid
	require.NoError(t, s.Update(ctx, &o))

	got, _ := s.GetByID(ctx, o.ID)
	assert.Equal(t, "Q-1", got.AuthorizationTransactionID)
	assert.Equal(t, order.PaymentStatusPending, got.PaymentStatus)

	missing := order.Order{ID: 99}
	assert.ErrorIs(t, s.Update(ctx, &missing), order.ErrNotFound)
}

func TestStore_MarkAsPaidOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	o := s.Insert(order.Order{})

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := o
			results <- s.MarkAsPaid(ctx, &cp)
		}()
	}
	wg.Wait()
	close(results)

	var ok, already int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		if assert.ErrorIs(t, err, order.ErrAlreadyPaid) {
			already++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, already)
}

func TestStore_NotesAndAttributes(t *testing.T) {
	ctx := context.Background()
	s := New()
	o := s.Insert(order.Order{})

	require.NoError(t, s.InsertNote(ctx, order.Note{OrderID: o.ID, Note: "first"}))
	require.NoError(t, s.InsertNote(ctx, order.Note{OrderID: o.ID, Note: "second"}))
	notes := s.Notes(o.ID)
	require.Len(t, notes, 2)
	assert.Equal(t, "first", notes[0].Note)
	assert.False(t, notes[1].CreatedOnUTC.IsZero())
	assert.ErrorIs(t, s.InsertNote(ctx, order.Note{OrderID: 404}), order.ErrNotFound)

	v, err := s.GetAttribute(ctx, o.ID, "QuaesturTransactionId")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SaveAttribute(ctx, o.ID, "QuaesturTransactionId", "Q-1"))
	v, _ = s.GetAttribute(ctx, o.ID, "QuaesturTransactionId")
	assert.Equal(t, "Q-1", v)
	assert.True(t, s.HasAttribute(o.ID, "QuaesturTransactionId"))

	require.NoError(t, s.SaveAttribute(ctx, o.ID, "QuaesturTransactionId", ""))
	assert.False(t, s.HasAttribute(o.ID, "QuaesturTransactionId"))
}
