//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/yourorg/checkout-gateway/internal/order"
)

func setup(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("checkout"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, pgC)
	require.NoError(t, err)

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, pgURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(nil, pool)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "migrate is repeatable")
	return s
}

func TestStore(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	o, err := s.Insert(ctx, order.Order{
		CustomOrderNumber: "1007",
		OrderTotal:        decimal.RequireFromString("49.99"),
		CreatedOnUTC:      created,
	})
	require.NoError(t, err)
	require.NotZero(t, o.ID)

	t.Run("GetByGUID", func(t *testing.T) {
		got, err := s.GetByGUID(ctx, o.OrderGUID)
		require.NoError(t, err)
		assert.Equal(t, o.ID, got.ID)
		assert.Equal(t, "1007", got.CustomOrderNumber)
		assert.True(t, decimal.RequireFromString("49.99").Equal(got.OrderTotal))
		assert.True(t, created.Equal(got.CreatedOnUTC))
		assert.Equal(t, order.PaymentStatusPending, got.PaymentStatus)

		_, err = s.GetByGUID(ctx, uuid.New())
		assert.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("Attributes", func(t *testing.T) {
		v, err := s.GetAttribute(ctx, o.ID, "StripeCheckoutSessionId")
		require.NoError(t, err)
		assert.Empty(t, v)

		require.NoError(t, s.SaveAttribute(ctx, o.ID, "StripeCheckoutSessionId", "cs_1"))
		require.NoError(t, s.SaveAttribute(ctx, o.ID, "StripeCheckoutSessionId", "cs_2"))
		v, _ = s.GetAttribute(ctx, o.ID, "StripeCheckoutSessionId")
		assert.Equal(t, "cs_2", v)

		require.NoError(t, s.SaveAttribute(ctx, o.ID, "StripeCheckoutSessionId", ""))
		v, _ = s.GetAttribute(ctx, o.ID, "StripeCheckoutSessionId")
		assert.Empty(t, v)
	})

	t.Run("NotesAndUpdate", func(t *testing.T) {
		require.NoError(t, s.InsertNote(ctx, order.Note{OrderID: o.ID, Note: "one"}))
		require.NoError(t, s.InsertNote(ctx, order.Note{OrderID: o.ID, Note: "two"}))
		notes, err := s.Notes(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, notes, 2)
		assert.Equal(t, "one", notes[0].Note)
		assert.False(t, notes[0].DisplayToCustomer)

		cp := o
		cp.AuthorizationTransactionID = "cs_2"
		require.NoError(t, s.Update(ctx, &cp))
		got, _ := s.GetByGUID(ctx, o.OrderGUID)
		assert.Equal(t, "cs_2", got.AuthorizationTransactionID)

		missing := order.Order{ID: -1}
		assert.ErrorIs(t, s.Update(ctx, &missing), order.ErrNotFound)
	})

	t.Run("MarkAsPaidOnce", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				cp := o
				errs <- s.MarkAsPaid(ctx, &cp)
			}()
		}
		wg.Wait()
		close(errs)

		var ok int
		for err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, order.ErrAlreadyPaid)
		}
		assert.Equal(t, 1, ok)

		got, _ := s.GetByGUID(ctx, o.OrderGUID)
		assert.True(t, got.IsPaid())

		missing := order.Order{ID: -1}
		assert.ErrorIs(t, s.MarkAsPaid(ctx, &missing), order.ErrNotFound)
	})
}
