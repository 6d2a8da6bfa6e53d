package circuitbreaker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/checkout-gateway/internal/gateway/circuitbreaker"
)

var (
	errTransport = errors.New("connection refused")
	errBusiness  = errors.New("remote said no")
)

func fail(err error) func() error { return func() error { return err } }

func succeed() error { return nil }

func TestNew_Defaults(t *testing.T) {
	cb := circuitbreaker.New("quaestur", circuitbreaker.Config{})
	require.NotNil(t, cb)
	assert.Equal(t, "quaestur", cb.Name())
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())

	for i := 0; i < 4; i++ {
		assert.ErrorIs(t, cb.Execute(fail(errTransport)), errTransport)
	}
	assert.Equal(t, circuitbreaker.StateClosed, cb.State(), "should still be closed after 4 failures")

	assert.ErrorIs(t, cb.Execute(fail(errTransport)), errTransport)
	assert.Equal(t, circuitbreaker.StateOpen, cb.State(), "should open after 5 consecutive failures")
}

func TestBreaker_StateTransitions(t *testing.T) {
	cfg := circuitbreaker.Config{
		FailureThreshold: 2,
		ResetTimeout:     50 * time.Millisecond,
	}

	t.Run("Closed_To_Open", func(t *testing.T) {
		cb := circuitbreaker.New("test", cfg)
		_ = cb.Execute(fail(errTransport))
		assert.Equal(t, circuitbreaker.StateClosed, cb.State())
		_ = cb.Execute(fail(errTransport))
		assert.Equal(t, circuitbreaker.StateOpen, cb.State())

		called := false
		err := cb.Execute(func() error { called = true; return nil })
		require.Error(t, err)
		assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
		assert.False(t, called, "open breaker must not invoke the call")
	})

	t.Run("Open_To_HalfOpen_To_Closed", func(t *testing.T) {
		cb := circuitbreaker.New("test", cfg)
		_ = cb.Execute(fail(errTransport))
		_ = cb.Execute(fail(errTransport))
		require.Equal(t, circuitbreaker.StateOpen, cb.State())

		time.Sleep(cfg.ResetTimeout + 10*time.Millisecond)
		assert.Equal(t, circuitbreaker.StateHalfOpen, cb.State())

		require.NoError(t, cb.Execute(succeed))
		assert.Equal(t, circuitbreaker.StateClosed, cb.State())
	})

	t.Run("HalfOpen_To_Open_OnFailure", func(t *testing.T) {
		cb := circuitbreaker.New("test", cfg)
		_ = cb.Execute(fail(errTransport))
		_ = cb.Execute(fail(errTransport))
		time.Sleep(cfg.ResetTimeout + 10*time.Millisecond)
		require.Equal(t, circuitbreaker.StateHalfOpen, cb.State())

		_ = cb.Execute(fail(errTransport))
		assert.Equal(t, circuitbreaker.StateOpen, cb.State())
	})
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb := circuitbreaker.New("test", circuitbreaker.Config{FailureThreshold: 3})

	_ = cb.Execute(fail(errTransport))
	_ = cb.Execute(fail(errTransport))
	require.NoError(t, cb.Execute(succeed))
	_ = cb.Execute(fail(errTransport))
	_ = cb.Execute(fail(errTransport))
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
}

func TestBreaker_IsFailureFilter(t *testing.T) {
	cb := circuitbreaker.New("test", circuitbreaker.Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return errors.Is(err, errTransport) },
	})

	for i := 0; i < 5; i++ {
		err := cb.Execute(fail(errBusiness))
		assert.ErrorIs(t, err, errBusiness, "business errors are passed through unchanged")
	}
	assert.Equal(t, circuitbreaker.StateClosed, cb.State(), "business errors must not trip the breaker")

	_ = cb.Execute(fail(errTransport))
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())
}
