package quaestur_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/checkout-gateway/internal/gateway"
	"github.com/yourorg/checkout-gateway/internal/gateway/quaestur"
)

var orderGUID = uuid.MustParse("0b6f3c2e-8a57-4f0e-9f7a-1c2d3e4f5a6b")

func newClient(t *testing.T, srv *httptest.Server, opts ...quaestur.Option) *quaestur.Client {
	t.Helper()
	return quaestur.NewClient(quaestur.Config{
		APIURL:       srv.URL + "/",
		ClientID:     "client-1",
		ClientSecret: "s3cret",
	}, opts...)
}

func TestPrepareTransaction_Success(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/payment/prepare", r.URL.Path)
		assert.Equal(t, "QAPI2 client-1 s3cret", r.Header.Get("Authorization"))
		assert.Equal(t, gateway.UserAgent, r.Header.Get("User-Agent"))
		assert.Contains(t, r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")

		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(raw, &gotBody))
		// the amount must be a bare JSON number
		assert.Contains(t, string(raw), `"amount":49.99`)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","id":"Q-42"}`))
	}))
	defer srv.Close()

	c := newClient(t, srv)
	id, err := c.PrepareTransaction(context.Background(), orderGUID, decimal.RequireFromString("49.99"),
		"Order No 1007", "https://shop.example/orderdetails/1007", "https://shop.example/")
	require.NoError(t, err)
	assert.Equal(t, "Q-42", id)

	assert.Equal(t, "Order No 1007", gotBody["reason"])
	assert.Equal(t, "https://shop.example/orderdetails/1007", gotBody["url"])
	assert.Equal(t, "https://shop.example/Plugins/PaymentQuaestur/Payed?orderid="+orderGUID.String(), gotBody["payreturnurl"])
	assert.Equal(t, "https://shop.example/Plugins/PaymentQuaestur/Canceled?orderid="+orderGUID.String(), gotBody["cancelreturnurl"])
}

func TestPrepareTransaction_NumericID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","id":981}`))
	}))
	defer srv.Close()

	id, err := newClient(t, srv).PrepareTransaction(context.Background(), orderGUID, decimal.NewFromInt(10), "Order No 1", "", "https://shop.example/")
	require.NoError(t, err)
	assert.Equal(t, "981", id)
}

func TestPrepareTransaction_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failure","error":"amount too small"}`))
	}))
	defer srv.Close()

	_, err := newClient(t, srv).PrepareTransaction(context.Background(), orderGUID, decimal.NewFromInt(1), "Order No 1", "", "https://shop.example/")
	require.Error(t, err)
	assert.True(t, gateway.IsAPI(err))
	assert.Equal(t, "Quaestur API error: amount too small", err.Error())
}

func TestPrepareTransaction_TransportErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name: "ServerError",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "Unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "UndecodableBody",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>maintenance</html>`))
			},
			wantStatus: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newClient(t, srv).PrepareTransaction(context.Background(), orderGUID, decimal.NewFromInt(5), "r", "", "https://shop.example/")
			require.Error(t, err)
			var te *gateway.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.wantStatus, te.StatusCode)
			assert.Equal(t, "prepare", te.Op)
		})
	}
}

func TestPrepareTransaction_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"status":"success","id":"late"}`))
	}))
	defer srv.Close()

	c := newClient(t, srv, quaestur.WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	_, err := c.PrepareTransaction(context.Background(), orderGUID, decimal.NewFromInt(5), "r", "", "https://shop.example/")
	require.Error(t, err)
	assert.True(t, gateway.IsTransport(err))
}

func TestPrepareTransaction_NotConfigured(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	c := quaestur.NewClient(quaestur.Config{APIURL: srv.URL})
	_, err := c.PrepareTransaction(context.Background(), orderGUID, decimal.NewFromInt(5), "r", "", "https://shop.example/")
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrNotConfigured)
	assert.Contains(t, err.Error(), "apiClientId, apiClientSecret")
	assert.False(t, called, "no request may be sent without credentials")
}

func TestPrepareTransaction_RejectsNonPositiveAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	}))
	defer srv.Close()

	_, err := newClient(t, srv).PrepareTransaction(context.Background(), orderGUID, decimal.Zero, "r", "", "https://shop.example/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount must be positive")
}

func TestCommitTransaction(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var got map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v2/payment/commit", r.URL.Path)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"status":"success"}`))
		}))
		defer srv.Close()

		require.NoError(t, newClient(t, srv).CommitTransaction(context.Background(), "Q-42"))
		assert.Equal(t, map[string]string{"id": "Q-42"}, got)
	})

	t.Run("APIError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"error","error":"unknown transaction"}`))
		}))
		defer srv.Close()

		err := newClient(t, srv).Finalize(context.Background(), "Q-404")
		require.Error(t, err)
		assert.True(t, gateway.IsAPI(err))
		assert.Equal(t, "Quaestur API error: unknown transaction", err.Error())
	})
}

func TestCreateTransaction_RedirectsToPaymentPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","id":"Q-7"}`))
	}))
	defer srv.Close()

	c := newClient(t, srv)
	var gw gateway.Gateway = c
	txn, err := gw.CreateTransaction(context.Background(), gateway.CreateRequest{
		OrderGUID:     orderGUID,
		Amount:        decimal.RequireFromString("12.50"),
		Reason:        "Order No 12",
		ReturnBaseURL: "https://shop.example/",
	})
	require.NoError(t, err)
	assert.Equal(t, "Q-7", txn.ID)
	assert.Equal(t, srv.URL+"/payments/show/Q-7", txn.RedirectURL)
	assert.Equal(t, quaestur.Name, gw.Name())
}

func TestPaymentPageURL_EscapesID(t *testing.T) {
	c := quaestur.NewClient(quaestur.Config{APIURL: "https://q.example/", ClientID: "id", ClientSecret: "secret"})
	assert.Equal(t, "https://q.example/payments/show/7781", c.PaymentPageURL("7781"))
	assert.Equal(t, "https://q.example/payments/show/a%2Fb%3Fc", c.PaymentPageURL("a/b?c"))
}
