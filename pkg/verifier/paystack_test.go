package verifier_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/verifier"
)

func newPaystackServer(t *testing.T, handler http.HandlerFunc) *verifier.PaystackVerifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	v, err := verifier.NewPaystackVerifier(verifier.PaystackConfig{
		SecretKey: "sk_test_secret",
		BaseURL:   srv.URL,
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)
	return v
}

func TestPaystackVerify(t *testing.T) {
	t.Parallel()

	t.Run("successful transaction", func(t *testing.T) {
		t.Parallel()

		v := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/transaction/verify/rfx-1", r.URL.Path)
			assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"status": true,
				"message": "Verification successful",
				"data": {
					"status": "success",
					"amount": 4900,
					"currency": "NGN",
					"customer": {"customer_code": "CUS_abc123", "email": "user@example.com"}
				}
			}`))
		})

		res, err := v.Verify(context.Background(), "rfx-1")
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, int64(4900), res.Amount)
		assert.Equal(t, "NGN", res.Currency)
		assert.Equal(t, "CUS_abc123", res.CustomerRef)
	})

	t.Run("failed transaction is invalid not error", func(t *testing.T) {
		t.Parallel()

		v := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{
				"status": true,
				"data": {"status": "failed", "amount": 4900, "currency": "NGN"}
			}`))
		})

		res, err := v.Verify(context.Background(), "rfx-2")
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Contains(t, res.Message, "failed")
	})

	t.Run("unknown reference", func(t *testing.T) {
		t.Parallel()

		v := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status": false, "message": "Transaction reference not found"}`))
		})

		res, err := v.Verify(context.Background(), "bogus")
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, "Transaction reference not found", res.Message)
	})

	t.Run("gateway unreachable", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close() // connection refused from here on

		v, err := verifier.NewPaystackVerifier(verifier.PaystackConfig{
			SecretKey: "sk_test_secret",
			BaseURL:   srv.URL,
		})
		require.NoError(t, err)

		_, err = v.Verify(context.Background(), "rfx-3")
		assert.ErrorIs(t, err, verifier.ErrVerificationUnavailable)
	})

	t.Run("empty reference", func(t *testing.T) {
		t.Parallel()

		v := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {})
		_, err := v.Verify(context.Background(), "")
		assert.ErrorIs(t, err, verifier.ErrInvalidReference)
	})

	t.Run("missing secret key", func(t *testing.T) {
		t.Parallel()

		_, err := verifier.NewPaystackVerifier(verifier.PaystackConfig{})
		assert.ErrorIs(t, err, verifier.ErrMissingAPIKey)
	})
}
