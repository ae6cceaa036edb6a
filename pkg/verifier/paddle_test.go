package verifier_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/verifier"
)

func newPaddleServer(t *testing.T, handler http.HandlerFunc) *verifier.PaddleVerifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	v, err := verifier.NewPaddleVerifier(verifier.PaddleConfig{
		APIKey:  "pdl_test_key",
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return v
}

func TestPaddleVerify(t *testing.T) {
	t.Parallel()

	t.Run("completed transaction", func(t *testing.T) {
		t.Parallel()

		v := newPaddleServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/transactions/txn_01abc", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"data": {
					"id": "txn_01abc",
					"status": "completed",
					"customer_id": "ctm_01xyz",
					"details": {
						"totals": {
							"grand_total": "53000",
							"currency_code": "NGN"
						}
					}
				}
			}`))
		})

		res, err := v.Verify(context.Background(), "txn_01abc")
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, int64(53000), res.Amount)
		assert.Equal(t, "NGN", res.Currency)
		assert.Equal(t, "ctm_01xyz", res.CustomerRef)
	})

	t.Run("pending transaction is invalid not error", func(t *testing.T) {
		t.Parallel()

		v := newPaddleServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data": {"id": "txn_01abc", "status": "ready"}}`))
		})

		res, err := v.Verify(context.Background(), "txn_01abc")
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Contains(t, res.Message, "ready")
	})

	t.Run("missing totals leaves amount zero", func(t *testing.T) {
		t.Parallel()

		v := newPaddleServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data": {"id": "txn_01abc", "status": "completed"}}`))
		})

		res, err := v.Verify(context.Background(), "txn_01abc")
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Zero(t, res.Amount)
		assert.Empty(t, res.Currency)
	})

	t.Run("api error maps to unavailable", func(t *testing.T) {
		t.Parallel()

		v := newPaddleServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := v.Verify(context.Background(), "txn_01abc")
		require.Error(t, err)
		assert.True(t, errors.Is(err, verifier.ErrVerificationUnavailable))
	})

	t.Run("empty reference rejected", func(t *testing.T) {
		t.Parallel()

		v := newPaddleServer(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})

		_, err := v.Verify(context.Background(), "")
		assert.ErrorIs(t, err, verifier.ErrInvalidReference)
	})

	t.Run("unknown environment rejected", func(t *testing.T) {
		t.Parallel()

		_, err := verifier.NewPaddleVerifier(verifier.PaddleConfig{
			APIKey:      "pdl_test_key",
			Environment: "staging",
		})
		assert.ErrorIs(t, err, verifier.ErrInvalidEnvironment)
	})
}
