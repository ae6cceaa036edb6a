package verifier_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/verifier"
)

func TestNewGooglePlayVerifier(t *testing.T) {
	t.Parallel()

	t.Run("missing credentials without override", func(t *testing.T) {
		t.Parallel()

		_, err := verifier.NewGooglePlayVerifier(context.Background(), verifier.GooglePlayConfig{}, nil)
		assert.ErrorIs(t, err, verifier.ErrMissingCredentials)
	})

	t.Run("trust-all mode requires explicit flag", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, nil))

		v, err := verifier.NewGooglePlayVerifier(context.Background(), verifier.GooglePlayConfig{
			AllowUnverified: true,
		}, log)
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Contains(t, buf.String(), "without credentials")
	})

	t.Run("malformed credentials", func(t *testing.T) {
		t.Parallel()

		_, err := verifier.NewGooglePlayVerifier(context.Background(), verifier.GooglePlayConfig{
			CredentialsJSON: "not-json",
			PackageName:     "com.example.app",
		}, nil)
		assert.Error(t, err)
	})
}

func TestGooglePlayVerifyUnverifiedMode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	v, err := verifier.NewGooglePlayVerifier(context.Background(), verifier.GooglePlayConfig{
		AllowUnverified: true,
	}, log)
	require.NoError(t, err)

	t.Run("accepts and logs every token", func(t *testing.T) {
		res, err := v.Verify(context.Background(), "premium_monthly:token-abc")
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, true, res.Raw["unverified"])
		assert.Contains(t, buf.String(), "trusting google play purchase")
	})

	t.Run("still rejects malformed references", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "no-separator")
		assert.ErrorIs(t, err, verifier.ErrInvalidReference)

		_, err = v.Verify(context.Background(), ":token-only")
		assert.ErrorIs(t, err, verifier.ErrInvalidReference)
	})
}
