package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/option"
)

// GooglePlayConfig holds configuration for the Play Store adapter.
//
// AllowUnverified enables the credential-less trust-all mode used in local
// development. It must never be set in production: with it on, every
// purchase token presented to the engine is accepted as paid.
type GooglePlayConfig struct {
	CredentialsJSON string        `env:"GOOGLE_PLAY_CREDENTIALS_JSON"`
	PackageName     string        `env:"GOOGLE_PLAY_PACKAGE_NAME"`
	AllowUnverified bool          `env:"GOOGLE_PLAY_ALLOW_UNVERIFIED" envDefault:"false"`
	Timeout         time.Duration `env:"GOOGLE_PLAY_TIMEOUT" envDefault:"15s"`
}

// GooglePlayVerifier verifies subscription purchases through the Play
// Developer (publisher) API using a service account.
type GooglePlayVerifier struct {
	service *androidpublisher.Service
	config  GooglePlayConfig
	log     *slog.Logger
}

// NewGooglePlayVerifier creates a Play Store verification adapter.
//
// Without credentials the constructor fails unless AllowUnverified is set,
// in which case a trust-all adapter is returned and every verification is
// logged at Warn level. The explicit flag keeps the development shortcut
// from being reachable through a missing env var alone.
func NewGooglePlayVerifier(ctx context.Context, cfg GooglePlayConfig, log *slog.Logger) (*GooglePlayVerifier, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	if cfg.CredentialsJSON == "" {
		if !cfg.AllowUnverified {
			return nil, errors.Join(ErrMissingCredentials,
				errors.New("googleplay: set GOOGLE_PLAY_CREDENTIALS_JSON or explicitly enable GOOGLE_PLAY_ALLOW_UNVERIFIED"))
		}
		log.WarnContext(ctx, "google play verifier running without credentials, all purchases will be trusted")
		return &GooglePlayVerifier{config: cfg, log: log}, nil
	}

	if cfg.PackageName == "" {
		return nil, errors.Join(ErrMissingCredentials, errors.New("googleplay: package name is required"))
	}

	jwtCfg, err := google.JWTConfigFromJSON([]byte(cfg.CredentialsJSON), androidpublisher.AndroidpublisherScope)
	if err != nil {
		return nil, fmt.Errorf("googleplay: failed to parse service account credentials: %w", err)
	}

	service, err := androidpublisher.NewService(ctx, option.WithHTTPClient(jwtCfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("googleplay: failed to create publisher client: %w", err)
	}

	return &GooglePlayVerifier{service: service, config: cfg, log: log}, nil
}

// Verify checks a purchase with the publisher API. The reference is
// "subscriptionID:purchaseToken" as delivered by the mobile client.
//
// A purchase is valid when it is paid (payment state 1) and not yet past
// its expiry time. Deferred, pending and refunded purchases are invalid.
func (v *GooglePlayVerifier) Verify(ctx context.Context, reference string) (*Result, error) {
	subscriptionID, token, ok := strings.Cut(reference, ":")
	if !ok || subscriptionID == "" || token == "" {
		return nil, ErrInvalidReference
	}

	if v.service == nil {
		v.log.WarnContext(ctx, "trusting google play purchase without verification",
			slog.String("subscription_id", subscriptionID))
		return &Result{
			Valid: true,
			Raw:   map[string]any{"unverified": true, "subscription_id": subscriptionID},
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.config.Timeout)
	defer cancel()

	purchase, err := v.service.Purchases.Subscriptions.
		Get(v.config.PackageName, subscriptionID, token).
		Context(ctx).Do()
	if err != nil {
		return nil, errors.Join(ErrVerificationUnavailable, err)
	}

	raw := map[string]any{
		"order_id":            purchase.OrderId,
		"expiry_time_millis":  purchase.ExpiryTimeMillis,
		"price_amount_micros": purchase.PriceAmountMicros,
	}

	if purchase.PaymentState == nil || *purchase.PaymentState != 1 {
		return &Result{Valid: false, Message: "purchase is not in paid state", Raw: raw}, nil
	}
	if purchase.ExpiryTimeMillis > 0 && time.UnixMilli(purchase.ExpiryTimeMillis).Before(time.Now()) {
		return &Result{Valid: false, Message: "subscription purchase has expired", Raw: raw}, nil
	}

	return &Result{
		Valid: true,
		// Play reports prices in micros; normalize to minor units.
		Amount:      purchase.PriceAmountMicros / 10000,
		Currency:    purchase.PriceCurrencyCode,
		CustomerRef: purchase.OrderId,
		Raw:         raw,
	}, nil
}
