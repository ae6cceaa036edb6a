package verifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle web-checkout adapter.
// BaseURL overrides the environment-derived API endpoint; tests point it at
// a local server.
type PaddleConfig struct {
	APIKey      string        `env:"PADDLE_API_KEY,required"`
	Environment string        `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	BaseURL     string        `env:"PADDLE_BASE_URL"`
	Timeout     time.Duration `env:"PADDLE_TIMEOUT" envDefault:"15s"`
}

// PaddleVerifier verifies web checkout transactions through the Paddle SDK.
type PaddleVerifier struct {
	client *paddle.SDK
	config PaddleConfig
}

// NewPaddleVerifier creates a Paddle verification adapter.
func NewPaddleVerifier(cfg PaddleConfig) (*PaddleVerifier, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	var sdkOpts []paddle.Option
	if cfg.BaseURL != "" {
		sdkOpts = append(sdkOpts, paddle.WithBaseURL(cfg.BaseURL))
	}

	var client *paddle.SDK
	var err error
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey, sdkOpts...)
	case "production", "":
		client, err = paddle.New(cfg.APIKey, sdkOpts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnvironment, cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("paddle: failed to create client: %w", err)
	}

	return &PaddleVerifier{client: client, config: cfg}, nil
}

// Verify fetches the transaction by ID and reports it valid iff Paddle has
// collected the money (status completed or paid).
func (v *PaddleVerifier) Verify(ctx context.Context, reference string) (*Result, error) {
	if reference == "" {
		return nil, ErrInvalidReference
	}

	ctx, cancel := context.WithTimeout(ctx, v.config.Timeout)
	defer cancel()

	tx, err := v.client.TransactionsClient.GetTransaction(ctx, &paddle.GetTransactionRequest{
		TransactionID: reference,
	})
	if err != nil {
		return nil, errors.Join(ErrVerificationUnavailable, err)
	}

	status := strings.ToLower(string(tx.Status))
	raw := map[string]any{"status": status, "transaction_id": tx.ID}

	if status != "completed" && status != "paid" {
		return &Result{
			Valid:   false,
			Message: fmt.Sprintf("transaction status %q", status),
			Raw:     raw,
		}, nil
	}

	result := &Result{Valid: true, Raw: raw}
	if tx.CustomerID != nil {
		result.CustomerRef = *tx.CustomerID
	}
	// Paddle reports monetary amounts as strings in minor units. Totals is
	// a value struct, so an absent block shows up as empty fields.
	if totals := tx.Details.Totals; totals.GrandTotal != "" {
		if amount, err := strconv.ParseInt(totals.GrandTotal, 10, 64); err == nil {
			result.Amount = amount
		}
		result.Currency = string(totals.CurrencyCode)
	}
	return result, nil
}
