package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// PaystackConfig holds configuration for the recurring card gateway adapter.
type PaystackConfig struct {
	SecretKey string        `env:"PAYSTACK_SECRET_KEY,required"`
	BaseURL   string        `env:"PAYSTACK_BASE_URL" envDefault:"https://api.paystack.co"`
	Timeout   time.Duration `env:"PAYSTACK_TIMEOUT" envDefault:"15s"`
}

// PaystackVerifier verifies card transactions against Paystack's
// transaction-verify endpoint. The call is a read-only lookup of a completed
// charge; it never initiates or mutates anything on the gateway side.
type PaystackVerifier struct {
	client *http.Client
	config PaystackConfig
}

// NewPaystackVerifier creates a Paystack verification adapter.
func NewPaystackVerifier(cfg PaystackConfig) (*PaystackVerifier, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.paystack.co"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &PaystackVerifier{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}, nil
}

// paystackResponse mirrors the /transaction/verify/{reference} payload.
type paystackResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Customer struct {
			CustomerCode string `json:"customer_code"`
			Email        string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// Verify checks a transaction reference with Paystack.
// The payment is valid iff the remote transaction status is "success";
// any other status is returned as invalid with the gateway's message.
func (v *PaystackVerifier) Verify(ctx context.Context, reference string) (*Result, error) {
	if reference == "" {
		return nil, ErrInvalidReference
	}

	endpoint := fmt.Sprintf("%s/transaction/verify/%s", v.config.BaseURL, url.PathEscape(reference))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("paystack: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.config.SecretKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, errors.Join(ErrVerificationUnavailable, err)
	}
	defer resp.Body.Close()

	var body paystackResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Join(ErrVerificationUnavailable, fmt.Errorf("paystack: malformed response: %w", err))
	}

	raw := map[string]any{
		"status":      body.Data.Status,
		"amount":      body.Data.Amount,
		"currency":    body.Data.Currency,
		"http_status": resp.StatusCode,
	}

	if !body.Status || body.Data.Status != "success" {
		msg := body.Message
		if msg == "" {
			msg = fmt.Sprintf("transaction status %q", body.Data.Status)
		}
		return &Result{Valid: false, Message: msg, Raw: raw}, nil
	}

	return &Result{
		Valid:       true,
		Amount:      body.Data.Amount,
		Currency:    body.Data.Currency,
		CustomerRef: body.Data.Customer.CustomerCode,
		Raw:         raw,
	}, nil
}
