package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// App Store receipt verification status codes we act on.
// See Apple's verifyReceipt documentation for the full table.
const (
	appStoreStatusOK = 0

	// appStoreStatusSandboxReceipt means a sandbox receipt was sent to the
	// production endpoint. Apple's guidance is to retry against sandbox,
	// which keeps TestFlight and review builds working against a production
	// configuration. The fallback is deliberate, not an error path.
	appStoreStatusSandboxReceipt = 21007
)

// AppStoreConfig holds configuration for the App Store receipt adapter.
type AppStoreConfig struct {
	SharedSecret  string        `env:"APPSTORE_SHARED_SECRET,required"`
	ProductionURL string        `env:"APPSTORE_PRODUCTION_URL" envDefault:"https://buy.itunes.apple.com/verifyReceipt"`
	SandboxURL    string        `env:"APPSTORE_SANDBOX_URL" envDefault:"https://sandbox.itunes.apple.com/verifyReceipt"`
	Timeout       time.Duration `env:"APPSTORE_TIMEOUT" envDefault:"15s"`
}

// AppStoreVerifier verifies base64 receipt data with Apple's verifyReceipt
// endpoint, falling back from production to sandbox on status 21007.
type AppStoreVerifier struct {
	client *http.Client
	config AppStoreConfig
}

// NewAppStoreVerifier creates an App Store receipt verification adapter.
func NewAppStoreVerifier(cfg AppStoreConfig) (*AppStoreVerifier, error) {
	if cfg.SharedSecret == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.ProductionURL == "" {
		cfg.ProductionURL = "https://buy.itunes.apple.com/verifyReceipt"
	}
	if cfg.SandboxURL == "" {
		cfg.SandboxURL = "https://sandbox.itunes.apple.com/verifyReceipt"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &AppStoreVerifier{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}, nil
}

type appStoreResponse struct {
	Status  int `json:"status"`
	Receipt struct {
		InApp []struct {
			OriginalTransactionID string `json:"original_transaction_id"`
			ProductID             string `json:"product_id"`
			ExpiresDateMS         string `json:"expires_date_ms"`
		} `json:"in_app"`
	} `json:"receipt"`
	LatestReceiptInfo []struct {
		OriginalTransactionID string `json:"original_transaction_id"`
		ProductID             string `json:"product_id"`
		ExpiresDateMS         string `json:"expires_date_ms"`
	} `json:"latest_receipt_info"`
}

// Verify submits receipt data to the production endpoint first and
// transparently retries against sandbox when Apple reports 21007.
//
// Receipts carry no price, so Result.Amount is always zero here; the engine
// falls back to the amount presented by the caller.
func (v *AppStoreVerifier) Verify(ctx context.Context, receiptData string) (*Result, error) {
	if receiptData == "" {
		return nil, ErrInvalidReference
	}

	resp, err := v.submit(ctx, v.config.ProductionURL, receiptData)
	if err != nil {
		return nil, err
	}
	if resp.Status == appStoreStatusSandboxReceipt {
		resp, err = v.submit(ctx, v.config.SandboxURL, receiptData)
		if err != nil {
			return nil, err
		}
	}

	raw := map[string]any{"status": resp.Status}

	if resp.Status != appStoreStatusOK {
		return &Result{
			Valid:   false,
			Message: fmt.Sprintf("receipt verification failed with status %d", resp.Status),
			Raw:     raw,
		}, nil
	}

	result := &Result{Valid: true, Raw: raw}
	if len(resp.LatestReceiptInfo) > 0 {
		result.CustomerRef = resp.LatestReceiptInfo[0].OriginalTransactionID
	} else if len(resp.Receipt.InApp) > 0 {
		result.CustomerRef = resp.Receipt.InApp[0].OriginalTransactionID
	}
	return result, nil
}

func (v *AppStoreVerifier) submit(ctx context.Context, endpoint, receiptData string) (*appStoreResponse, error) {
	payload, err := json.Marshal(map[string]string{
		"receipt-data": receiptData,
		"password":     v.config.SharedSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("appstore: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("appstore: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, errors.Join(ErrVerificationUnavailable, err)
	}
	defer resp.Body.Close()

	var body appStoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Join(ErrVerificationUnavailable, fmt.Errorf("appstore: malformed response: %w", err))
	}
	return &body, nil
}
