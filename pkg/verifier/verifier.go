package verifier

import "context"

// Platform identifies a payment platform supported by the engine.
type Platform string

const (
	PlatformPaystack   Platform = "paystack"
	PlatformAppStore   Platform = "app_store"
	PlatformGooglePlay Platform = "google_play"
	PlatformPaddle     Platform = "paddle"
)

// Result is the normalized outcome of verifying a payment reference.
//
// Valid=false with a Message is a definitive gateway answer (declined,
// refunded, unknown reference) and distinct from a returned error, which
// means the check itself could not be completed (network, credentials).
type Result struct {
	Valid       bool
	Amount      int64  // minor currency units; 0 when the platform does not report one
	Currency    string // ISO 4217; empty when not reported
	CustomerRef string // platform's customer identifier
	Message     string // gateway message, set when Valid is false
	Raw         map[string]any
}

// Verifier converts an opaque payment reference into a normalized Result by
// querying the payment platform.
//
// Implementations must be read-only and safe to call repeatedly: the engine
// may verify the same reference more than once under webhook redelivery.
// Outbound calls must complete before any database transaction opens, so
// every implementation bounds its request with a timeout.
type Verifier interface {
	Verify(ctx context.Context, reference string) (*Result, error)
}
