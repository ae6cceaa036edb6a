package billing

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/metrics"
	"github.com/dmitrymomot/billingkit/pkg/notifier"
	"github.com/dmitrymomot/billingkit/pkg/verifier"
)

// EngineOption configures the reconciliation engine.
type EngineOption func(*Engine)

// WithVerifier registers the verification adapter for a platform.
func WithVerifier(platform verifier.Platform, v verifier.Verifier) EngineOption {
	return func(e *Engine) {
		if v != nil {
			e.verifiers[platform] = v
		}
	}
}

// WithAlerts sets the operator alert channel.
func WithAlerts(alerts notifier.AlertNotifier) EngineOption {
	return func(e *Engine) { e.alerts = alerts }
}

// WithUserNotifier sets the user-facing notification channel.
func WithUserNotifier(users notifier.UserNotifier) EngineOption {
	return func(e *Engine) { e.users = users }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithClock overrides the engine's time source. Tests use this to pin "now".
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithDoubleChargeGrace overrides the validity threshold above which a new
// payment on an already-active subscription is flagged for operator review.
func WithDoubleChargeGrace(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.doubleChargeGrace = d
		}
	}
}

// WithVerifyTimeout bounds the gateway verification call.
func WithVerifyTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.verifyTimeout = d
		}
	}
}
