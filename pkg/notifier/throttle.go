package notifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisSetter is the slice of the redis client the throttle needs.
// *redis.Client satisfies it.
type redisSetter interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// AlertThrottle wraps an AlertNotifier and suppresses identical alerts
// delivered within a time window. Payment gateways redeliver webhooks, and
// each redelivery of an already-flagged reference would otherwise page the
// operator again.
//
// Suppression is keyed on severity+subject+message in Redis so that it
// holds across process replicas. A suppressed alert is still logged; nothing
// is silently dropped. On Redis failure the alert passes through - losing
// dedup is better than losing an alert.
type AlertThrottle struct {
	next   AlertNotifier
	client redisSetter
	window time.Duration
	log    *slog.Logger
}

// NewAlertThrottle creates a throttle in front of next.
// A window of 0 defaults to 15 minutes.
func NewAlertThrottle(next AlertNotifier, client redisSetter, window time.Duration, log *slog.Logger) *AlertThrottle {
	if next == nil {
		panic("notifier: wrapped AlertNotifier is required")
	}
	if client == nil {
		panic("notifier: redis client is required")
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &AlertThrottle{next: next, client: client, window: window, log: log}
}

func (t *AlertThrottle) Alert(ctx context.Context, alert Alert) error {
	key := throttleKey(alert)

	first, err := t.client.SetNX(ctx, key, 1, t.window).Result()
	if err != nil {
		// Dedup is best-effort; the alert itself is not.
		t.log.WarnContext(ctx, "alert throttle unavailable, delivering without dedup",
			slog.Any("error", err))
		return t.next.Alert(ctx, alert)
	}
	if !first {
		t.log.InfoContext(ctx, "suppressed duplicate operator alert",
			slog.String("subject", alert.Subject),
			slog.String("severity", string(alert.Severity)),
		)
		return nil
	}
	return t.next.Alert(ctx, alert)
}

func throttleKey(alert Alert) string {
	h := sha256.Sum256([]byte(string(alert.Severity) + "\x00" + alert.Subject + "\x00" + alert.Message))
	return "billing:alert:" + hex.EncodeToString(h[:16])
}
