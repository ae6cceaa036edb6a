package billingevent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/metrics"
	"github.com/dmitrymomot/billingkit/pkg/notifier"
)

// ErrStorageExhausted is returned after every write attempt has failed.
var ErrStorageExhausted = errors.New("billingevent: storage retries exhausted")

// Storage persists audit events.
type Storage interface {
	Store(ctx context.Context, event *Event) error
}

// defaultBackoff is the retry schedule for best-effort writes.
var defaultBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Logger writes best-effort billing audit events.
//
// This is the informational path only (trial started, verification failed,
// duplicate ignored). The success record written during reconciliation is
// part of the reconciliation transaction itself, goes through the billing
// store, and is all-or-nothing with the rest of the commit - it never
// passes through here.
//
// Writes are retried with a bounded, explicit loop rather than scheduled
// timers so tests never accumulate pending timers. After the schedule is
// exhausted the event payload is escalated as a critical operator alert -
// the event may be lost from storage, but never silently.
type Logger struct {
	storage Storage
	alerts  notifier.AlertNotifier
	log     *slog.Logger
	metrics *metrics.Metrics
	backoff []time.Duration
	wg      sync.WaitGroup
}

// Option configures the Logger.
type Option func(*Logger)

// WithAlerts sets the operator alert channel used after exhausted retries.
func WithAlerts(alerts notifier.AlertNotifier) Option {
	return func(l *Logger) { l.alerts = alerts }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Logger) {
		if log != nil {
			l.log = log
		}
	}
}

// WithMetrics sets the collectors used to count write retries.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Logger) { l.metrics = m }
}

// WithBackoff overrides the retry schedule. The schedule length determines
// the number of retries after the initial attempt.
func WithBackoff(schedule ...time.Duration) Option {
	return func(l *Logger) {
		if len(schedule) > 0 {
			l.backoff = schedule
		}
	}
}

// NewLogger creates a best-effort audit event logger.
func NewLogger(storage Storage, opts ...Option) *Logger {
	if storage == nil {
		panic("billingevent: storage is required")
	}
	l := &Logger{
		storage: storage,
		log:     slog.Default(),
		backoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log records an audit event, retrying on storage failure.
//
// The returned error reports the final outcome for callers that care, but
// business operations must treat this call as fire-and-forget: a failure
// here never rolls back or blocks the operation that produced the event.
func (l *Logger) Log(ctx context.Context, userID uuid.UUID, eventType Type, data map[string]any) error {
	event := &Event{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      eventType,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}

	var lastErr error
	for attempt := 0; attempt <= len(l.backoff); attempt++ {
		if attempt > 0 {
			l.metrics.ObserveAuditRetry()
			select {
			case <-time.After(l.backoff[attempt-1]):
			case <-ctx.Done():
				lastErr = ctx.Err()
				return l.escalate(ctx, event, errors.Join(ErrStorageExhausted, lastErr))
			}
		}

		err := l.storage.Store(ctx, event)
		if err == nil {
			event.Processed = true
			return nil
		}
		lastErr = err
		event.Processed = false
		event.ProcessingError = err.Error()
		l.log.WarnContext(ctx, "billing event write failed",
			slog.String("event_type", string(eventType)),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
	}

	return l.escalate(ctx, event, errors.Join(ErrStorageExhausted, lastErr))
}

// LogAsync records an audit event off the caller's goroutine so a storage
// outage never delays the operation that produced the event. The write is
// detached from the caller's cancellation: the triggering request may be
// long gone by the time the retry schedule runs out.
func (l *Logger) LogAsync(ctx context.Context, userID uuid.UUID, eventType Type, data map[string]any) {
	ctx = context.WithoutCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_ = l.Log(ctx, userID, eventType, data)
	}()
}

// Wait blocks until every dispatched write has settled. Call on shutdown so
// in-flight events are not lost; tests use it to observe async writes.
func (l *Logger) Wait() {
	l.wg.Wait()
}

// escalate raises a critical alert carrying the full event payload so an
// operator can replay the write by hand.
func (l *Logger) escalate(ctx context.Context, event *Event, err error) error {
	l.log.ErrorContext(ctx, "billing event dropped from storage, escalating",
		slog.String("event_type", string(event.Type)),
		slog.String("user_id", event.UserID.String()),
		slog.Any("error", err),
	)

	if l.alerts != nil {
		alertErr := l.alerts.Alert(ctx, notifier.Alert{
			Severity: notifier.SeverityCritical,
			Subject:  "billing audit event could not be persisted",
			Message:  "all storage attempts failed; event payload attached for manual replay",
			Data: map[string]any{
				"event_id":   event.ID.String(),
				"event_type": string(event.Type),
				"user_id":    event.UserID.String(),
				"event_data": event.Data,
				"error":      event.ProcessingError,
			},
		})
		if alertErr != nil {
			l.log.ErrorContext(ctx, "failed to deliver audit escalation alert", slog.Any("error", alertErr))
		}
	}
	return err
}
