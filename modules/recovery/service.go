package recovery

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/billing"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// BillingEngine is the subset of the billing engine the recovery surface
// drives. Declared here so tests can substitute a fake.
type BillingEngine interface {
	Reconcile(ctx context.Context, req billing.ReconcileRequest) (*billing.ReconcileResult, error)
	ManualActivate(ctx context.Context, userID uuid.UUID, planID, operator string) (*subscription.Subscription, error)
	RestartTrial(ctx context.Context, userID uuid.UUID, operator string) (*subscription.Subscription, error)
	Cancel(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error)
	HasAccess(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Service exposes the operator recovery endpoints: re-running a
// reconciliation for a stuck payment, manual activation, trial restarts and
// cancellations. It is meant to be mounted behind the deployment's internal
// auth, not on the public surface.
type Service struct {
	engine BillingEngine
	log    *slog.Logger
}

// Option configures the recovery service.
type Option func(*Service)

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates the recovery service. Panics when engine is nil since
// the module is unusable without it.
func NewService(engine BillingEngine, opts ...Option) *Service {
	if engine == nil {
		panic("recovery: billing engine is required")
	}
	s := &Service{
		engine: engine,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
