package plan

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Source defines how plans are loaded into the catalog.
type Source interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// Catalog holds the validated set of plans and answers plan lookups for the
// reconciliation engine. Plans are loaded once at construction; the catalog
// is immutable afterwards and safe for concurrent use.
type Catalog struct {
	plans      map[string]Plan
	byInterval map[Interval]Plan
}

// NewCatalog loads plans from src and validates them.
// The catalog requires exactly one plan per billing interval because the
// payment gateways report only an amount, and the engine maps that amount
// back onto a plan tier.
func NewCatalog(ctx context.Context, src Source) (*Catalog, error) {
	if src == nil {
		panic("plan: Source is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	byInterval := make(map[Interval]Plan, 2)
	for id, p := range plans {
		if p.ID != id {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan ID mismatch: map key %s != plan.ID %s", id, p.ID))
		}
		if p.Price <= 0 {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has non-positive price: %d", id, p.Price))
		}
		if p.TrialDays < 0 {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has negative trial days: %d", id, p.TrialDays))
		}
		if p.Interval != IntervalMonthly && p.Interval != IntervalYearly {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has unknown interval %q", id, p.Interval))
		}
		if _, dup := byInterval[p.Interval]; dup {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("multiple plans configured for interval %q", p.Interval))
		}
		byInterval[p.Interval] = p
	}

	for _, iv := range []Interval{IntervalMonthly, IntervalYearly} {
		if _, ok := byInterval[iv]; !ok {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("%w: %s", ErrNoPlanForInterval, iv))
		}
	}

	return &Catalog{plans: plans, byInterval: byInterval}, nil
}

// Get returns the plan with the given ID.
func (c *Catalog) Get(id string) (Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// ByInterval returns the plan for the given billing interval.
func (c *Catalog) ByInterval(iv Interval) (Plan, error) {
	p, ok := c.byInterval[iv]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrNoPlanForInterval, iv)
	}
	return p, nil
}

// ResolveByAmount maps a verified payment amount onto a plan tier.
// An amount at or above the yearly price resolves to the yearly plan,
// anything below it to the monthly plan.
//
// This mirrors what the payment gateways give us: webhooks carry an amount
// but no plan code, so tier is inferred from price. Keep the thresholds in
// the catalog aligned with the gateway product configuration before changing
// this mapping.
func (c *Catalog) ResolveByAmount(amount int64) (Plan, error) {
	yearly := c.byInterval[IntervalYearly]
	if amount >= yearly.Price {
		return yearly, nil
	}
	return c.byInterval[IntervalMonthly], nil
}

// TrialPlan returns the plan used for free trials.
// Trials are issued against the monthly plan.
func (c *Catalog) TrialPlan() Plan {
	return c.byInterval[IntervalMonthly]
}

// NextBillingDateFor is a convenience that resolves the plan by amount and
// computes the next billing date from now in one step.
func (c *Catalog) NextBillingDateFor(amount int64, now time.Time) (Plan, time.Time, error) {
	p, err := c.ResolveByAmount(amount)
	if err != nil {
		return Plan{}, time.Time{}, err
	}
	return p, p.NextBillingDate(now), nil
}
