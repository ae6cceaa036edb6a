package plan

import "errors"

var (
	ErrPlanNotFound             = errors.New("subscription plan not found")
	ErrInvalidPlanConfiguration = errors.New("invalid subscription plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load subscription plans")
	ErrNoPlanForInterval        = errors.New("no plan configured for billing interval")
)
