package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a subscription.
type Status string

const (
	// StatusNone is the implicit state of a user without a subscription row.
	// It never appears in storage.
	StatusNone      Status = "none"
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Subscription represents a user's subscription.
// Each user has exactly one subscription row, ever: it is created once by a
// trial or a first verified payment and only updated afterwards.
type Subscription struct {
	ID     uuid.UUID
	UserID uuid.UUID // unique - one row per user
	PlanID string
	Status Status

	TrialStartsAt *time.Time
	TrialEndsAt   *time.Time

	// StartedAt is the first activation date. Renewals preserve it.
	StartedAt     *time.Time
	NextBillingAt *time.Time
	CancelledAt   *time.Time

	// TotalPaid is the lifetime amount paid in minor currency units.
	// It only ever increases.
	TotalPaid     int64
	LastPaymentAt *time.Time

	// Platform references, one set per payment platform the user paid through.
	PaystackRef          string
	AppStoreOriginalTxID string
	GooglePlayToken      string
	PaddleTxID           string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Subscription) IsTrial() bool {
	return s.Status == StatusTrial
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

func (s *Subscription) IsCancelled() bool {
	return s.Status == StatusCancelled
}

func (s *Subscription) IsExpired() bool {
	return s.Status == StatusExpired
}

// IsTrialExpiredAt reports whether the trial window has ended at now.
// False for subscriptions that never had a trial.
func (s *Subscription) IsTrialExpiredAt(now time.Time) bool {
	if s.TrialEndsAt == nil {
		return false
	}
	return now.After(*s.TrialEndsAt)
}

// HasAccessAt reports whether the subscription grants access at now:
//
//	active    - always
//	trial     - until the trial end date passes
//	cancelled - while now is before the already-paid-for next billing date
//	expired   - never
//
// Cancelled subscriptions keep their NextBillingAt precisely so this grace
// window can be evaluated; cancellation must not clear it.
func (s *Subscription) HasAccessAt(now time.Time) bool {
	switch s.Status {
	case StatusActive:
		return true
	case StatusTrial:
		return !s.IsTrialExpiredAt(now)
	case StatusCancelled:
		return s.NextBillingAt != nil && now.Before(*s.NextBillingAt)
	default:
		return false
	}
}

// RemainingAt returns how much paid-for validity remains at now.
// Zero when there is no future billing date.
func (s *Subscription) RemainingAt(now time.Time) time.Duration {
	if s.NextBillingAt == nil || !s.NextBillingAt.After(now) {
		return 0
	}
	return s.NextBillingAt.Sub(now)
}
