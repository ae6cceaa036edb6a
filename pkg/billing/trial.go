package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/billingevent"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// StartFreeTrial issues the user's one free trial, ever.
//
// The trial is rejected when any subscription row exists for the user,
// regardless of its status - a user whose trial expired years ago does not
// get a second one. The pre-check handles the common case; the unique
// constraint on the user ID closes the race against a concurrent trial or
// payment for the same user.
func (e *Engine) StartFreeTrial(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	if _, err := e.store.GetSubscriptionByUserID(ctx, userID); err == nil {
		return nil, ErrTrialAlreadyUsed
	} else if !errors.Is(err, subscription.ErrSubscriptionNotFound) {
		return nil, err
	}

	if _, err := subscription.Next(subscription.StatusNone, subscription.EventStartTrial); err != nil {
		return nil, err
	}

	pl := e.catalog.TrialPlan()
	now := e.now()
	trialEnd := pl.TrialEndsAt(now)
	sub := &subscription.Subscription{
		ID:            uuid.New(),
		UserID:        userID,
		PlanID:        pl.ID,
		Status:        subscription.StatusTrial,
		TrialStartsAt: &now,
		TrialEndsAt:   &trialEnd,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := e.store.InTx(ctx, func(tx Store) error {
		if err := tx.CreateSubscription(ctx, sub); err != nil {
			return err
		}
		return tx.SyncUserAccess(ctx, UserAccess{
			UserID:    userID,
			Tier:      pl.ID,
			ExpiresAt: &trialEnd,
		})
	})
	if err != nil {
		if errors.Is(err, subscription.ErrSubscriptionAlreadyExists) {
			return nil, ErrTrialAlreadyUsed
		}
		return nil, err
	}

	e.log.InfoContext(ctx, "free trial started",
		slog.String("user_id", userID.String()),
		slog.Time("trial_ends_at", trialEnd),
	)
	e.events.LogAsync(ctx, userID, billingevent.TypeTrialStarted, map[string]any{
		"plan_id":       pl.ID,
		"trial_ends_at": trialEnd,
		"trial_days":    pl.TrialDays,
	})

	return sub, nil
}

// CheckTrialExpiration lazily expires a trial whose window has passed.
// There is no background sweep; this runs whenever access is evaluated.
// Returns the (possibly updated) subscription.
func (e *Engine) CheckTrialExpiration(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	sub, err := e.store.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if !sub.IsTrial() || !sub.IsTrialExpiredAt(now) {
		return sub, nil
	}

	next, err := subscription.Next(sub.Status, subscription.EventExpire)
	if err != nil {
		return nil, err
	}
	sub.Status = next
	sub.UpdatedAt = now

	err = e.store.InTx(ctx, func(tx Store) error {
		if err := tx.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		return tx.SyncUserAccess(ctx, UserAccess{UserID: userID})
	})
	if err != nil {
		return nil, err
	}

	e.events.LogAsync(ctx, userID, billingevent.TypeTrialExpired, map[string]any{
		"plan_id": sub.PlanID,
	})

	return sub, nil
}

// HasAccess reports whether the user currently has paid or trial access.
// Trial expiration is evaluated (and persisted) on the way.
// A user with no subscription row simply has no access; that is not an error.
func (e *Engine) HasAccess(ctx context.Context, userID uuid.UUID) (bool, error) {
	sub, err := e.CheckTrialExpiration(ctx, userID)
	if errors.Is(err, subscription.ErrSubscriptionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sub.HasAccessAt(e.now()), nil
}
