package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/billingevent"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// Support-driven recovery operations. These bypass payment verification but
// go through the same state rules and atomic store writes as the automated
// path, and every use leaves a manual_override audit event naming the
// operator. Re-running reconciliation for a reference is just Reconcile -
// it is idempotent by construction.

// ManualActivate force-activates a user on the given plan without a
// payment. Used to make a customer whole after a commit failure when the
// gateway charge went through but reconciliation could not be replayed.
func (e *Engine) ManualActivate(ctx context.Context, userID uuid.UUID, planID, operator string) (*subscription.Subscription, error) {
	pl, err := e.catalog.Get(planID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	nextBilling := pl.NextBillingDate(now)

	var out *subscription.Subscription
	err = e.store.InTx(ctx, func(tx Store) error {
		sub, err := tx.GetSubscriptionByUserID(ctx, userID)
		switch {
		case err == nil:
			next, err := subscription.Next(sub.Status, subscription.EventVerifiedPayment)
			if err != nil {
				return err
			}
			sub.Status = next
			sub.PlanID = pl.ID
			if sub.StartedAt == nil {
				started := now
				sub.StartedAt = &started
			}
			sub.NextBillingAt = &nextBilling
			sub.CancelledAt = nil
			sub.UpdatedAt = now
			if err := tx.UpdateSubscription(ctx, sub); err != nil {
				return err
			}
			out = sub
		case errors.Is(err, subscription.ErrSubscriptionNotFound):
			started := now
			sub = &subscription.Subscription{
				ID:            uuid.New(),
				UserID:        userID,
				PlanID:        pl.ID,
				Status:        subscription.StatusActive,
				StartedAt:     &started,
				NextBillingAt: &nextBilling,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.CreateSubscription(ctx, sub); err != nil {
				return err
			}
			out = sub
		default:
			return err
		}

		return tx.SyncUserAccess(ctx, UserAccess{
			UserID:    userID,
			Tier:      pl.ID,
			ExpiresAt: &nextBilling,
		})
	})
	if err != nil {
		return nil, err
	}

	e.log.WarnContext(ctx, "subscription manually activated",
		slog.String("user_id", userID.String()),
		slog.String("plan_id", planID),
		slog.String("operator", operator),
	)
	e.events.LogAsync(ctx, userID, billingevent.TypeManualOverride, map[string]any{
		"operation": "manual_activate",
		"plan_id":   planID,
		"operator":  operator,
	})
	return out, nil
}

// RestartTrial resets the user's trial window. The lifetime one-shot guard
// applies to the self-service path only; support may hand out a fresh trial
// after, say, a billing incident.
func (e *Engine) RestartTrial(ctx context.Context, userID uuid.UUID, operator string) (*subscription.Subscription, error) {
	pl := e.catalog.TrialPlan()
	now := e.now()
	trialEnd := pl.TrialEndsAt(now)

	var out *subscription.Subscription
	err := e.store.InTx(ctx, func(tx Store) error {
		sub, err := tx.GetSubscriptionByUserID(ctx, userID)
		switch {
		case err == nil:
			sub.Status = subscription.StatusTrial
			sub.PlanID = pl.ID
			sub.TrialStartsAt = &now
			sub.TrialEndsAt = &trialEnd
			sub.CancelledAt = nil
			sub.UpdatedAt = now
			if err := tx.UpdateSubscription(ctx, sub); err != nil {
				return err
			}
			out = sub
		case errors.Is(err, subscription.ErrSubscriptionNotFound):
			sub = &subscription.Subscription{
				ID:            uuid.New(),
				UserID:        userID,
				PlanID:        pl.ID,
				Status:        subscription.StatusTrial,
				TrialStartsAt: &now,
				TrialEndsAt:   &trialEnd,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.CreateSubscription(ctx, sub); err != nil {
				return err
			}
			out = sub
		default:
			return err
		}

		return tx.SyncUserAccess(ctx, UserAccess{
			UserID:    userID,
			Tier:      pl.ID,
			ExpiresAt: &trialEnd,
		})
	})
	if err != nil {
		return nil, err
	}

	e.log.WarnContext(ctx, "trial manually restarted",
		slog.String("user_id", userID.String()),
		slog.String("operator", operator),
	)
	e.events.LogAsync(ctx, userID, billingevent.TypeManualOverride, map[string]any{
		"operation":     "restart_trial",
		"trial_ends_at": trialEnd,
		"operator":      operator,
	})
	return out, nil
}
