package billing

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/billingevent"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// Cancel cancels an active subscription.
//
// NextBillingAt is deliberately left in place: the user already paid
// through that date, and the access rules keep granting access until it
// passes. Only CancelledAt and the status change.
func (e *Engine) Cancel(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	sub, err := e.store.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	next, err := subscription.Next(sub.Status, subscription.EventCancel)
	if err != nil {
		return nil, err
	}

	now := e.now()
	sub.Status = next
	sub.CancelledAt = &now
	sub.UpdatedAt = now

	err = e.store.InTx(ctx, func(tx Store) error {
		if err := tx.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		// Access flags keep the tier until the paid-for window closes.
		return tx.SyncUserAccess(ctx, UserAccess{
			UserID:    userID,
			Tier:      sub.PlanID,
			ExpiresAt: sub.NextBillingAt,
		})
	})
	if err != nil {
		return nil, err
	}

	e.log.InfoContext(ctx, "subscription cancelled",
		slog.String("user_id", userID.String()),
	)
	e.events.LogAsync(ctx, userID, billingevent.TypeSubscriptionCancelled, map[string]any{
		"plan_id":      sub.PlanID,
		"access_until": sub.NextBillingAt,
	})

	return sub, nil
}
