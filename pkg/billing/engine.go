package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/billingevent"
	"github.com/dmitrymomot/billingkit/pkg/metrics"
	"github.com/dmitrymomot/billingkit/pkg/notifier"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/verifier"
)

// errDuplicateRace aborts the unit of work when a concurrent reconciliation
// of the same reference won the idempotency-key race. Never escapes Reconcile.
var errDuplicateRace = errors.New("billing: lost idempotency-key race")

const (
	defaultDoubleChargeGrace = 7 * 24 * time.Hour
	defaultVerifyTimeout     = 30 * time.Second
)

// Engine is the reconciliation engine: it turns a payment-gateway
// notification into durable, consistent subscription state exactly once.
type Engine struct {
	store     Store
	catalog   *plan.Catalog
	verifiers map[verifier.Platform]verifier.Verifier
	events    *billingevent.Logger
	alerts    notifier.AlertNotifier
	users     notifier.UserNotifier
	metrics   *metrics.Metrics
	log       *slog.Logger

	now               func() time.Time
	doubleChargeGrace time.Duration
	verifyTimeout     time.Duration
}

// NewEngine creates the reconciliation engine.
// Panics on nil required dependencies to fail fast during initialization;
// verifiers are registered per platform through WithVerifier.
func NewEngine(store Store, catalog *plan.Catalog, events *billingevent.Logger, opts ...EngineOption) *Engine {
	if store == nil {
		panic("billing: Store is required")
	}
	if catalog == nil {
		panic("billing: plan catalog is required")
	}
	if events == nil {
		panic("billing: event logger is required")
	}

	e := &Engine{
		store:             store,
		catalog:           catalog,
		verifiers:         make(map[verifier.Platform]verifier.Verifier),
		events:            events,
		log:               slog.Default(),
		now:               func() time.Time { return time.Now().UTC() },
		doubleChargeGrace: defaultDoubleChargeGrace,
		verifyTimeout:     defaultVerifyTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReconcileRequest identifies a payment presented for reconciliation.
// Amount is the caller-reported amount in minor units and is overridden by
// the verified amount whenever the platform reports one. Email, when known,
// lets the engine send the generic user-facing notice on failures.
type ReconcileRequest struct {
	UserID    uuid.UUID
	Platform  verifier.Platform
	Reference string
	Amount    int64
	Currency  string
	Email     string
}

// Outcome classifies how a reconciliation concluded. All three outcomes are
// successes from the caller's point of view; failures are errors.
type Outcome string

const (
	// OutcomeCommitted is a regular first-time processing of the reference.
	OutcomeCommitted Outcome = "committed"
	// OutcomeDuplicate means the reference was already processed; nothing
	// new was written and the existing subscription is returned.
	OutcomeDuplicate Outcome = "duplicate_ignored"
	// OutcomeFlaggedDoubleCharge means the payment was committed although
	// the subscription already had substantial validity remaining; an
	// operator alert was raised for a manual refund decision.
	OutcomeFlaggedDoubleCharge Outcome = "flagged_double_charge"
)

// ReconcileResult is the committed state after a reconciliation.
type ReconcileResult struct {
	Outcome      Outcome
	Subscription *subscription.Subscription
	Plan         plan.Plan
}

// Reconcile converts a verified payment into committed subscription state.
//
// The flow is strictly two-phase: the gateway verification call completes
// (with its own timeout) before the storage transaction opens, so network
// latency is never incurred while transactional resources are held. Inside
// the unit of work the idempotency check runs first; everything that
// follows commits or rolls back as one.
//
// Reconcile never retries itself: after a successful verification the
// transaction either commits as a whole or fails as a whole, and an
// ambiguous failure is escalated to an operator instead of re-driven
// through a second charge-attempt path.
func (e *Engine) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	v, ok := e.verifiers[req.Platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, req.Platform)
	}

	// Phase 1: verification, fully awaited before any transaction opens.
	verifyStart := e.now()
	vctx, cancel := context.WithTimeout(ctx, e.verifyTimeout)
	res, err := v.Verify(vctx, req.Reference)
	cancel()
	e.metrics.ObserveVerification(string(req.Platform), e.now().Sub(verifyStart))

	if err != nil {
		e.metrics.ObserveReconciliation(string(req.Platform), metrics.OutcomeVerificationFailed)
		e.logFailedVerification(ctx, req, err.Error())
		return nil, errors.Join(ErrVerificationFailed, err)
	}
	if !res.Valid {
		e.metrics.ObserveReconciliation(string(req.Platform), metrics.OutcomeVerificationFailed)
		e.logFailedVerification(ctx, req, res.Message)
		return nil, fmt.Errorf("%w: %s", ErrVerificationFailed, res.Message)
	}

	amount := req.Amount
	if res.Amount > 0 {
		amount = res.Amount
	}
	currency := req.Currency
	if res.Currency != "" {
		currency = res.Currency
	}

	pl, err := e.catalog.ResolveByAmount(amount)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var (
		out     ReconcileResult
		flagged bool
	)

	// Phase 2: one atomic unit of work.
	txErr := e.store.InTx(ctx, func(tx Store) error {
		// Idempotency check first: the primary defense against
		// at-least-once webhook delivery.
		if existing, err := tx.GetPayment(ctx, req.Platform, req.Reference); err == nil {
			sub, err := tx.GetSubscriptionByUserID(ctx, existing.UserID)
			if err != nil {
				return err
			}
			out = ReconcileResult{Outcome: OutcomeDuplicate, Subscription: sub, Plan: pl}
			return nil
		} else if !errors.Is(err, ErrPaymentNotFound) {
			return err
		}

		sub, err := tx.GetSubscriptionByUserID(ctx, req.UserID)
		switch {
		case err == nil:
			// The gateway already took the money, so a suspicious
			// second charge is committed anyway and flagged for a
			// manual refund decision rather than rejected.
			if sub.IsActive() && sub.RemainingAt(now) > e.doubleChargeGrace {
				flagged = true
			}

			next, err := subscription.Next(sub.Status, subscription.EventVerifiedPayment)
			if err != nil {
				return err
			}

			renewal := sub.IsActive()
			sub.Status = next
			sub.PlanID = pl.ID
			if sub.StartedAt == nil {
				started := now
				sub.StartedAt = &started
			}

			// Renewals stack on remaining paid time; activations and
			// reactivations bill from now.
			base := now
			if renewal && sub.NextBillingAt != nil && sub.NextBillingAt.After(now) {
				base = *sub.NextBillingAt
			}
			nextBilling := pl.NextBillingDate(base)
			sub.NextBillingAt = &nextBilling

			sub.TotalPaid += amount
			paidAt := now
			sub.LastPaymentAt = &paidAt
			sub.CancelledAt = nil
			setPlatformRef(sub, req.Platform, req.Reference)
			sub.UpdatedAt = now

			if err := tx.UpdateSubscription(ctx, sub); err != nil {
				return err
			}

		case errors.Is(err, subscription.ErrSubscriptionNotFound):
			started := now
			nextBilling := pl.NextBillingDate(now)
			sub = &subscription.Subscription{
				ID:            uuid.New(),
				UserID:        req.UserID,
				PlanID:        pl.ID,
				Status:        subscription.StatusActive,
				StartedAt:     &started,
				NextBillingAt: &nextBilling,
				TotalPaid:     amount,
				LastPaymentAt: &started,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			setPlatformRef(sub, req.Platform, req.Reference)
			if err := tx.CreateSubscription(ctx, sub); err != nil {
				return err
			}

		default:
			return err
		}

		// Denormalized access flags travel in the same unit of work: a
		// failure here rolls back everything rather than leaving a paid
		// user unentitled.
		if err := tx.SyncUserAccess(ctx, UserAccess{
			UserID:    req.UserID,
			Tier:      pl.ID,
			ExpiresAt: sub.NextBillingAt,
		}); err != nil {
			return err
		}

		inserted, err := tx.InsertPayment(ctx, &PaymentTransaction{
			ID:                    uuid.New(),
			UserID:                req.UserID,
			SubscriptionID:        sub.ID,
			Amount:                amount,
			Currency:              currency,
			Status:                "success",
			Platform:              req.Platform,
			PlatformTransactionID: req.Reference,
			CreatedAt:             now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			// A concurrent reconciliation of the same reference committed
			// between our idempotency check and this insert. Abort so our
			// subscription changes roll back; the winner's commit stands.
			return errDuplicateRace
		}

		// The success record is part of the atomic unit, unlike every
		// other audit write in this engine.
		if err := tx.AppendEvent(ctx, &billingevent.Event{
			ID:     uuid.New(),
			UserID: req.UserID,
			Type:   billingevent.TypePaymentReconciled,
			Data: map[string]any{
				"platform":        string(req.Platform),
				"reference":       req.Reference,
				"amount":          amount,
				"currency":        currency,
				"plan_id":         pl.ID,
				"requires_review": flagged,
			},
			Processed: true,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		// Re-read inside the transaction so the result reflects exactly
		// what is being committed, not a locally patched copy.
		fresh, err := tx.GetSubscriptionByUserID(ctx, req.UserID)
		if err != nil {
			return err
		}
		outcome := OutcomeCommitted
		if flagged {
			outcome = OutcomeFlaggedDoubleCharge
		}
		out = ReconcileResult{Outcome: outcome, Subscription: fresh, Plan: pl}
		return nil
	})

	switch {
	case txErr == nil:
	case errors.Is(txErr, errDuplicateRace):
		sub, err := e.store.GetSubscriptionByUserID(ctx, req.UserID)
		if err != nil {
			return nil, errors.Join(ErrCommitFailed, err)
		}
		out = ReconcileResult{Outcome: OutcomeDuplicate, Subscription: sub, Plan: pl}
	default:
		// Verified money with no provisioned state: the worst failure
		// class this engine produces. No automatic remediation.
		e.metrics.ObserveReconciliation(string(req.Platform), metrics.OutcomeCommitFailed)
		e.log.ErrorContext(ctx, "reconciliation transaction rolled back",
			slog.String("user_id", req.UserID.String()),
			slog.String("platform", string(req.Platform)),
			slog.String("reference", req.Reference),
			slog.Any("error", txErr),
		)
		e.alert(ctx, notifier.Alert{
			Severity: notifier.SeverityCritical,
			Subject:  "payment verified but not provisioned",
			Message: "the reconciliation transaction rolled back after a successful gateway " +
				"verification; the user may have been charged without receiving access. " +
				"Re-run reconciliation for this reference once storage is healthy.",
			Data: map[string]any{
				"user_id":   req.UserID.String(),
				"platform":  string(req.Platform),
				"reference": req.Reference,
				"amount":    notifier.FormatAmount(amount, currency),
				"error":     txErr.Error(),
			},
		})
		e.notifyUser(ctx, req, "We hit a snag activating your subscription. "+
			"Our team is already on it - no action is needed from you.")
		return nil, errors.Join(ErrCommitFailed, txErr)
	}

	switch out.Outcome {
	case OutcomeDuplicate:
		e.metrics.ObserveReconciliation(string(req.Platform), metrics.OutcomeDuplicate)
		e.log.InfoContext(ctx, "duplicate payment reference safely ignored",
			slog.String("platform", string(req.Platform)),
			slog.String("reference", req.Reference),
		)
		e.events.LogAsync(ctx, req.UserID, billingevent.TypePaymentDuplicate, map[string]any{
			"platform":  string(req.Platform),
			"reference": req.Reference,
		})
	case OutcomeFlaggedDoubleCharge:
		e.metrics.ObserveReconciliation(string(req.Platform), metrics.OutcomeFlagged)
		e.events.LogAsync(ctx, req.UserID, billingevent.TypeDoubleChargeFlagged, map[string]any{
			"platform":  string(req.Platform),
			"reference": req.Reference,
			"amount":    amount,
		})
		e.alert(ctx, notifier.Alert{
			Severity: notifier.SeverityWarning,
			Subject:  "suspected double charge committed",
			Message: "a payment was reconciled for a subscription that already had more than " +
				"the grace threshold of validity remaining. Funds have moved; review for refund.",
			Data: map[string]any{
				"user_id":   req.UserID.String(),
				"platform":  string(req.Platform),
				"reference": req.Reference,
				"amount":    notifier.FormatAmount(amount, currency),
			},
		})
	default:
		e.metrics.ObserveReconciliation(string(req.Platform), metrics.OutcomeCommitted)
	}

	return &out, nil
}

// logFailedVerification records the failed attempt and tells the user we
// are looking into it. Both writes are best-effort.
func (e *Engine) logFailedVerification(ctx context.Context, req ReconcileRequest, reason string) {
	e.log.WarnContext(ctx, "payment verification failed",
		slog.String("user_id", req.UserID.String()),
		slog.String("platform", string(req.Platform)),
		slog.String("reference", req.Reference),
		slog.String("reason", reason),
	)
	e.events.LogAsync(ctx, req.UserID, billingevent.TypeSubscriptionFailed, map[string]any{
		"platform":  string(req.Platform),
		"reference": req.Reference,
		"reason":    reason,
	})
	e.notifyUser(ctx, req, "We couldn't confirm your payment with the provider. "+
		"We're resolving a billing issue and will follow up shortly.")
}

func (e *Engine) alert(ctx context.Context, alert notifier.Alert) {
	if e.alerts == nil {
		return
	}
	if err := e.alerts.Alert(ctx, alert); err != nil {
		e.log.ErrorContext(ctx, "failed to deliver operator alert",
			slog.String("subject", alert.Subject),
			slog.Any("error", err),
		)
	}
}

func (e *Engine) notifyUser(ctx context.Context, req ReconcileRequest, message string) {
	if e.users == nil || req.Email == "" {
		return
	}
	err := e.users.NotifyUser(ctx, notifier.UserNotice{
		UserID:  req.UserID,
		Email:   req.Email,
		Subject: "About your subscription payment",
		Message: message,
	})
	if err != nil {
		e.log.WarnContext(ctx, "failed to deliver user billing notice",
			slog.String("user_id", req.UserID.String()),
			slog.Any("error", err),
		)
	}
}

// setPlatformRef stores the platform-specific reference on the subscription.
func setPlatformRef(sub *subscription.Subscription, platform verifier.Platform, reference string) {
	switch platform {
	case verifier.PlatformPaystack:
		sub.PaystackRef = reference
	case verifier.PlatformAppStore:
		sub.AppStoreOriginalTxID = reference
	case verifier.PlatformGooglePlay:
		sub.GooglePlayToken = reference
	case verifier.PlatformPaddle:
		sub.PaddleTxID = reference
	}
}
