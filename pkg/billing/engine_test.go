package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/billing"
	"github.com/dmitrymomot/billingkit/pkg/billingevent"
	"github.com/dmitrymomot/billingkit/pkg/notifier"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/verifier"
)

var (
	monthlyPlan = plan.Plan{
		ID:        "premium_monthly",
		Name:      "premium_monthly",
		Price:     4900,
		Currency:  "NGN",
		Interval:  plan.IntervalMonthly,
		TrialDays: 14,
	}
	yearlyPlan = plan.Plan{
		ID:       "premium_yearly",
		Name:     "premium_yearly",
		Price:    53000,
		Currency: "NGN",
		Interval: plan.IntervalYearly,
	}
)

type fakeVerifier struct {
	mu     sync.Mutex
	result *verifier.Result
	err    error
	calls  int
}

func (f *fakeVerifier) Verify(ctx context.Context, reference string) (*verifier.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		cp := *f.result
		return &cp, nil
	}
	return &verifier.Result{Valid: true, Amount: 4900, Currency: "NGN"}, nil
}

func (f *fakeVerifier) set(result *verifier.Result, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result, f.err = result, err
}

type captureAlerts struct {
	mu     sync.Mutex
	alerts []notifier.Alert
}

func (a *captureAlerts) Alert(ctx context.Context, alert notifier.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return nil
}

func (a *captureAlerts) bySeverity(sev notifier.Severity) []notifier.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []notifier.Alert
	for _, al := range a.alerts {
		if al.Severity == sev {
			out = append(out, al)
		}
	}
	return out
}

type captureUsers struct {
	mu      sync.Mutex
	notices []notifier.UserNotice
}

func (u *captureUsers) NotifyUser(ctx context.Context, notice notifier.UserNotice) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notices = append(u.notices, notice)
	return nil
}

func (u *captureUsers) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.notices)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type engineFixture struct {
	engine   *billing.Engine
	store    *billing.MemStore
	events   *billingevent.Logger
	clock    *testClock
	alerts   *captureAlerts
	users    *captureUsers
	paystack *fakeVerifier
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()

	catalog, err := plan.NewCatalog(context.Background(), plan.NewInMemSource(monthlyPlan, yearlyPlan))
	require.NoError(t, err)

	f := &engineFixture{
		store:    billing.NewMemStore(),
		clock:    &testClock{now: time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)},
		alerts:   &captureAlerts{},
		users:    &captureUsers{},
		paystack: &fakeVerifier{},
	}
	f.events = billingevent.NewLogger(
		billing.EventStorage{S: f.store},
		billingevent.WithBackoff(0),
	)
	f.engine = billing.NewEngine(f.store, catalog, f.events,
		billing.WithVerifier(verifier.PlatformPaystack, f.paystack),
		billing.WithAlerts(f.alerts),
		billing.WithUserNotifier(f.users),
		billing.WithClock(f.clock.Now),
	)
	return f
}

func (f *engineFixture) eventsOfType(tp billingevent.Type) []billingevent.Event {
	// informational events are written off the request goroutine
	f.events.Wait()
	var out []billingevent.Event
	for _, ev := range f.store.Events() {
		if ev.Type == tp {
			out = append(out, ev)
		}
	}
	return out
}

func paystackReq(userID uuid.UUID, reference string) billing.ReconcileRequest {
	return billing.ReconcileRequest{
		UserID:    userID,
		Platform:  verifier.PlatformPaystack,
		Reference: reference,
		Amount:    4900,
		Currency:  "NGN",
		Email:     "user@example.com",
	}
}

func TestReconcileFirstPayment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	now := f.clock.Now()

	res, err := f.engine.Reconcile(context.Background(), paystackReq(userID, "rfx-1"))
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeCommitted, res.Outcome)
	assert.Equal(t, "premium_monthly", res.Plan.ID)

	sub := res.Subscription
	require.NotNil(t, sub)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, int64(4900), sub.TotalPaid)
	assert.Equal(t, "rfx-1", sub.PaystackRef)
	require.NotNil(t, sub.StartedAt)
	assert.Equal(t, now, *sub.StartedAt)
	require.NotNil(t, sub.NextBillingAt)
	assert.Equal(t, monthlyPlan.NextBillingDate(now), *sub.NextBillingAt)

	// Access flags are committed with the subscription, never after it.
	access, ok := f.store.Access(userID)
	require.True(t, ok)
	assert.Equal(t, "premium_monthly", access.Tier)
	require.NotNil(t, access.ExpiresAt)
	assert.Equal(t, *sub.NextBillingAt, *access.ExpiresAt)

	require.Len(t, f.store.Payments(), 1)
	payment := f.store.Payments()[0]
	assert.Equal(t, verifier.PlatformPaystack, payment.Platform)
	assert.Equal(t, "rfx-1", payment.PlatformTransactionID)
	assert.Equal(t, int64(4900), payment.Amount)

	recs := f.eventsOfType(billingevent.TypePaymentReconciled)
	require.Len(t, recs, 1)
	assert.Equal(t, false, recs[0].Data["requires_review"])
}

func TestReconcileVerifiedAmountWins(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.paystack.set(&verifier.Result{Valid: true, Amount: 53000, Currency: "NGN"}, nil)

	req := paystackReq(uuid.New(), "rfx-yearly")
	req.Amount = 4900 // caller claims monthly; the gateway knows better

	res, err := f.engine.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "premium_yearly", res.Plan.ID)
	assert.Equal(t, int64(53000), res.Subscription.TotalPaid)
	assert.Equal(t, yearlyPlan.NextBillingDate(f.clock.Now()), *res.Subscription.NextBillingAt)
}

func TestReconcileIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()

	first, err := f.engine.Reconcile(context.Background(), paystackReq(userID, "rfx-1"))
	require.NoError(t, err)
	require.Equal(t, billing.OutcomeCommitted, first.Outcome)

	// The gateway redelivers the same webhook.
	second, err := f.engine.Reconcile(context.Background(), paystackReq(userID, "rfx-1"))
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeDuplicate, second.Outcome)

	// Nothing was double-counted.
	assert.Equal(t, int64(4900), second.Subscription.TotalPaid)
	assert.Equal(t, *first.Subscription.NextBillingAt, *second.Subscription.NextBillingAt)
	assert.Len(t, f.store.Payments(), 1)
	assert.Len(t, f.eventsOfType(billingevent.TypePaymentReconciled), 1)
	assert.Len(t, f.eventsOfType(billingevent.TypePaymentDuplicate), 1)
}

func TestReconcileRenewalStacksRemainingTime(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()

	first, err := f.engine.Reconcile(context.Background(), paystackReq(userID, "rfx-1"))
	require.NoError(t, err)
	firstBilling := *first.Subscription.NextBillingAt

	// Renew five days before the period ends; outside the double-charge
	// grace, so this is an ordinary renewal.
	f.clock.Advance(25 * 24 * time.Hour)

	second, err := f.engine.Reconcile(context.Background(), paystackReq(userID, "rfx-2"))
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeCommitted, second.Outcome)

	sub := second.Subscription
	assert.Equal(t, int64(9800), sub.TotalPaid)
	// The new period starts where the paid-for one ends, not at renewal time.
	assert.Equal(t, monthlyPlan.NextBillingDate(firstBilling), *sub.NextBillingAt)
	// First activation date is preserved across renewals.
	assert.Equal(t, *first.Subscription.StartedAt, *sub.StartedAt)
}

func TestReconcileMonotonicTotalPaid(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()

	for i := 0; i < 4; i++ {
		_, err := f.engine.Reconcile(context.Background(), paystackReq(userID, "rfx-"+string(rune('a'+i))))
		require.NoError(t, err)
		f.clock.Advance(27 * 24 * time.Hour)
	}

	sub, err := f.store.GetSubscriptionByUserID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(4*4900), sub.TotalPaid)
	assert.Len(t, f.store.Payments(), 4)
}

func TestReconcileFlagsDoubleCharge(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()

	_, err := f.engine.Reconcile(context.Background(), paystackReq(userID, "rfx-1"))
	require.NoError(t, err)

	// A second charge the same day, with nearly a month of validity left.
	res, err := f.engine.Reconcile(context.Background(), paystackReq(userID, "rfx-2"))
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeFlaggedDoubleCharge, res.Outcome)

	// Funds already moved, so the payment is committed regardless.
	assert.Equal(t, int64(9800), res.Subscription.TotalPaid)
	assert.Len(t, f.store.Payments(), 2)

	warnings := f.alerts.bySeverity(notifier.SeverityWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Subject, "double charge")

	flaggedEvents := f.eventsOfType(billingevent.TypeDoubleChargeFlagged)
	require.Len(t, flaggedEvents, 1)
	assert.Equal(t, "rfx-2", flaggedEvents[0].Data["reference"])

	recs := f.eventsOfType(billingevent.TypePaymentReconciled)
	require.Len(t, recs, 2)
	assert.Equal(t, true, recs[1].Data["requires_review"])
}

func TestReconcileVerificationFailed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	f.paystack.set(&verifier.Result{Valid: false, Message: "transaction status \"failed\""}, nil)

	_, err := f.engine.Reconcile(context.Background(), paystackReq(userID, "rfx-bad"))
	require.ErrorIs(t, err, billing.ErrVerificationFailed)
	assert.True(t, billing.IsRetryable(err))

	// Nothing is provisioned on a failed verification.
	_, err = f.store.GetSubscriptionByUserID(context.Background(), userID)
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	assert.Empty(t, f.store.Payments())

	failures := f.eventsOfType(billingevent.TypeSubscriptionFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, "rfx-bad", failures[0].Data["reference"])

	// The user gets a generic notice, not the gateway detail.
	require.Equal(t, 1, f.users.count())
}

func TestReconcileVerifierUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.paystack.set(nil, verifier.ErrVerificationUnavailable)

	_, err := f.engine.Reconcile(context.Background(), paystackReq(uuid.New(), "rfx-1"))
	require.ErrorIs(t, err, billing.ErrVerificationFailed)
	assert.ErrorIs(t, err, verifier.ErrVerificationUnavailable)
	assert.True(t, billing.IsRetryable(err))
	assert.Empty(t, f.store.Payments())
}

func TestReconcileUnsupportedPlatform(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := paystackReq(uuid.New(), "rfx-1")
	req.Platform = verifier.PlatformPaddle // not registered in this fixture

	_, err := f.engine.Reconcile(context.Background(), req)
	assert.ErrorIs(t, err, billing.ErrUnsupportedPlatform)
}

func TestReconcileCommitFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	f.store.SyncUserAccessErr = errors.New("users table unavailable")

	_, err := f.engine.Reconcile(context.Background(), paystackReq(userID, "rfx-1"))
	require.ErrorIs(t, err, billing.ErrCommitFailed)
	assert.False(t, billing.IsRetryable(err))

	// All-or-nothing: the rolled-back transaction left no partial state.
	_, err = f.store.GetSubscriptionByUserID(context.Background(), userID)
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	assert.Empty(t, f.store.Payments())
	assert.Empty(t, f.eventsOfType(billingevent.TypePaymentReconciled))

	// The money moved but nothing was provisioned: critical alert plus a
	// calm user-facing notice.
	criticals := f.alerts.bySeverity(notifier.SeverityCritical)
	require.Len(t, criticals, 1)
	assert.Contains(t, criticals[0].Subject, "not provisioned")
	assert.Equal(t, "rfx-1", criticals[0].Data["reference"])
	assert.Equal(t, 1, f.users.count())
}

func TestReconcileTrialConversion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()

	trial, err := f.engine.StartFreeTrial(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, subscription.StatusTrial, trial.Status)

	f.clock.Advance(5 * 24 * time.Hour)

	res, err := f.engine.Reconcile(context.Background(), paystackReq(userID, "rfx-1"))
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeCommitted, res.Outcome)
	assert.Equal(t, subscription.StatusActive, res.Subscription.Status)
	assert.Equal(t, int64(4900), res.Subscription.TotalPaid)
}

func TestReconcileAfterExpiredTrial(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()

	_, err := f.engine.StartFreeTrial(context.Background(), userID)
	require.NoError(t, err)

	f.clock.Advance(20 * 24 * time.Hour)

	// The lazy expiration path runs first, as it would on an access check.
	hasAccess, err := f.engine.HasAccess(context.Background(), userID)
	require.NoError(t, err)
	require.False(t, hasAccess)

	res, err := f.engine.Reconcile(context.Background(), paystackReq(userID, "rfx-late"))
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, res.Subscription.Status)
}

func TestReconcileReactivatesCancelled(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()

	_, err := f.engine.Reconcile(context.Background(), paystackReq(userID, "rfx-1"))
	require.NoError(t, err)

	_, err = f.engine.Cancel(context.Background(), userID)
	require.NoError(t, err)

	f.clock.Advance(40 * 24 * time.Hour) // past the paid-for window

	res, err := f.engine.Reconcile(context.Background(), paystackReq(userID, "rfx-2"))
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeCommitted, res.Outcome)
	assert.Equal(t, subscription.StatusActive, res.Subscription.Status)
	assert.Nil(t, res.Subscription.CancelledAt)
}
