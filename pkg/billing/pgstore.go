package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/pkg/billingevent"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/verifier"
)

// ErrUserNotFound means the denormalized access-flag sync targeted a user
// row that does not exist. Inside a reconciliation this rolls the whole
// unit of work back.
var ErrUserNotFound = errors.New("billing: user not found")

// dbtx is the slice of pgx shared by *pgxpool.Pool and pgx.Tx, so the same
// query methods serve both the pooled store and its in-transaction view.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore is the Postgres-backed Store.
//
// It holds no in-process locks: atomicity comes from running the unit of
// work on a single transaction, and races between concurrent reconciliations
// are resolved by the unique indexes on user_subscriptions.user_id and
// payment_transactions(platform, platform_transaction_id).
type PGStore struct {
	db   dbtx
	pool *pgxpool.Pool // nil inside a transaction
}

// NewPGStore creates a Store backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("billing: pgx pool is required")
	}
	return &PGStore{db: pool, pool: pool}
}

// InTx runs fn on a single database transaction. A nested call joins the
// enclosing transaction.
func (s *PGStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("billing: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&PGStore{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const subscriptionColumns = `id, user_id, plan_id, status,
	trial_starts_at, trial_ends_at, started_at, next_billing_at, cancelled_at,
	total_paid, last_payment_at,
	paystack_ref, appstore_original_tx_id, googleplay_token, paddle_tx_id,
	created_at, updated_at`

func (s *PGStore) GetSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE user_id = $1`, userID)

	var sub subscription.Subscription
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status,
		&sub.TrialStartsAt, &sub.TrialEndsAt, &sub.StartedAt, &sub.NextBillingAt, &sub.CancelledAt,
		&sub.TotalPaid, &sub.LastPaymentAt,
		&sub.PaystackRef, &sub.AppStoreOriginalTxID, &sub.GooglePlayToken, &sub.PaddleTxID,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: failed to load subscription: %w", err)
	}
	return &sub, nil
}

func (s *PGStore) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_subscriptions (`+subscriptionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		sub.ID, sub.UserID, sub.PlanID, sub.Status,
		sub.TrialStartsAt, sub.TrialEndsAt, sub.StartedAt, sub.NextBillingAt, sub.CancelledAt,
		sub.TotalPaid, sub.LastPaymentAt,
		sub.PaystackRef, sub.AppStoreOriginalTxID, sub.GooglePlayToken, sub.PaddleTxID,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return subscription.ErrSubscriptionAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("billing: failed to create subscription: %w", err)
	}
	return nil
}

func (s *PGStore) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE user_subscriptions SET
			plan_id = $2, status = $3,
			trial_starts_at = $4, trial_ends_at = $5,
			started_at = $6, next_billing_at = $7, cancelled_at = $8,
			total_paid = $9, last_payment_at = $10,
			paystack_ref = $11, appstore_original_tx_id = $12,
			googleplay_token = $13, paddle_tx_id = $14,
			updated_at = $15
		WHERE user_id = $1`,
		sub.UserID, sub.PlanID, sub.Status,
		sub.TrialStartsAt, sub.TrialEndsAt,
		sub.StartedAt, sub.NextBillingAt, sub.CancelledAt,
		sub.TotalPaid, sub.LastPaymentAt,
		sub.PaystackRef, sub.AppStoreOriginalTxID, sub.GooglePlayToken, sub.PaddleTxID,
		sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("billing: failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}

func (s *PGStore) GetPayment(ctx context.Context, platform verifier.Platform, reference string) (*PaymentTransaction, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, subscription_id, amount, currency, status,
		       platform, platform_transaction_id, created_at
		FROM payment_transactions
		WHERE platform = $1 AND platform_transaction_id = $2`,
		platform, reference)

	var p PaymentTransaction
	err := row.Scan(
		&p.ID, &p.UserID, &p.SubscriptionID, &p.Amount, &p.Currency, &p.Status,
		&p.Platform, &p.PlatformTransactionID, &p.CreatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: failed to load payment: %w", err)
	}
	return &p, nil
}

// InsertPayment appends the payment row, letting the unique index absorb
// the race between concurrent reconciliations of the same reference.
func (s *PGStore) InsertPayment(ctx context.Context, payment *PaymentTransaction) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO payment_transactions
			(id, user_id, subscription_id, amount, currency, status,
			 platform, platform_transaction_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (platform, platform_transaction_id) DO NOTHING`,
		payment.ID, payment.UserID, payment.SubscriptionID,
		payment.Amount, payment.Currency, payment.Status,
		payment.Platform, payment.PlatformTransactionID, payment.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("billing: failed to insert payment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) SyncUserAccess(ctx context.Context, access UserAccess) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET subscription_tier = $2, subscription_expires_at = $3
		WHERE id = $1`,
		access.UserID, access.Tier, access.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("billing: failed to sync user access flags: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, access.UserID)
	}
	return nil
}

func (s *PGStore) AppendEvent(ctx context.Context, event *billingevent.Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO billing_events
			(id, user_id, event_type, event_data, processed, processing_error, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		event.ID, event.UserID, event.Type, event.Data,
		event.Processed, event.ProcessingError, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("billing: failed to append billing event: %w", err)
	}
	return nil
}
