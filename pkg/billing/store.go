package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/billingevent"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/verifier"
)

// PaymentTransaction is one verified payment committed by the engine.
// The pair (Platform, PlatformTransactionID) is unique and acts as the
// idempotency key for the whole engine.
type PaymentTransaction struct {
	ID                    uuid.UUID
	UserID                uuid.UUID
	SubscriptionID        uuid.UUID
	Amount                int64
	Currency              string
	Status                string
	Platform              verifier.Platform
	PlatformTransactionID string
	CreatedAt             time.Time
}

// UserAccess is the denormalized access snapshot kept on the user record.
// Request-time access checks elsewhere in the product consult these fields,
// so they are synced inside the same transaction that changes the
// subscription and must never drift from it.
type UserAccess struct {
	UserID    uuid.UUID
	Tier      string
	ExpiresAt *time.Time
}

// Store is the full storage capability the engine requires, resolved once at
// construction. There is no optional-method feature detection: an
// implementation either supports everything here or cannot back the engine.
//
// Implementations provide no in-process locking; correctness rests on the
// atomicity of InTx plus the uniqueness constraints on user ID and on the
// payment idempotency key.
type Store interface {
	// InTx runs fn inside a single atomic unit of work. Writes issued
	// through the Store passed to fn commit or roll back together; fn
	// returning an error rolls everything back. Nested InTx is not
	// supported.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// GetSubscriptionByUserID returns the user's single subscription row.
	// Returns subscription.ErrSubscriptionNotFound when the user never had one.
	GetSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error)

	// CreateSubscription inserts the user's subscription row. Returns
	// subscription.ErrSubscriptionAlreadyExists when a row for the user
	// already exists, whatever its status.
	CreateSubscription(ctx context.Context, sub *subscription.Subscription) error

	// UpdateSubscription persists changes to an existing row.
	UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error

	// GetPayment looks a payment up by its idempotency key.
	// Returns ErrPaymentNotFound when the reference was never processed.
	GetPayment(ctx context.Context, platform verifier.Platform, reference string) (*PaymentTransaction, error)

	// InsertPayment appends a payment row. When the idempotency key is
	// already present (a concurrent writer won the race) it inserts
	// nothing and returns false with a nil error.
	InsertPayment(ctx context.Context, payment *PaymentTransaction) (bool, error)

	// SyncUserAccess writes the denormalized access flags on the user record.
	SyncUserAccess(ctx context.Context, access UserAccess) error

	// AppendEvent appends a billing audit event. Inside InTx the write is
	// part of the atomic unit.
	AppendEvent(ctx context.Context, event *billingevent.Event) error
}

// EventStorage adapts a Store to billingevent.Storage so the best-effort
// audit logger writes through the same billing_events table.
type EventStorage struct {
	S Store
}

func (e EventStorage) Store(ctx context.Context, event *billingevent.Event) error {
	return e.S.AppendEvent(ctx, event)
}
