package billing

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/billingevent"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/verifier"
)

type paymentKey struct {
	platform  verifier.Platform
	reference string
}

// MemStore is an in-memory Store for tests and local development.
// InTx takes a snapshot and restores it when the callback fails, giving the
// same all-or-nothing semantics as the Postgres store.
//
// The error hooks let tests force individual writes to fail and assert that
// nothing from the attempt persists.
type MemStore struct {
	mu       sync.Mutex
	subs     map[uuid.UUID]subscription.Subscription
	payments map[paymentKey]PaymentTransaction
	access   map[uuid.UUID]UserAccess
	events   []billingevent.Event

	SyncUserAccessErr error
	AppendEventErr    error
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		subs:     make(map[uuid.UUID]subscription.Subscription),
		payments: make(map[paymentKey]PaymentTransaction),
		access:   make(map[uuid.UUID]UserAccess),
	}
}

// InTx runs fn under the store lock, restoring the pre-transaction snapshot
// when fn fails.
func (m *MemStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := maps.Clone(m.subs)
	payments := maps.Clone(m.payments)
	access := maps.Clone(m.access)
	events := slices.Clone(m.events)

	if err := fn(&memTx{m}); err != nil {
		m.subs = subs
		m.payments = payments
		m.access = access
		m.events = events
		return err
	}
	return nil
}

func (m *MemStore) GetSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getSubscription(userID)
}

func (m *MemStore) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createSubscription(sub)
}

func (m *MemStore) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateSubscription(sub)
}

func (m *MemStore) GetPayment(ctx context.Context, platform verifier.Platform, reference string) (*PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getPayment(platform, reference)
}

func (m *MemStore) InsertPayment(ctx context.Context, payment *PaymentTransaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertPayment(payment)
}

func (m *MemStore) SyncUserAccess(ctx context.Context, access UserAccess) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncUserAccess(access)
}

func (m *MemStore) AppendEvent(ctx context.Context, event *billingevent.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEvent(event)
}

// Payments returns all stored payment rows. Test helper.
func (m *MemStore) Payments() []PaymentTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PaymentTransaction, 0, len(m.payments))
	for _, p := range m.payments {
		out = append(out, p)
	}
	return out
}

// Events returns all stored audit events. Test helper.
func (m *MemStore) Events() []billingevent.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// Access returns the denormalized access flags for a user. Test helper.
func (m *MemStore) Access(userID uuid.UUID) (UserAccess, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.access[userID]
	return a, ok
}

// Unlocked internals shared by the plain store and the in-transaction view.

func (m *MemStore) getSubscription(userID uuid.UUID) (*subscription.Subscription, error) {
	sub, ok := m.subs[userID]
	if !ok {
		return nil, subscription.ErrSubscriptionNotFound
	}
	cp := sub
	return &cp, nil
}

func (m *MemStore) createSubscription(sub *subscription.Subscription) error {
	if _, exists := m.subs[sub.UserID]; exists {
		return subscription.ErrSubscriptionAlreadyExists
	}
	m.subs[sub.UserID] = *sub
	return nil
}

func (m *MemStore) updateSubscription(sub *subscription.Subscription) error {
	if _, exists := m.subs[sub.UserID]; !exists {
		return subscription.ErrSubscriptionNotFound
	}
	m.subs[sub.UserID] = *sub
	return nil
}

func (m *MemStore) getPayment(platform verifier.Platform, reference string) (*PaymentTransaction, error) {
	p, ok := m.payments[paymentKey{platform, reference}]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := p
	return &cp, nil
}

func (m *MemStore) insertPayment(payment *PaymentTransaction) (bool, error) {
	key := paymentKey{payment.Platform, payment.PlatformTransactionID}
	if _, exists := m.payments[key]; exists {
		return false, nil
	}
	m.payments[key] = *payment
	return true, nil
}

func (m *MemStore) syncUserAccess(access UserAccess) error {
	if m.SyncUserAccessErr != nil {
		return m.SyncUserAccessErr
	}
	m.access[access.UserID] = access
	return nil
}

func (m *MemStore) appendEvent(event *billingevent.Event) error {
	if m.AppendEventErr != nil {
		return m.AppendEventErr
	}
	m.events = append(m.events, *event)
	return nil
}

// memTx is the in-transaction view of a MemStore; the lock is already held.
type memTx struct {
	m *MemStore
}

// InTx flattens: nested transactions join the enclosing one.
func (t *memTx) InTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *memTx) GetSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	return t.m.getSubscription(userID)
}

func (t *memTx) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	return t.m.createSubscription(sub)
}

func (t *memTx) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	return t.m.updateSubscription(sub)
}

func (t *memTx) GetPayment(ctx context.Context, platform verifier.Platform, reference string) (*PaymentTransaction, error) {
	return t.m.getPayment(platform, reference)
}

func (t *memTx) InsertPayment(ctx context.Context, payment *PaymentTransaction) (bool, error) {
	return t.m.insertPayment(payment)
}

func (t *memTx) SyncUserAccess(ctx context.Context, access UserAccess) error {
	return t.m.syncUserAccess(access)
}

func (t *memTx) AppendEvent(ctx context.Context, event *billingevent.Event) error {
	return t.m.appendEvent(event)
}
