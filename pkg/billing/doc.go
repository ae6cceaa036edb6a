// Package billing is the subscription reconciliation engine: it turns an
// externally verified payment into durable, consistent subscription state
// under at-least-once webhook delivery and concurrent retries.
//
// # Reconciliation
//
// Reconcile runs in two phases. Verification talks to the payment platform
// first, with its own timeout, so no network latency is ever incurred while
// a database transaction is open. The second phase is a single atomic unit
// of work that checks the idempotency key, upserts the user's subscription,
// syncs the denormalized access flags on the user record, appends the
// payment row under the uniqueness constraint, and writes the success audit
// event. Everything commits or rolls back together.
//
// Concurrency control is the database's: the unique index on
// (platform, platform_transaction_id) is the idempotency key, and the loser
// of a concurrent race over it is reported as a duplicate outcome, not an
// error. The engine never retries a reconciliation itself - an ambiguous
// failure after money moved is escalated to an operator instead of being
// driven through a second charge path.
//
// # Lifecycle
//
// StartFreeTrial, CheckTrialExpiration, Cancel and HasAccess cover the rest
// of the subscription lifecycle. Trials are a lifetime one-shot; expiration
// is evaluated lazily on read; cancellation keeps the already-paid-for
// window open. ManualActivate and RestartTrial are the support-driven
// recovery entry points and reuse the same primitives.
//
// # Stores
//
// PGStore is the production implementation on pgx; MemStore backs tests and
// local development with the same transactional semantics.
package billing
