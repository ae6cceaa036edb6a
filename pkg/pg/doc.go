// Package pg bootstraps the PostgreSQL layer for the billing engine:
// a pgx/v5 connection pool with startup retry, goose schema migrations,
// a health check closure, and error-classification helpers.
//
// The helpers matter more here than in most services: IsDuplicateKeyError
// is how the store maps unique-index violations onto the engine's
// idempotency and one-subscription-per-user semantics.
package pg
