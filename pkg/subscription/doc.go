// Package subscription holds the pure subscription domain model: the
// lifecycle state machine and the access-evaluation rules.
//
// The package has no storage or networking dependencies. State transitions
// are expressed as a static table consumed through Next and CanApply, and
// access is evaluated against an explicit clock value (HasAccessAt) so the
// grace-period rules are trivially testable.
//
// Persistence, payment verification and the atomic reconciliation flow live
// in the billing package; this package only answers "is this transition
// legal" and "does this snapshot grant access at this instant".
package subscription
