// Package recovery exposes the operator-facing HTTP surface for billing
// incident recovery: re-running a reconciliation after a failed commit,
// manually activating a subscription, restarting a trial and cancelling.
//
// Every mutation routed through this module is recorded as a billing event
// with the operator's identity, so the audit trail distinguishes manual
// intervention from normal webhook processing.
//
// The router carries no authentication of its own; mount it behind the
// deployment's internal admin auth:
//
//	svc := recovery.NewService(engine, recovery.WithLogger(log))
//	r.Mount("/internal/billing", svc.Handle())
package recovery
