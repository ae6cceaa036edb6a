// Package notifier defines the outbound notification collaborators of the
// billing engine: user-facing billing notices and operator alerts.
//
// The engine only depends on the UserNotifier and AlertNotifier interfaces.
// Production wires the Postmark adapter, optionally behind the Redis-backed
// AlertThrottle so webhook redelivery does not page operators twice for the
// same condition; development and tests use LogNotifier.
package notifier
