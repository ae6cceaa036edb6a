// Package verifier contains the payment verification adapters, one per
// supported payment platform.
//
// Every adapter implements the Verifier interface: it takes the opaque
// reference the platform handed to the client (a transaction reference, a
// base64 receipt, a purchase token) and turns it into a normalized Result.
// Adapters are read-only and idempotent - webhook redelivery means the same
// reference will be verified more than once - and each is injected into the
// billing engine independently so tests can substitute any platform without
// touching the others.
//
// Supported platforms:
//
//   - Paystack: recurring card charges, GET transaction/verify.
//   - App Store: receipt verification with the documented production to
//     sandbox fallback on status 21007.
//   - Google Play: publisher API subscription purchase lookup with a
//     guarded credential-less development mode.
//   - Paddle: web checkout transactions via the official SDK.
package verifier
