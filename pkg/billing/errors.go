package billing

import "errors"

var (
	// ErrUnsupportedPlatform means no verifier is registered for the
	// requested payment platform.
	ErrUnsupportedPlatform = errors.New("billing: unsupported payment platform")

	// ErrVerificationFailed means the gateway reported the reference
	// invalid, or the verification call could not complete. Nothing was
	// written; the caller may retry.
	ErrVerificationFailed = errors.New("billing: payment verification failed")

	// ErrCommitFailed means the reconciliation transaction rolled back
	// after a successful verification. The user may have been charged
	// without being provisioned; an operator alert has been raised and the
	// caller must NOT retry automatically.
	ErrCommitFailed = errors.New("billing: reconciliation commit failed")

	// ErrPaymentNotFound is returned by Store.GetPayment for unknown
	// idempotency keys.
	ErrPaymentNotFound = errors.New("billing: payment transaction not found")

	// ErrTrialAlreadyUsed rejects a free trial for a user with any
	// subscription row, whatever its status. One trial per lifetime.
	ErrTrialAlreadyUsed = errors.New("billing: free trial already used")
)

// IsRetryable reports whether the caller (typically a webhook handler) may
// safely ask the gateway to redeliver and try again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}
