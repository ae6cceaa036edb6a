package verifier

import "errors"

var (
	ErrMissingAPIKey           = errors.New("verifier: API key is required")
	ErrMissingCredentials      = errors.New("verifier: platform credentials are required")
	ErrInvalidEnvironment      = errors.New("verifier: invalid environment")
	ErrInvalidReference        = errors.New("verifier: invalid payment reference")
	ErrVerificationUnavailable = errors.New("verifier: verification service unavailable")
)
