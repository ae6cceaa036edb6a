package notifier

import "errors"

var (
	ErrInvalidConfig     = errors.New("notifier: invalid configuration")
	ErrFailedToSendEmail = errors.New("notifier: failed to send email")
	ErrFailedToSendAlert = errors.New("notifier: failed to send alert")
)
