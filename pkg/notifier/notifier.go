package notifier

import (
	"context"

	"github.com/google/uuid"
)

// Severity classifies operator alerts.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is an operator-facing notification. Critical alerts are reserved
// for situations needing manual remediation, such as a payment that was
// collected by the gateway but could not be provisioned.
type Alert struct {
	Severity Severity
	Subject  string
	Message  string
	Data     map[string]any
}

// AlertNotifier delivers operator alerts.
type AlertNotifier interface {
	Alert(ctx context.Context, alert Alert) error
}

// UserNotice is a user-facing billing message. Users get a generic,
// non-technical text; the detail stays in the operator alert.
type UserNotice struct {
	UserID  uuid.UUID
	Email   string
	Subject string
	Message string
}

// UserNotifier delivers user-facing billing notices.
type UserNotifier interface {
	NotifyUser(ctx context.Context, notice UserNotice) error
}
