package billingevent

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies billing audit events.
type Type string

const (
	TypeTrialStarted          Type = "trial_started"
	TypeTrialExpired          Type = "trial_expired"
	TypePaymentReconciled     Type = "payment_reconciled"
	TypePaymentDuplicate      Type = "payment_duplicate_ignored"
	TypeSubscriptionFailed    Type = "subscription_failed"
	TypeSubscriptionCancelled Type = "subscription_cancelled"
	TypeDoubleChargeFlagged   Type = "double_charge_flagged"
	TypeManualOverride        Type = "manual_override"
)

// Event is a single append-only billing audit record.
// Rows are never updated after insert except for Processed and
// ProcessingError, which are the logger's own retry bookkeeping.
type Event struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Type            Type
	Data            map[string]any
	Processed       bool
	ProcessingError string
	CreatedAt       time.Time
}
