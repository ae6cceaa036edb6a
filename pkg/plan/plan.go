package plan

import "time"

// Interval represents the billing frequency of a plan.
type Interval string

const (
	IntervalMonthly Interval = "monthly"
	IntervalYearly  Interval = "yearly"
)

// Plan describes an immutable subscription plan.
// Price is expressed in the smallest currency unit (cents, kobo, etc.)
// so that arithmetic stays integer-exact.
type Plan struct {
	ID          string
	Name        string
	DisplayName string
	Price       int64
	Currency    string // ISO 4217 code
	Interval    Interval
	TrialDays   int
}

// NextBillingDate returns the end of the billing period that starts at from.
// Monthly plans clamp to the last day of the target month so that a
// subscription started on Jan 31 renews on Feb 28/29, not Mar 2.
func (p Plan) NextBillingDate(from time.Time) time.Time {
	from = from.UTC()
	switch p.Interval {
	case IntervalYearly:
		return addMonthsClamped(from, 12)
	default:
		return addMonthsClamped(from, 1)
	}
}

// TrialEndsAt calculates when a trial started at startedAt ends.
// Returns startedAt unchanged for plans without a trial.
func (p Plan) TrialEndsAt(startedAt time.Time) time.Time {
	if p.TrialDays <= 0 {
		return startedAt.UTC()
	}
	return startedAt.UTC().AddDate(0, 0, p.TrialDays)
}

// addMonthsClamped adds months to t, clamping the day of month instead of
// letting time.AddDate normalize overflow into the following month.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
