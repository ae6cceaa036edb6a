package subscription

// Event represents something that can move a subscription between states.
type Event string

const (
	// EventStartTrial issues a free trial. Only valid for users with no
	// subscription row at all; the trial is a lifetime one-shot.
	EventStartTrial Event = "start_trial"

	// EventVerifiedPayment activates, renews or reactivates a subscription
	// after a payment has been verified with the gateway.
	EventVerifiedPayment Event = "verified_payment"

	// EventCancel cancels an active subscription.
	EventCancel Event = "cancel"

	// EventExpire marks a trial as expired. Evaluated lazily on read,
	// never by a background sweep.
	EventExpire Event = "expire"
)

// transitions is the full set of legal state changes. Anything absent here
// is rejected.
var transitions = map[Event]map[Status]Status{
	EventStartTrial: {
		StatusNone: StatusTrial,
	},
	EventVerifiedPayment: {
		StatusNone:      StatusActive, // first activation, never trialed
		StatusTrial:     StatusActive, // trial conversion
		StatusActive:    StatusActive, // renewal
		StatusCancelled: StatusActive, // reactivation
		StatusExpired:   StatusActive, // paid after trial ran out
	},
	EventCancel: {
		StatusActive: StatusCancelled,
	},
	EventExpire: {
		StatusTrial: StatusExpired,
	},
}

// Next returns the state that results from applying event in state from.
// Returns ErrInvalidTransition when the pair is not a legal transition.
func Next(from Status, event Event) (Status, error) {
	to, ok := transitions[event][from]
	if !ok {
		return from, &InvalidTransitionError{From: from, Event: event}
	}
	return to, nil
}

// CanApply reports whether event is legal in state from.
func CanApply(from Status, event Event) bool {
	_, ok := transitions[event][from]
	return ok
}
