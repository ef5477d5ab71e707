package orders

import (
	"errors"
	"fmt"
)

// State is an order lifecycle state.
type State string

const (
	StateCreated           State = "CREATED"
	StatePaymentPending    State = "PAYMENT_PENDING"
	StatePaymentFailed     State = "PAYMENT_FAILED"
	StatePaymentSuccess    State = "PAYMENT_SUCCESS"
	StateInventoryReserved State = "INVENTORY_RESERVED"
	StateCancelled         State = "CANCELLED"
	StateCompleted         State = "COMPLETED"
)

// ErrInvalidTransition reports a state change that is not in the transition
// table. Callers must treat it as a logic bug or lost update, never as a
// retriable condition.
var ErrInvalidTransition = errors.New("invalid state transition")

// transitions is the exhaustive table of legal state changes. Any pair not
// listed is invalid.
var transitions = map[State][]State{
	StateCreated:           {StatePaymentPending, StateCancelled},
	StatePaymentPending:    {StatePaymentSuccess, StatePaymentFailed, StateCancelled},
	StatePaymentFailed:     {StatePaymentPending, StateCancelled}, // payment retry
	StatePaymentSuccess:    {StateInventoryReserved, StateCancelled},
	StateInventoryReserved: {StateCompleted, StateCancelled},
	StateCancelled:         {}, // terminal
	StateCompleted:         {}, // terminal
}

// CanTransition reports whether current -> next is a legal state change.
func CanTransition(current, next State) bool {
	for _, s := range transitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// Transition validates current -> next against the table and returns next.
// Same-state metadata updates are not transitions and must not go through here.
func Transition(current, next State) (State, error) {
	if !CanTransition(current, next) {
		return current, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}
	return next, nil
}

// IsTerminal reports whether s has no outgoing transitions.
func IsTerminal(s State) bool {
	return len(transitions[s]) == 0
}
