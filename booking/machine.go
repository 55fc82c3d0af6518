// Package booking implements the intake conversation as a pure state machine.
// All transition functions take the current state and collected fields and
// return the successor state, the updated fields, and the messages to send.
// Nothing in this package performs I/O; callers own delivery and persistence
// of per-user state.
package booking

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// State identifies the conversation step a session is in.
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingClientName State = "awaiting_client_name"
	StateAwaitingContact    State = "awaiting_contact"
	StateAwaitingType       State = "awaiting_session_type"
	StateAwaitingDate       State = "awaiting_date"
	StateAwaitingTime       State = "awaiting_time"
	StateAwaitingPeople     State = "awaiting_people"
	StateAwaitingPrice      State = "awaiting_total_price"
)

// Field keys used in the collected-fields map and the summary.
const (
	FieldClientName = "client_name"
	FieldContact    = "contact"
	FieldType       = "session_type"
	FieldDate       = "date"
	FieldTime       = "time"
	FieldPeople     = "people"
	FieldPrice      = "total_price"
)

// Fields holds the values collected so far, keyed by field name.
type Fields map[string]string

// Target selects the destination of an outbound message.
type Target int

const (
	// TargetUser addresses the user driving the conversation.
	TargetUser Target = iota
	// TargetBroadcast addresses the fixed summary destination.
	TargetBroadcast
)

// Outbound is a single message the caller must deliver, in order.
type Outbound struct {
	Target Target
	Text   string
}

// Prompts and notices shown to the user.
const (
	msgWelcome       = "Welcome to the Booking bot! Please enter the Client Name:"
	msgRestart       = "Restarting the booking process. Please enter the Client Name:"
	msgCancelled     = "Booking cancelled."
	msgNoActive      = "No active booking."
	msgAskContact    = "Got it! Now, please enter the Contact:"
	msgAskType       = "Please enter the Type:"
	msgAskDate       = "Please enter the Date (dd/mm/yyyy):"
	msgAskTime       = "Please enter the Time:"
	msgAskPeople     = "Please enter the number of People:"
	msgAskPrice      = "Finally, please enter the Total Price:"
	msgInvalidPeople = "Please enter a whole number greater than zero for People:"
	msgInvalidPrice  = "Please enter a price greater than zero for the Total Price:"
	msgDone          = "Booking created successfully!"
)

// Start begins a fresh collection run. Starting over an active session
// discards anything collected so far.
func Start(st State, f Fields) (State, Fields, []Outbound) {
	return StateAwaitingClientName, Fields{}, []Outbound{{TargetUser, msgWelcome}}
}

// Restart behaves like Start but acknowledges the reset.
func Restart(st State, f Fields) (State, Fields, []Outbound) {
	return StateAwaitingClientName, Fields{}, []Outbound{{TargetUser, msgRestart}}
}

// Cancel abandons the session. Cancelling without an active session is a no-op
// beyond telling the user so.
func Cancel(st State, f Fields) (State, Fields, []Outbound) {
	if st == StateIdle || st == "" {
		return StateIdle, Fields{}, []Outbound{{TargetUser, msgNoActive}}
	}
	return StateIdle, Fields{}, []Outbound{{TargetUser, msgCancelled}}
}

// Advance feeds one line of user text into the machine. Free-text steps accept
// any non-empty input verbatim; the people and price steps re-prompt on
// invalid input without mutating fields or state. Completing the final step
// yields the broadcast summary followed by the user confirmation, in that
// order.
func Advance(st State, f Fields, input string) (State, Fields, []Outbound) {
	text := strings.TrimSpace(input)

	switch st {
	case StateAwaitingClientName:
		return capture(f, FieldClientName, text, st, StateAwaitingContact, msgAskContact, msgWelcome)
	case StateAwaitingContact:
		return capture(f, FieldContact, text, st, StateAwaitingType, msgAskType, msgAskContact)
	case StateAwaitingType:
		return capture(f, FieldType, text, st, StateAwaitingDate, msgAskDate, msgAskType)
	case StateAwaitingDate:
		return capture(f, FieldDate, text, st, StateAwaitingTime, msgAskTime, msgAskDate)
	case StateAwaitingTime:
		return capture(f, FieldTime, text, st, StateAwaitingPeople, msgAskPeople, msgAskTime)
	case StateAwaitingPeople:
		if !validPeople(text) {
			return st, f, []Outbound{{TargetUser, msgInvalidPeople}}
		}
		return StateAwaitingPrice, withField(f, FieldPeople, text), []Outbound{{TargetUser, msgAskPrice}}
	case StateAwaitingPrice:
		if !validPrice(text) {
			return st, f, []Outbound{{TargetUser, msgInvalidPrice}}
		}
		done := withField(f, FieldPrice, text)
		return StateIdle, Fields{}, []Outbound{
			{TargetBroadcast, Summary(done)},
			{TargetUser, msgDone},
		}
	default:
		// Nothing in flight; the caller decides how to hint at /start.
		return StateIdle, f, nil
	}
}

// Summary renders the completed booking as the broadcast message.
func Summary(f Fields) string {
	return fmt.Sprintf(
		"Client Name: %s\nContact: %s\nType: %s\nDate: %s\nTime: %s\nPeople: %s\nTotal Price: %s",
		f[FieldClientName], f[FieldContact], f[FieldType],
		f[FieldDate], f[FieldTime], f[FieldPeople], f[FieldPrice],
	)
}

// capture stores a free-text field and advances, or re-prompts on empty input.
func capture(f Fields, key, text string, st, next State, nextPrompt, reprompt string) (State, Fields, []Outbound) {
	if text == "" {
		return st, f, []Outbound{{TargetUser, reprompt}}
	}
	return next, withField(f, key, text), []Outbound{{TargetUser, nextPrompt}}
}

func withField(f Fields, key, value string) Fields {
	out := make(Fields, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	out[key] = value
	return out
}

func validPeople(text string) bool {
	n, err := strconv.Atoi(text)
	return err == nil && n > 0
}

func validPrice(text string) bool {
	v, err := strconv.ParseFloat(text, 64)
	return err == nil && v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
