package voice

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of one call.
type State string

// Call states.
const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateSpeaking   State = "speaking"
	StateEnded      State = "ended"
	StateError      State = "error"
)

// Event is a named trigger derived from a platform message.
type Event string

// Machine events.
const (
	EventDial          Event = "dial"
	EventConnected     Event = "connected"
	EventSpeechStarted Event = "speech_started"
	EventSpeechStopped Event = "speech_stopped"
	EventHangup        Event = "hangup"
	EventFailure       Event = "failure"
)

// ErrInvalidTransition is returned when an event is not allowed in the current state.
var ErrInvalidTransition = errors.New("invalid voice session transition")

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventDial:      StateConnecting,
		EventConnected: StateActive,
		EventHangup:    StateEnded,
		EventFailure:   StateError,
	},
	StateConnecting: {
		EventConnected: StateActive,
		EventHangup:    StateEnded,
		EventFailure:   StateError,
	},
	StateActive: {
		EventSpeechStarted: StateSpeaking,
		EventSpeechStopped: StateActive,
		EventHangup:        StateEnded,
		EventFailure:       StateError,
	},
	StateSpeaking: {
		EventSpeechStarted: StateSpeaking,
		EventSpeechStopped: StateActive,
		EventHangup:        StateEnded,
		EventFailure:       StateError,
	},
}

// Next returns the state reached from s on ev.
func Next(s State, ev Event) (State, error) {
	next, ok := transitions[s][ev]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, s, ev)
	}
	return next, nil
}

// Terminal reports whether no further events are accepted.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateError
}
