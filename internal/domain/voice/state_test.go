package voice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextFollowsTransitionTable(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
		want State
	}{
		{StateIdle, EventDial, StateConnecting},
		{StateIdle, EventConnected, StateActive},
		{StateIdle, EventHangup, StateEnded},
		{StateConnecting, EventConnected, StateActive},
		{StateConnecting, EventFailure, StateError},
		{StateActive, EventSpeechStarted, StateSpeaking},
		{StateActive, EventSpeechStopped, StateActive},
		{StateSpeaking, EventSpeechStarted, StateSpeaking},
		{StateSpeaking, EventSpeechStopped, StateActive},
		{StateSpeaking, EventHangup, StateEnded},
		{StateActive, EventFailure, StateError},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, tc.ev)
		require.NoError(t, err, "%s on %s", tc.from, tc.ev)
		require.Equal(t, tc.want, got, "%s on %s", tc.from, tc.ev)
	}
}

func TestNextRejectsInvalidTransitions(t *testing.T) {
	invalid := []struct {
		from State
		ev   Event
	}{
		{StateIdle, EventSpeechStarted},
		{StateConnecting, EventDial},
		{StateConnecting, EventSpeechStopped},
		{StateActive, EventDial},
		{StateActive, EventConnected},
	}
	for _, tc := range invalid {
		got, err := Next(tc.from, tc.ev)
		require.ErrorIs(t, err, ErrInvalidTransition)
		require.Equal(t, tc.from, got)
	}
	for _, terminal := range []State{StateEnded, StateError} {
		for _, ev := range []Event{EventDial, EventConnected, EventSpeechStarted, EventSpeechStopped, EventHangup, EventFailure} {
			_, err := Next(terminal, ev)
			require.ErrorIs(t, err, ErrInvalidTransition)
		}
		require.True(t, terminal.Terminal())
	}
}

func TestSessionApply(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewSession("call-1", start)
	require.Equal(t, StateIdle, s.State)

	require.NoError(t, s.Apply(EventDial, start.Add(time.Second)))
	require.NoError(t, s.Apply(EventConnected, start.Add(2*time.Second)))
	require.Nil(t, s.EndedAt)

	require.ErrorIs(t, s.Apply(EventDial, start.Add(3*time.Second)), ErrInvalidTransition)
	require.Equal(t, StateActive, s.State)
	require.Equal(t, start.Add(2*time.Second), s.UpdatedAt)

	require.NoError(t, s.Apply(EventHangup, start.Add(4*time.Second)))
	require.Equal(t, StateEnded, s.State)
	require.NotNil(t, s.EndedAt)
	require.Equal(t, start.Add(4*time.Second), *s.EndedAt)
}
