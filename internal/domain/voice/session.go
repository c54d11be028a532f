package voice

import (
	"context"
	"errors"
	"time"
)

// TranscriptLine is one final utterance.
type TranscriptLine struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session is the server-side view of one voice call.
type Session struct {
	ID          string           `json:"id"`
	State       State            `json:"state"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	EndedAt     *time.Time       `json:"endedAt,omitempty"`
	EndedReason string           `json:"endedReason,omitempty"`
	LastError   string           `json:"lastError,omitempty"`
	ToolCalls   int              `json:"toolCalls"`
	Transcript  []TranscriptLine `json:"transcript"`
}

// NewSession starts a session in the idle state.
func NewSession(id string, now time.Time) Session {
	return Session{ID: id, State: StateIdle, CreatedAt: now, UpdatedAt: now, Transcript: []TranscriptLine{}}
}

// Apply moves the session along the state machine. The session is unchanged on error.
func (s *Session) Apply(ev Event, now time.Time) error {
	next, err := Next(s.State, ev)
	if err != nil {
		return err
	}
	s.State = next
	s.UpdatedAt = now
	if next.Terminal() {
		ended := now
		s.EndedAt = &ended
	}
	return nil
}

// ErrUnchanged returned from an update function skips the write.
var ErrUnchanged = errors.New("voice: session unchanged")

// UpdateFunc mutates a session in place. A session with an empty ID was not stored yet.
type UpdateFunc func(session *Session) error

// Repository persists session snapshots keyed by call id.
type Repository interface {
	Get(ctx context.Context, id string) (Session, bool, error)
	Save(ctx context.Context, session Session) error
	// Update runs fn against the latest stored session and writes the result atomically
	// with respect to other updates of the same id.
	Update(ctx context.Context, id string, fn UpdateFunc) error
}
