package voicesession

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yanqian/voice-faq/internal/domain/voice"
)

type memoryRecord struct {
	session   voice.Session
	expiresAt time.Time
}

// MemoryRepository keeps sessions in process memory with an optional TTL.
type MemoryRepository struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]memoryRecord
	now      func() time.Time
}

// NewMemoryRepository constructs a repository backed by process memory.
func NewMemoryRepository(ttl time.Duration) *MemoryRepository {
	return &MemoryRepository{ttl: ttl, sessions: make(map[string]memoryRecord), now: time.Now}
}

// Get implements voice.Repository.
func (r *MemoryRepository) Get(_ context.Context, id string) (voice.Session, bool, error) {
	r.mu.RLock()
	rec, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return voice.Session{}, false, nil
	}
	if !rec.expiresAt.IsZero() && r.now().After(rec.expiresAt) {
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
		return voice.Session{}, false, nil
	}
	return cloneSession(rec.session), true, nil
}

// Save implements voice.Repository.
func (r *MemoryRepository) Save(_ context.Context, session voice.Session) error {
	exp := r.expiry(r.now())
	r.mu.Lock()
	r.sessions[session.ID] = memoryRecord{session: cloneSession(session), expiresAt: exp}
	r.mu.Unlock()
	return nil
}

// Update implements voice.Repository. The whole read-modify-write holds the write lock.
func (r *MemoryRepository) Update(_ context.Context, id string, fn voice.UpdateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var session voice.Session
	if rec, ok := r.sessions[id]; ok && (rec.expiresAt.IsZero() || !now.After(rec.expiresAt)) {
		session = cloneSession(rec.session)
	}
	if err := fn(&session); err != nil {
		if errors.Is(err, voice.ErrUnchanged) {
			return nil
		}
		return err
	}
	if session.ID == "" {
		session.ID = id
	}
	r.sessions[id] = memoryRecord{session: cloneSession(session), expiresAt: r.expiry(now)}
	return nil
}

func (r *MemoryRepository) expiry(now time.Time) time.Time {
	if r.ttl <= 0 {
		return time.Time{}
	}
	return now.Add(r.ttl)
}

func cloneSession(s voice.Session) voice.Session {
	s.Transcript = append([]voice.TranscriptLine(nil), s.Transcript...)
	if s.EndedAt != nil {
		ended := *s.EndedAt
		s.EndedAt = &ended
	}
	return s
}

var _ voice.Repository = (*MemoryRepository)(nil)
