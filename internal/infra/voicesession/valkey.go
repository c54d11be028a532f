package voicesession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/voice-faq/internal/domain/voice"
)

const maxUpdateAttempts = 16

// errUpdateConflict reports that concurrent writers kept replacing the session.
var errUpdateConflict = errors.New("voice session update conflict")

// compareAndSet writes ARGV[2] only while the key still holds ARGV[1] ("" meaning absent).
// ARGV[3] is the TTL in milliseconds, 0 for none.
var compareAndSet = valkey.NewLuaScript(`
local current = redis.call('GET', KEYS[1])
if current == false then current = '' end
if current ~= ARGV[1] then return 0 end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// ValkeyRepository stores JSON session snapshots in Valkey so replicas share call state.
type ValkeyRepository struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
}

// NewValkeyRepository constructs the repository.
func NewValkeyRepository(client valkey.Client, prefix string, ttl time.Duration) *ValkeyRepository {
	if prefix == "" {
		prefix = "voicefaq"
	}
	return &ValkeyRepository{client: client, prefix: prefix, ttl: ttl}
}

// Get implements voice.Repository.
func (r *ValkeyRepository) Get(ctx context.Context, id string) (voice.Session, bool, error) {
	if strings.TrimSpace(id) == "" {
		return voice.Session{}, false, nil
	}
	payload, err := r.raw(ctx, r.sessionKey(id))
	if err != nil || payload == "" {
		return voice.Session{}, false, err
	}
	var session voice.Session
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return voice.Session{}, false, fmt.Errorf("decode session %s: %w", id, err)
	}
	return session, true, nil
}

// Save implements voice.Repository.
func (r *ValkeyRepository) Save(ctx context.Context, session voice.Session) error {
	if strings.TrimSpace(session.ID) == "" {
		return errors.New("session id cannot be empty")
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	key := r.sessionKey(session.ID)
	if r.ttl > 0 {
		return r.client.Do(ctx, r.client.B().Set().Key(key).Value(string(payload)).Ex(r.ttl).Build()).Error()
	}
	return r.client.Do(ctx, r.client.B().Set().Key(key).Value(string(payload)).Build()).Error()
}

// Update implements voice.Repository with an optimistic compare-and-set loop.
func (r *ValkeyRepository) Update(ctx context.Context, id string, fn voice.UpdateFunc) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session id cannot be empty")
	}
	key := r.sessionKey(id)
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := r.raw(ctx, key)
		if err != nil {
			return err
		}
		var session voice.Session
		if current != "" {
			if err := json.Unmarshal([]byte(current), &session); err != nil {
				return fmt.Errorf("decode session %s: %w", id, err)
			}
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
		next, err := json.Marshal(session)
		if err != nil {
			return err
		}
		ttl := strconv.FormatInt(r.ttl.Milliseconds(), 10)
		ok, err := compareAndSet.Exec(ctx, r.client, []string{key}, []string{current, string(next), ttl}).AsInt64()
		if err != nil {
			return fmt.Errorf("save session %s: %w", id, err)
		}
		if ok == 1 {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", errUpdateConflict, id)
}

// raw returns the stored payload, or "" when the key is absent.
func (r *ValkeyRepository) raw(ctx context.Context, key string) (string, error) {
	payload, err := r.client.Do(ctx, r.client.B().Get().Key(key).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", nil
	}
	return payload, err
}

func (r *ValkeyRepository) sessionKey(id string) string {
	return fmt.Sprintf("%s:voice:session:%s", r.prefix, id)
}

var _ voice.Repository = (*ValkeyRepository)(nil)
