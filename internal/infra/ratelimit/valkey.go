package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// FixedWindow counts requests per key and minute in Valkey, shared by every replica.
type FixedWindow struct {
	client valkey.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewFixedWindow allows limit requests per key in each one-minute window.
func NewFixedWindow(client valkey.Client, prefix string, limit int) *FixedWindow {
	if prefix == "" {
		prefix = "voicefaq"
	}
	return &FixedWindow{client: client, prefix: prefix, limit: int64(limit), window: time.Minute, now: time.Now}
}

// Allow implements Limiter.
func (l *FixedWindow) Allow(ctx context.Context, key string) (bool, error) {
	windowKey := l.windowKey(key, l.now())
	count, err := l.client.Do(ctx, l.client.B().Incr().Key(windowKey).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("increment rate counter: %w", err)
	}
	if count == 1 {
		expiry := int64(l.window/time.Second) + 1
		if err := l.client.Do(ctx, l.client.B().Expire().Key(windowKey).Seconds(expiry).Build()).Error(); err != nil {
			return false, fmt.Errorf("expire rate counter: %w", err)
		}
	}
	return count <= l.limit, nil
}

func (l *FixedWindow) windowKey(key string, now time.Time) string {
	return fmt.Sprintf("%s:ratelimit:%s:%d", l.prefix, key, now.Unix()/int64(l.window/time.Second))
}
