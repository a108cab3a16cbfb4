package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when a critical section is already occupied.
var ErrLockHeld = State("shared: lock already held")

// DispatchLockKey is the redis key guarding dispatcher execution. The whole
// Execute call is mutually exclusive with itself, per dispatcher instance
// group.
func DispatchLockKey(dispatcher string) string {
	return "dispatch:" + dispatcher + ":lock"
}

// Locker implements a single-holder lock on redis.
type Locker struct {
	client *redis.Client
}

// NewLocker returns a Locker backed by the given redis client.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Acquire takes the lock or fails immediately with ErrLockHeld. The returned
// release function is safe to call exactly once; the TTL bounds the damage of
// a crashed holder.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	release := func() {
		// Release only our own token so an expired-and-retaken lock is
		// not clobbered.
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		_ = l.client.Eval(context.Background(), script, []string{key}, token).Err()
	}
	return release, nil
}
