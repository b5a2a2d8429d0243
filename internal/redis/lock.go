package redisclient

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("resource lock not acquired")
)

// Locker serializes the check-and-insert section of a booking per provider
// and room. Bookings on unrelated resources never contend.
type Locker interface {
	// WithResourceLocks holds a lock on every id while fn runs. Locks are
	// taken in ascending id order; ErrLockNotAcquired is returned if one
	// cannot be taken within the locker's wait budget.
	WithResourceLocks(ctx context.Context, ids []uuid.UUID, fn func(ctx context.Context) error) error
}

const retryInterval = 20 * time.Millisecond

type redisResourceLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisResourceLocker creates a locker that uses one Redis key per
// resource. ttl bounds how long a crashed holder can block others; wait
// bounds how long a caller polls for a held key.
func NewRedisResourceLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisResourceLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func (l *redisResourceLocker) WithResourceLocks(ctx context.Context, ids []uuid.UUID, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	var held []string

	defer func() {
		// Release must run even if the request context is already gone.
		releaseCtx := context.WithoutCancel(ctx)
		for i := len(held) - 1; i >= 0; i-- {
			_ = l.release(releaseCtx, held[i], token)
		}
	}()

	for _, id := range lockOrder(ids) {
		key := fmt.Sprintf("lock:resource:%s", id.String())
		if err := l.acquire(ctx, key, token); err != nil {
			return err
		}
		held = append(held, key)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisResourceLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire resource lock: %w", err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrLockNotAcquired
		}

		t := time.NewTimer(retryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisResourceLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release resource lock: %w", err)
	}
	return nil
}

// lockOrder sorts and de-duplicates ids so that concurrent callers locking
// overlapping sets cannot deadlock.
func lockOrder(ids []uuid.UUID) []uuid.UUID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		as, bs := a.String(), b.String()
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		}
		return 0
	})
	return slices.Compact(out)
}
