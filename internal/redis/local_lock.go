package redisclient

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalLocker is the single-process Locker used when no Redis address is
// configured. Each resource has a one-slot channel acting as its mutex.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]chan struct{}
	wait  time.Duration
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		slots: make(map[uuid.UUID]chan struct{}),
		wait:  wait,
	}
}

func (l *LocalLocker) slot(id uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[id] = ch
	}
	return ch
}

func (l *LocalLocker) WithResourceLocks(ctx context.Context, ids []uuid.UUID, fn func(ctx context.Context) error) error {
	var held []chan struct{}
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	for _, id := range lockOrder(ids) {
		ch := l.slot(id)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-timer.C:
			return ErrLockNotAcquired
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fn(ctx)
}

var _ Locker = (*LocalLocker)(nil)
