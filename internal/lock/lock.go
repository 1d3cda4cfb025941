// Package lock serializes writers that share a key, across replicas when
// backed by redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// ErrNotObtained is returned when the key stays held past the wait budget.
var ErrNotObtained = errors.New("lock: not obtained")

// retryStep is the polling interval while waiting for a held key.
const retryStep = 50 * time.Millisecond

// Release gives up a held lock. Calling it more than once is harmless.
type Release func(ctx context.Context) error

// Locker obtains exclusive, expiring locks by key.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// RedisLocker implements Locker with redislock.
type RedisLocker struct {
	client *redislock.Client
	wait   time.Duration
}

// NewRedisLocker creates a Locker over rdb that polls a held key for up to
// wait before giving up.
func NewRedisLocker(rdb redislock.RedisClient, wait time.Duration) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), wait: wait}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(retryStep), int(l.wait/retryStep)),
	}

	lk, err := l.client.Obtain(ctx, key, ttl, opts)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrNotObtained
		}
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	var once sync.Once
	return func(ctx context.Context) error {
		var relErr error
		once.Do(func() {
			// An expired lock has nothing left to release.
			if err := lk.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				relErr = fmt.Errorf("release lock %s: %w", key, err)
			}
		})
		return relErr
	}, nil
}

// LocalLocker implements Locker inside one process. TTLs are ignored since a
// crashed holder takes the whole process with it.
type LocalLocker struct {
	mu   sync.Mutex
	keys map[string]chan struct{}
	wait time.Duration
}

// NewLocalLocker creates an in-process Locker that waits up to wait for a
// held key.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{keys: make(map[string]chan struct{}), wait: wait}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.keys[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.keys[key] = ch
	}
	return ch
}

func (l *LocalLocker) Obtain(ctx context.Context, key string, _ time.Duration) (Release, error) {
	ch := l.slot(key)

	select {
	case ch <- struct{}{}:
	default:
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		select {
		case ch <- struct{}{}:
		case <-timer.C:
			return nil, ErrNotObtained
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}
