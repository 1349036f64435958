package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	infracontext "github.com/jonesrussell/north-cloud/linksync/infrastructure/context"
	infraredis "github.com/jonesrussell/north-cloud/linksync/infrastructure/redis"
)

const lockKeyPrefix = "linksync:job:"

// Locker prevents overlapping runs of the same job. Acquire returns ok=false
// without error when another run holds the lock.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(), ok bool, err error)
}

// LocalLocker is an in-process Locker used when Redis is disabled.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalLocker creates an empty process-local locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) Acquire(_ context.Context, name string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, true, nil
}

// RedisLocker shares job locks across processes through SETNX.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	onErr  func(name string, err error)
}

// NewRedisLocker creates a locker whose locks expire after ttl.
func NewRedisLocker(client *redis.Client, ttl time.Duration, onErr func(name string, err error)) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, onErr: onErr}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (func(), bool, error) {
	lock := infraredis.NewLock(l.client, lockKeyPrefix+name, l.ttl)
	ok, err := lock.TryLock(ctx)
	if err != nil || !ok {
		return nil, false, err
	}

	return func() {
		// The run context may already be cancelled.
		releaseCtx, cancel := infracontext.Detached(ctx)
		defer cancel()
		if unlockErr := lock.Unlock(releaseCtx); unlockErr != nil && l.onErr != nil {
			if errors.Is(unlockErr, infraredis.ErrLockNotHeld) {
				unlockErr = errors.New("lock expired before the run finished")
			}
			l.onErr(name, unlockErr)
		}
	}, true, nil
}
