// Package synclock serializes provider sync runs across processes that share
// one Redis.
package synclock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ppob_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "ppob:sync:lock:"

	// DefaultTTL bounds how long a crashed holder blocks a provider. Live
	// holders extend the lock every third of it.
	DefaultTTL = time.Minute

	releaseTimeout = 5 * time.Second
)

// Both scripts act only while the key still carries the caller's token.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Locker hands out per-provider locks stored as SET NX PX keys.
type Locker struct {
	rdb redis.Cmdable
	ttl time.Duration
	log *logger.Logger
}

// New creates a Locker. A non-positive ttl falls back to DefaultTTL.
func New(rdb redis.Cmdable, ttl time.Duration, log *logger.Logger) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{rdb: rdb, ttl: ttl, log: log}
}

func lockKey(provider string) string {
	return keyPrefix + provider
}

// TryLock takes the lock of provider without waiting. ok is false when
// another holder has it. The returned unlock is idempotent and releases
// only this holder's lock.
func (l *Locker) TryLock(ctx context.Context, provider string) (func(), bool, error) {
	key := lockKey(provider)
	token := uuid.NewString()

	acquired, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire sync lock %s: %w", provider, err)
	}
	if !acquired {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, token, stop, done)

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			close(stop)
			<-done

			releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.rdb, []string{key}, token).Err(); err != nil {
				l.log.Warn("failed to release sync lock", "key", key, "error", err)
			}
		})
	}
	return unlock, true, nil
}

func (l *Locker) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := l.extend(context.Background(), key, token)
			if err != nil {
				l.log.Warn("failed to extend sync lock", "key", key, "error", err)
				continue
			}
			if !held {
				l.log.Error("sync lock lost to another holder", "key", key)
				return
			}
		}
	}
}

func (l *Locker) extend(ctx context.Context, key, token string) (bool, error) {
	n, err := extendScript.Run(ctx, l.rdb, []string{key}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
