package synclock

import (
	"context"
	"testing"
	"time"

	"ppob_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl time.Duration) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, ttl, logger.Discard()), srv
}

func TestTryLockIsExclusivePerProvider(t *testing.T) {
	locker, srv := newTestLocker(t, time.Minute)
	ctx := context.Background()

	unlock, ok, err := locker.TryLock(ctx, "digiflazz")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, srv.Exists("ppob:sync:lock:digiflazz"))
	assert.Equal(t, time.Minute, srv.TTL("ppob:sync:lock:digiflazz"))

	_, ok, err = locker.TryLock(ctx, "digiflazz")
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	otherUnlock, ok, err := locker.TryLock(ctx, "vip")
	require.NoError(t, err)
	assert.True(t, ok, "other providers are independent")
	otherUnlock()

	unlock()
	unlock()
	assert.False(t, srv.Exists("ppob:sync:lock:digiflazz"))

	again, ok, err := locker.TryLock(ctx, "digiflazz")
	require.NoError(t, err)
	assert.True(t, ok)
	again()
}

func TestUnlockKeepsForeignLock(t *testing.T) {
	locker, srv := newTestLocker(t, time.Minute)

	unlock, ok, err := locker.TryLock(context.Background(), "digiflazz")
	require.NoError(t, err)
	require.True(t, ok)

	// The lock expired and another process took it.
	require.NoError(t, srv.Set("ppob:sync:lock:digiflazz", "other-holder"))
	unlock()

	got, err := srv.Get("ppob:sync:lock:digiflazz")
	require.NoError(t, err)
	assert.Equal(t, "other-holder", got)
}

func TestExtendRequiresToken(t *testing.T) {
	locker, srv := newTestLocker(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, srv.Set("ppob:sync:lock:digiflazz", "token-a"))
	srv.SetTTL("ppob:sync:lock:digiflazz", time.Second)

	held, err := locker.extend(ctx, "ppob:sync:lock:digiflazz", "token-b")
	require.NoError(t, err)
	assert.False(t, held)
	assert.Equal(t, time.Second, srv.TTL("ppob:sync:lock:digiflazz"))

	held, err = locker.extend(ctx, "ppob:sync:lock:digiflazz", "token-a")
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, time.Minute, srv.TTL("ppob:sync:lock:digiflazz"))
}

func TestTryLockReportsRedisFailure(t *testing.T) {
	locker, srv := newTestLocker(t, time.Minute)
	srv.Close()

	_, ok, err := locker.TryLock(context.Background(), "digiflazz")
	require.Error(t, err)
	assert.False(t, ok)
}
