package syncstatus

import (
	"context"
	"testing"
	"time"

	"ppob_backend/internal/events"
	"ppob_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, time.Hour, logger.Discard()), srv
}

func TestLastSyncMissingProvider(t *testing.T) {
	store, _ := newTestStore(t)

	last, err := store.LastSync(context.Background(), "digiflazz")
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestStoreKeepsLatestOutcomeFromEvents(t *testing.T) {
	store, srv := newTestStore(t)
	bus := events.NewInMemoryBus(logger.Discard())
	store.RegisterHandlers(bus)

	finished := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, bus.PublishSync(context.Background(), events.ProviderSyncCompleted{
		BaseEvent:  events.NewBaseEvent(),
		Provider:   "digiflazz",
		RunID:      "run-1",
		Status:     events.SyncStatusFulfilled,
		Created:    3,
		FinishedAt: finished,
	}))
	require.NoError(t, bus.PublishSync(context.Background(), events.ProviderSyncCompleted{
		BaseEvent: events.NewBaseEvent(),
		Provider:  "digiflazz",
		RunID:     "run-2",
		Status:    events.SyncStatusRejected,
		Reason:    "fetch provider catalog: timeout",
	}))

	last, err := store.LastSync(context.Background(), "digiflazz")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "run-2", last.RunID)
	assert.Equal(t, events.SyncStatusRejected, last.Status)
	assert.Equal(t, "fetch provider catalog: timeout", last.Reason)

	assert.Equal(t, time.Hour, srv.TTL(keyPrefix+"digiflazz"))
}

func TestLastSyncExpires(t *testing.T) {
	store, srv := newTestStore(t)

	require.NoError(t, store.Handle(context.Background(), events.ProviderSyncCompleted{Provider: "digiflazz", Status: events.SyncStatusFulfilled}))
	srv.FastForward(2 * time.Hour)

	last, err := store.LastSync(context.Background(), "digiflazz")
	require.NoError(t, err)
	assert.Nil(t, last)
}
