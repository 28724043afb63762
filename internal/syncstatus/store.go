// Package syncstatus keeps the latest provider sync outcome per provider in
// Redis so every process can report it.
package syncstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ppob_backend/internal/catalog/transport"
	"ppob_backend/internal/events"
	"ppob_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "ppob:sync:last:"

	// DefaultTTL bounds how long a last-run record survives without new runs.
	DefaultTTL = 7 * 24 * time.Hour
)

// Store reads and writes last-run records.
type Store struct {
	rdb redis.Cmdable
	ttl time.Duration
	log *logger.Logger
}

// NewStore creates a store. A non-positive ttl uses DefaultTTL.
func NewStore(rdb redis.Cmdable, ttl time.Duration, log *logger.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl, log: log}
}

func key(provider string) string {
	return keyPrefix + provider
}

// Save stores last as the latest run of its provider.
func (s *Store) Save(ctx context.Context, last transport.LastSync) error {
	data, err := json.Marshal(last)
	if err != nil {
		return fmt.Errorf("encode last sync: %w", err)
	}
	if err := s.rdb.Set(ctx, key(last.Provider), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store last sync: %w", err)
	}
	return nil
}

// LastSync returns the latest stored run of provider, or nil if none is stored.
func (s *Store) LastSync(ctx context.Context, provider string) (*transport.LastSync, error) {
	data, err := s.rdb.Get(ctx, key(provider)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load last sync: %w", err)
	}

	var last transport.LastSync
	if err := json.Unmarshal(data, &last); err != nil {
		return nil, fmt.Errorf("decode last sync: %w", err)
	}
	return &last, nil
}

// RegisterHandlers subscribes the store to provider sync completions.
func (s *Store) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.ProviderSyncCompleted{}.EventName(), s)
}

// Handle routes events to the appropriate handler method.
func (s *Store) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ProviderSyncCompleted:
		if err := s.Save(ctx, fromEvent(e)); err != nil {
			s.log.Warn("failed to store provider sync status", "provider", e.Provider, "error", err)
			return err
		}
		return nil
	default:
		return nil
	}
}

func fromEvent(e events.ProviderSyncCompleted) transport.LastSync {
	return transport.LastSync{
		Provider:        e.Provider,
		RunID:           e.RunID,
		Status:          e.Status,
		Reason:          e.Reason,
		Processed:       e.Processed,
		Created:         e.Created,
		Updated:         e.Updated,
		Skipped:         e.Skipped,
		MappingsCreated: e.MappingsCreated,
		ServicesUpdated: e.ServicesUpdated,
		PricingsCreated: e.PricingsCreated,
		FailedBatches:   e.FailedBatches,
		StartedAt:       e.StartedAt,
		FinishedAt:      e.FinishedAt,
	}
}

var _ events.Handler = (*Store)(nil)
