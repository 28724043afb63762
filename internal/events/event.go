// Package events holds the domain events modules exchange. The bus itself
// lives in platform/events; its types are aliased here so modules need a
// single import.
package events

import (
	"time"

	"ppob_backend/platform/events"
	"ppob_backend/platform/logger"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates the process-local bus used by the cmd mains.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// Sync outcome statuses carried by ProviderSyncCompleted.
const (
	SyncStatusFulfilled = "fulfilled"
	SyncStatusRejected  = "rejected"
)

// ProviderSyncCompleted is published after every reconciliation run of one
// provider, whether it was fulfilled or rejected.
type ProviderSyncCompleted struct {
	BaseEvent
	Provider        string    `json:"provider"`
	RunID           string    `json:"runId"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason,omitempty"`
	Processed       int       `json:"processed"`
	Created         int       `json:"created"`
	Updated         int       `json:"updated"`
	Skipped         int       `json:"skipped"`
	MappingsCreated int       `json:"mappingsCreated"`
	ServicesUpdated int       `json:"servicesUpdated"`
	PricingsCreated int       `json:"pricingsCreated"`
	FailedBatches   int       `json:"failedBatches"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
}

func (e ProviderSyncCompleted) EventName() string { return "providers.sync.completed" }
