package scheduler

import (
	"context"
	"time"

	"ppob_backend/internal/catalog/transport"
	"ppob_backend/platform/logger"
)

const defaultProviderSyncInterval = 2 * time.Minute

// BatchSyncer runs every configured provider.
type BatchSyncer interface {
	SyncAll(ctx context.Context) transport.SyncOutcomeList
}

// SyncLoop runs all providers on a fixed interval. Runs never overlap: a
// tick that fires while a run is still going is dropped.
type SyncLoop struct {
	syncer     BatchSyncer
	log        *logger.Logger
	interval   time.Duration
	runOnStart bool
}

func NewSyncLoop(syncer BatchSyncer, log *logger.Logger, interval time.Duration, runOnStart bool) *SyncLoop {
	if interval <= 0 {
		interval = defaultProviderSyncInterval
	}
	return &SyncLoop{
		syncer:     syncer,
		log:        log,
		interval:   interval,
		runOnStart: runOnStart,
	}
}

func (l *SyncLoop) Run(ctx context.Context) {
	if l == nil || l.syncer == nil {
		return
	}

	l.log.Info("provider sync loop started", "interval", l.interval.String(), "runOnStart", l.runOnStart)
	if l.runOnStart {
		l.tick(ctx)
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.log.Info("provider sync loop stopped")
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *SyncLoop) tick(ctx context.Context) {
	list := l.syncer.SyncAll(ctx)

	rejected := 0
	for _, outcome := range list.Outcomes {
		if outcome.Status == transport.OutcomeRejected {
			rejected++
			l.log.Warn("scheduled provider sync rejected", "provider", outcome.Provider, "reason", outcome.Reason)
			continue
		}
		if outcome.Data != nil {
			l.log.Info("scheduled provider sync fulfilled",
				"provider", outcome.Provider,
				"runId", outcome.Data.RunID,
				"processed", outcome.Data.Processed,
				"created", outcome.Data.Created,
				"updated", outcome.Data.Updated,
				"failedBatches", outcome.Data.FailedBatches,
			)
		}
	}

	if rejected > 0 {
		l.log.Warn("scheduled provider sync finished with rejections", "providers", len(list.Outcomes), "rejected", rejected)
	}
}
