package scheduler

import (
	"context"
	"fmt"

	"ppob_backend/internal/catalog/transport"
	"ppob_backend/platform/apperr"
	"ppob_backend/platform/config"
	"ppob_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// ProviderSyncer runs one provider reconciliation.
type ProviderSyncer interface {
	SyncProvider(ctx context.Context, provider string) (transport.SyncResult, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	syncer ProviderSyncer
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, syncer ProviderSyncer, log *logger.Logger) (*Worker, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	w := newWorker(syncer, log)
	w.server = server
	return w, nil
}

func newWorker(syncer ProviderSyncer, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{
		mux:    mux,
		syncer: syncer,
		log:    log,
	}
	mux.HandleFunc(TaskProviderSync, w.handleProviderSync)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleProviderSync(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseProviderSyncPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	result, err := w.syncer.SyncProvider(ctx, payload.Provider)
	switch {
	case err == nil:
		w.log.Info("queued provider sync completed",
			"provider", payload.Provider,
			"runId", result.RunID,
			"created", result.Created,
			"updated", result.Updated,
			"failedBatches", result.FailedBatches,
		)
		return nil
	case apperr.Is(err, apperr.KindConflict):
		// The in-flight run covers this request.
		w.log.Info("queued provider sync skipped, run in progress", "provider", payload.Provider)
		return nil
	case apperr.Is(err, apperr.KindNotFound):
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	default:
		return err
	}
}
