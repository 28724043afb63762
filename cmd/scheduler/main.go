package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ppob_backend/internal/catalog"
	"ppob_backend/internal/catalog/service"
	"ppob_backend/internal/events"
	"ppob_backend/internal/providers"
	"ppob_backend/internal/providers/digiflazz"
	"ppob_backend/internal/scheduler"
	"ppob_backend/internal/synclock"
	"ppob_backend/internal/syncstatus"
	"ppob_backend/platform/config"
	"ppob_backend/platform/db"
	"ppob_backend/platform/logger"
	"ppob_backend/platform/redisconn"
	"ppob_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "interval", cfg.GetProviderSyncInterval().String())

	if !cfg.OwnsProviderSync(config.SyncOwnerScheduler) {
		log.Info("scheduled provider sync not owned by scheduler; exiting",
			"enabled", cfg.IsProviderSyncEnabled(), "owner", cfg.GetProviderSyncOwner())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	// The loop and worker finish first, then bus handlers, then Redis.
	var runners sync.WaitGroup
	var closers []func()
	defer func() {
		stop()
		drain(&runners, eventBus, closers...)
	}()

	margins, err := service.LoadMarginTable(cfg.GetPricingMarginsFile())
	if err != nil {
		log.Error("failed to load pricing margins", "error", err)
		panic("failed to load pricing margins: " + err.Error())
	}

	// Worker-side sync wiring (no HTTP handlers required).
	registry := newProviderRegistry(cfg, log)
	catalogModule := catalog.NewModule(pool, registry, eventBus, validator.New(), service.Options{
		FetchTimeout: cfg.GetProviderFetchTimeout(),
		Parallelism:  cfg.GetProviderSyncParallelism(),
		Margins:      margins,
	}, log)
	syncer := catalogModule.Service()

	if cfg.GetRedisURL() != "" {
		rdb, err := redisconn.NewClient(ctx, cfg)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			panic("failed to connect to redis: " + err.Error())
		}
		closers = append(closers, func() { _ = rdb.Close() })
		syncstatus.NewStore(rdb, syncstatus.DefaultTTL, log).RegisterHandlers(eventBus)
		catalogModule.SetRunLocker(synclock.New(rdb, synclock.DefaultTTL, log))

		worker, err := scheduler.NewWorker(cfg, syncer, log)
		if err != nil {
			log.Error("failed to initialize scheduler worker", "error", err)
			panic("failed to initialize scheduler worker: " + err.Error())
		}
		runners.Add(1)
		go func() {
			defer runners.Done()
			worker.Run(ctx)
		}()
	} else {
		log.Warn("REDIS_URL not configured; queued sync, sync status and cross-process run lock disabled")
	}

	scheduler.NewSyncLoop(syncer, log, cfg.GetProviderSyncInterval(), cfg.GetProviderSyncOnStart()).Run(ctx)
}

// drain waits for the runners, then for in-flight event handlers, then runs
// closers in order.
func drain(runners *sync.WaitGroup, bus *events.InMemoryBus, closers ...func()) {
	runners.Wait()
	bus.Wait()
	for _, closeFn := range closers {
		closeFn()
	}
}

func newProviderRegistry(cfg *config.Config, log *logger.Logger) *providers.Registry {
	var clients []providers.Client
	if cfg.IsDigiflazzEnabled() {
		clients = append(clients, digiflazz.New(digiflazz.Config{
			BaseURL:       cfg.GetDigiflazzBaseURL(),
			Username:      cfg.GetDigiflazzUsername(),
			APIKey:        cfg.GetDigiflazzAPIKey(),
			Timeout:       cfg.GetProviderFetchTimeout(),
			RatePerMinute: cfg.GetDigiflazzRatePerMinute(),
		}, log))
	} else {
		log.Warn("DIGIFLAZZ_USERNAME or DIGIFLAZZ_API_KEY not configured; digiflazz sync disabled")
	}
	return providers.NewRegistry(clients...)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
