package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ppob_backend/internal/catalog"
	"ppob_backend/internal/catalog/service"
	"ppob_backend/internal/events"
	apphttp "ppob_backend/internal/http"
	"ppob_backend/internal/http/router"
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

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var schemaVersion uint
	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		var err error
		schemaVersion, err = db.RunMigrations(ctx, cfg)
		return err
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete", "version", schemaVersion)

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Background runners finish first, then bus handlers, then the clients
	// those handlers write through. The pool closes after all of them.
	var runners sync.WaitGroup
	var closers []func()
	defer func() {
		stop()
		drain(&runners, eventBus, closers...)
	}()

	// Shared validator instance for dependency injection
	val := validator.New()

	margins, err := service.LoadMarginTable(cfg.GetPricingMarginsFile())
	if err != nil {
		log.Error("failed to load pricing margins", "error", err)
		panic("failed to load pricing margins: " + err.Error())
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	registry := newProviderRegistry(cfg, log)
	catalogModule := catalog.NewModule(pool, registry, eventBus, val, service.Options{
		FetchTimeout: cfg.GetProviderFetchTimeout(),
		Parallelism:  cfg.GetProviderSyncParallelism(),
		Margins:      margins,
	}, log)

	closers = initTaskQueue(ctx, cfg, log, eventBus, catalogModule, &runners)

	if cfg.OwnsProviderSync(config.SyncOwnerAPI) {
		loop := scheduler.NewSyncLoop(catalogModule.Service(), log, cfg.GetProviderSyncInterval(), cfg.GetProviderSyncOnStart())
		runners.Add(1)
		go func() {
			defer runners.Done()
			loop.Run(ctx)
		}()
	} else {
		log.Info("scheduled provider sync not owned by api", "enabled", cfg.IsProviderSyncEnabled(), "owner", cfg.GetProviderSyncOwner())
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: db.NewPoolAdapter(pool),
		Modules: []apphttp.Module{
			catalogModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(ctx, app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
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

	registry := providers.NewRegistry(clients...)
	log.Info("provider registry initialized", "providers", registry.Names())
	return registry
}

// initTaskQueue wires the Redis-backed parts: the last-run status store, the
// cross-process run lock, the enqueue client and, when this process owns
// scheduled sync, the worker. It returns the closers in the order they must run.
func initTaskQueue(ctx context.Context, cfg *config.Config, log *logger.Logger, bus events.Bus, catalogModule *catalog.Module, runners *sync.WaitGroup) []func() {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; sync status, queued sync and cross-process run lock disabled")
		return nil
	}

	rdb, err := redisconn.NewClient(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return nil
	}
	closeRedis := func() { _ = rdb.Close() }

	store := syncstatus.NewStore(rdb, syncstatus.DefaultTTL, log)
	store.RegisterHandlers(bus)
	catalogModule.SetStatusReader(store)
	catalogModule.SetRunLocker(synclock.New(rdb, synclock.DefaultTTL, log))

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		return []func(){closeRedis}
	}
	catalogModule.SetSyncEnqueuer(client)

	if cfg.OwnsProviderSync(config.SyncOwnerAPI) {
		worker, err := scheduler.NewWorker(cfg, catalogModule.Service(), log)
		if err != nil {
			log.Error("failed to initialize scheduler worker", "error", err)
		} else {
			runners.Add(1)
			go func() {
				defer runners.Done()
				worker.Run(ctx)
			}()
		}
	}

	return []func(){func() { _ = client.Close() }, closeRedis}
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

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
