package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ppob_backend/internal/catalog/repository"
	"ppob_backend/internal/catalog/transport"
	"ppob_backend/internal/events"
	"ppob_backend/internal/providers"
	"ppob_backend/platform/apperr"
	"ppob_backend/platform/logger"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultParallelism  = 4
)

// SyncState is the in-process run state of one provider.
type SyncState string

const (
	StateIdle    SyncState = "idle"
	StateRunning SyncState = "running"
)

// StatusReader returns the last stored sync outcome of a provider, or nil
// when none is stored.
type StatusReader interface {
	LastSync(ctx context.Context, provider string) (*transport.LastSync, error)
}

// SyncEnqueuer schedules a provider sync on the task queue.
type SyncEnqueuer interface {
	EnqueueProviderSync(ctx context.Context, provider string) error
}

// RunLocker serializes runs of one provider across processes. TryLock does
// not wait: ok is false while another holder runs the provider.
type RunLocker interface {
	TryLock(ctx context.Context, provider string) (unlock func(), ok bool, err error)
}

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	FetchTimeout time.Duration
	Parallelism  int
	Margins      MarginTable
	BatchSizes   BatchSizes
}

// Service provides provider catalog synchronization and catalog reads.
type Service struct {
	repo         repository.Repository
	registry     *providers.Registry
	engine       *Engine
	bus          events.Bus
	log          *logger.Logger
	margins      MarginTable
	fetchTimeout time.Duration
	parallelism  int

	mu      sync.Mutex
	running map[string]struct{}

	statusReader StatusReader
	enqueuer     SyncEnqueuer
	locker       RunLocker
}

// New creates a new catalog service.
func New(repo repository.Repository, registry *providers.Registry, bus events.Bus, log *logger.Logger, opts Options) *Service {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.Margins == nil {
		opts.Margins = DefaultMargins()
	}

	return &Service{
		repo:         repo,
		registry:     registry,
		engine:       NewEngine(repo, opts.BatchSizes, log),
		bus:          bus,
		log:          log,
		margins:      opts.Margins,
		fetchTimeout: opts.FetchTimeout,
		parallelism:  opts.Parallelism,
		running:      make(map[string]struct{}),
	}
}

// SetStatusReader injects the store backing SyncStatus.
func (s *Service) SetStatusReader(reader StatusReader) {
	s.statusReader = reader
}

// SetSyncEnqueuer injects the task queue client backing EnqueueSync.
func (s *Service) SetSyncEnqueuer(enqueuer SyncEnqueuer) {
	s.enqueuer = enqueuer
}

// SetRunLocker injects the cross-process run lock. Without one, runs are
// only serialized within this process.
func (s *Service) SetRunLocker(locker RunLocker) {
	s.locker = locker
}

// Providers returns the configured provider names in configuration order.
func (s *Service) Providers() []string {
	return s.registry.Names()
}

// State reports whether a run for provider is in progress in this process.
// Runs held by other processes show as idle here.
func (s *Service) State(provider string) SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[provider]; ok {
		return StateRunning
	}
	return StateIdle
}

// SyncAll runs every configured provider independently and returns one
// outcome per provider in configuration order.
func (s *Service) SyncAll(ctx context.Context) transport.SyncOutcomeList {
	names := s.registry.Names()
	outcomes := make([]transport.SyncOutcome, len(names))

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, name := range names {
		g.Go(func() error {
			result, err := s.SyncProvider(ctx, name)
			outcomes[i] = toOutcome(name, result, err)
			return nil
		})
	}
	_ = g.Wait()

	return transport.SyncOutcomeList{Outcomes: outcomes}
}

// SyncProvider runs one reconciliation for provider: fetch, snapshot, plan,
// persist and price. A second call for the same provider while one is in
// progress, here or in a process sharing the run lock, fails with a
// Conflict error.
func (s *Service) SyncProvider(ctx context.Context, provider string) (transport.SyncResult, error) {
	client, err := s.registry.Get(provider)
	if err != nil {
		return transport.SyncResult{}, err
	}
	name := client.Name()

	if !s.acquire(name) {
		return transport.SyncResult{}, apperr.Conflict("sync already in progress for provider " + name)
	}
	defer s.release(name)

	unlock, err := s.lockRun(ctx, name)
	if err != nil {
		return transport.SyncResult{}, err
	}
	defer unlock()

	runID := uuid.NewString()
	log := s.log.WithContext(ctx).WithProvider(name).WithRunID(runID)
	started := time.Now().UTC()

	log.Info("provider sync started")
	report, err := s.run(ctx, client, log)

	result := toSyncResult(name, runID, report, started, time.Now().UTC())
	if err != nil {
		log.Error("provider sync failed", "error", err, "processed", result.Processed, "created", result.Created)
	} else {
		log.Info("provider sync completed",
			"processed", result.Processed,
			"created", result.Created,
			"updated", result.Updated,
			"skipped", result.Skipped,
			"mappingsCreated", result.MappingsCreated,
			"servicesUpdated", result.ServicesUpdated,
			"pricingsCreated", result.PricingsCreated,
			"failedBatches", result.FailedBatches,
		)
	}
	s.publishCompleted(ctx, result, err)

	return result, err
}

func (s *Service) run(ctx context.Context, client providers.Client, log *logger.Logger) (report Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Internal(fmt.Sprintf("provider sync panicked: %v", r))
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	items, err := client.FetchCatalog(fetchCtx)
	cancel()
	if err != nil {
		return Report{}, classifyFetchError(ctx, err)
	}
	log.Debug("price list fetched", "items", len(items))

	snap, err := s.repo.LoadSnapshot(ctx, client.Name(), Segments)
	if err != nil {
		log.DatabaseError("load catalog snapshot", err)
		return Report{}, fmt.Errorf("load catalog snapshot: %w", err)
	}
	idx := BuildIndex(snap)

	plan := BuildPlan(client.Name(), items, idx)
	if plan.SkippedCount() > 0 {
		log.Info("provider items skipped", "count", plan.SkippedCount())
		for _, skipped := range plan.Skipped {
			log.Debug("provider item skipped", "providerId", skipped.ProviderID, "brand", skipped.Brand, "reason", skipped.Reason)
		}
	}

	return s.engine.Execute(ctx, plan, idx, s.margins)
}

func classifyFetchError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apperr.Canceled("provider fetch cancelled", ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Unavailable("provider fetch timed out", err)
	}
	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return apperr.Unavailable("fetch provider catalog", err)
}

func (s *Service) acquire(provider string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[provider]; busy {
		return false
	}
	s.running[provider] = struct{}{}
	return true
}

func (s *Service) release(provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, provider)
}

func (s *Service) lockRun(ctx context.Context, provider string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	unlock, ok, err := s.locker.TryLock(ctx, provider)
	if err != nil {
		return nil, apperr.Unavailable("acquire sync lock", err)
	}
	if !ok {
		return nil, apperr.Conflict("sync already in progress for provider " + provider + " in another process")
	}
	return unlock, nil
}

func (s *Service) publishCompleted(ctx context.Context, result transport.SyncResult, err error) {
	if s.bus == nil {
		return
	}
	event := events.ProviderSyncCompleted{
		BaseEvent:       events.NewBaseEvent(),
		Provider:        result.Provider,
		RunID:           result.RunID,
		Status:          events.SyncStatusFulfilled,
		Processed:       result.Processed,
		Created:         result.Created,
		Updated:         result.Updated,
		Skipped:         result.Skipped,
		MappingsCreated: result.MappingsCreated,
		ServicesUpdated: result.ServicesUpdated,
		PricingsCreated: result.PricingsCreated,
		FailedBatches:   result.FailedBatches,
		StartedAt:       result.StartedAt,
		FinishedAt:      result.FinishedAt,
	}
	if err != nil {
		event.Status = events.SyncStatusRejected
		event.Reason = err.Error()
	}
	s.bus.Publish(ctx, event)
}

// EnqueueSync schedules an asynchronous run for provider.
func (s *Service) EnqueueSync(ctx context.Context, provider string) (transport.EnqueueSyncResponse, error) {
	client, err := s.registry.Get(provider)
	if err != nil {
		return transport.EnqueueSyncResponse{}, err
	}
	if s.enqueuer == nil {
		return transport.EnqueueSyncResponse{}, apperr.Unavailable("task queue not configured", nil)
	}
	if err := s.enqueuer.EnqueueProviderSync(ctx, client.Name()); err != nil {
		return transport.EnqueueSyncResponse{}, err
	}
	return transport.EnqueueSyncResponse{Provider: client.Name(), Queued: true}, nil
}

// SyncStatus reports the in-process state and last stored run of every provider.
func (s *Service) SyncStatus(ctx context.Context) (transport.SyncStatusResponse, error) {
	names := s.registry.Names()
	resp := transport.SyncStatusResponse{Providers: make([]transport.ProviderSyncStatus, 0, len(names))}

	for _, name := range names {
		status := transport.ProviderSyncStatus{Provider: name, State: string(s.State(name))}
		if s.statusReader != nil {
			last, err := s.statusReader.LastSync(ctx, name)
			if err != nil {
				return transport.SyncStatusResponse{}, err
			}
			status.LastRun = last
		}
		resp.Providers = append(resp.Providers, status)
	}
	return resp, nil
}

// ListServicesWithPricing lists active services with mappings and segment prices.
func (s *Service) ListServicesWithPricing(ctx context.Context, req transport.ListServicesRequest) (transport.ServicePricingListResponse, error) {
	rows, err := s.repo.ListServicesWithPricing(ctx, repository.ListServicesWithPricingParams{
		CategoryID:      req.CategoryID,
		CustomerGroupID: req.CustomerGroupID,
	})
	if err != nil {
		return transport.ServicePricingListResponse{}, err
	}

	items := make([]transport.ServicePricingResponse, len(rows))
	for i, r := range rows {
		items[i] = transport.ServicePricingResponse{
			ID:            r.ID,
			Name:          r.Name,
			Description:   r.Description,
			Status:        r.Status,
			CategoryName:  r.CategoryName,
			Provider:      r.Provider,
			ProviderPrice: r.ProviderPrice,
			PriceSale:     r.PriceSale,
			Profit:        r.Profit,
			CustomerGroup: r.CustomerGroup,
		}
	}
	return transport.ServicePricingListResponse{Items: items}, nil
}

// ListServicesWithBestPricing lists active services with their cheapest provider.
func (s *Service) ListServicesWithBestPricing(ctx context.Context, req transport.ListBestPricingRequest) (transport.BestPricingListResponse, error) {
	rows, err := s.repo.ListServicesWithBestPricing(ctx, req.CategoryID)
	if err != nil {
		return transport.BestPricingListResponse{}, err
	}

	items := make([]transport.BestPricingResponse, len(rows))
	for i, r := range rows {
		items[i] = transport.BestPricingResponse{
			ID:                 r.ID,
			Name:               r.Name,
			CategoryID:         r.CategoryID,
			CategoryName:       r.CategoryName,
			BestProviderPrice:  r.BestProviderPrice,
			AvailableProviders: r.AvailableProviders,
			ProviderCount:      r.ProviderCount,
		}
	}
	return transport.BestPricingListResponse{Items: items}, nil
}

func toSyncResult(provider, runID string, report Report, started, finished time.Time) transport.SyncResult {
	failed := report.FailedBatches()
	result := transport.SyncResult{
		RunID:           runID,
		Provider:        provider,
		Processed:       report.Processed,
		Created:         report.Created,
		Updated:         report.Updated,
		Skipped:         report.Skipped,
		MappingsCreated: report.MappingsCreated,
		ServicesUpdated: report.ServicesUpdated,
		PricingsCreated: report.PricingsCreated,
		FailedBatches:   len(failed),
		StartedAt:       started,
		FinishedAt:      finished,
	}
	for _, b := range failed {
		result.Failures = append(result.Failures, transport.BatchFailure{
			Stage: string(b.Stage),
			Batch: b.Index,
			Size:  b.Size,
			Error: b.Err.Error(),
		})
	}
	return result
}

func toOutcome(provider string, result transport.SyncResult, err error) transport.SyncOutcome {
	if err == nil {
		return transport.SyncOutcome{Provider: provider, Status: transport.OutcomeFulfilled, Data: &result}
	}
	outcome := transport.SyncOutcome{Provider: provider, Status: transport.OutcomeRejected, Reason: err.Error()}
	if apperr.Is(err, apperr.KindCanceled) && result.RunID != "" {
		outcome.Data = &result
	}
	return outcome
}
