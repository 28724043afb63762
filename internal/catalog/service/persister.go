package service

import (
	"context"

	"ppob_backend/internal/catalog/repository"
	"ppob_backend/platform/apperr"
	"ppob_backend/platform/logger"
)

// Default batch sizes per persistence stage.
const (
	ServiceBatchSize = 100
	MappingBatchSize = 200
	PricingBatchSize = 300
	UpdateBatchSize  = 50
)

// Stage names a persistence stage in batch outcomes and logs.
type Stage string

const (
	StageCreateServices Stage = "create_services"
	StageUpsertMappings Stage = "upsert_mappings"
	StageUpsertPricings Stage = "upsert_pricings"
	StageUpdateServices Stage = "update_services"
)

// BatchSizes bounds how many rows each stage writes per statement or transaction.
type BatchSizes struct {
	Services int
	Mappings int
	Pricings int
	Updates  int
}

// DefaultBatchSizes returns the production batch sizes.
func DefaultBatchSizes() BatchSizes {
	return BatchSizes{
		Services: ServiceBatchSize,
		Mappings: MappingBatchSize,
		Pricings: PricingBatchSize,
		Updates:  UpdateBatchSize,
	}
}

func (b BatchSizes) withDefaults() BatchSizes {
	d := DefaultBatchSizes()
	if b.Services <= 0 {
		b.Services = d.Services
	}
	if b.Mappings <= 0 {
		b.Mappings = d.Mappings
	}
	if b.Pricings <= 0 {
		b.Pricings = d.Pricings
	}
	if b.Updates <= 0 {
		b.Updates = d.Updates
	}
	return b
}

// BatchOutcome records what one batch did. Index is 1-based within its stage.
type BatchOutcome struct {
	Stage     Stage
	Index     int
	Size      int
	Succeeded int
	Failed    int
	Err       error
}

// CreatedService is a service committed by this run.
type CreatedService struct {
	ID            int64
	ProviderID    string
	ProviderPrice int64
}

// Report aggregates the persistence of one plan.
type Report struct {
	Processed       int
	Created         int
	Updated         int
	Skipped         int
	MappingsCreated int
	ServicesUpdated int
	PricingsCreated int
	Batches         []BatchOutcome
}

// FailedBatches returns the outcomes that carry an error.
func (r Report) FailedBatches() []BatchOutcome {
	var failed []BatchOutcome
	for _, b := range r.Batches {
		if b.Err != nil {
			failed = append(failed, b)
		}
	}
	return failed
}

// Engine writes a plan to storage in bounded batches. A failed batch is
// recorded and the stage continues with the next one.
type Engine struct {
	repo  repository.Repository
	sizes BatchSizes
	log   *logger.Logger
}

// NewEngine creates a persistence engine. Zero batch sizes fall back to the defaults.
func NewEngine(repo repository.Repository, sizes BatchSizes, log *logger.Logger) *Engine {
	return &Engine{repo: repo, sizes: sizes.withDefaults(), log: log}
}

// Execute runs the stages in order: create services, upsert mappings,
// upsert pricings for created services, update existing services.
// ctx is checked before every batch; on cancellation the partial report is
// returned with a Canceled error.
func (e *Engine) Execute(ctx context.Context, plan Plan, idx *Index, margins MarginTable) (Report, error) {
	report := Report{
		Processed: plan.Processed,
		Updated:   len(plan.UpdateMappings),
		Skipped:   plan.SkippedCount(),
	}
	log := e.log.WithProvider(plan.Provider)

	created, err := e.createServices(ctx, plan.CreateServices, &report, log)
	report.Created = len(created)
	if err != nil {
		return report, err
	}

	mappings := mappingRows(plan, created, idx)
	if err := runBatches(ctx, StageUpsertMappings, mappings, e.sizes.Mappings, &report, log,
		func(ctx context.Context, batch []repository.MappingUpsert) (int, error) {
			if _, err := e.repo.UpsertMappings(ctx, batch); err != nil {
				return 0, err
			}
			return len(batch), nil
		}); err != nil {
		return report, err
	}

	pricings := DerivePricing(created, idx, margins)
	if err := runBatches(ctx, StageUpsertPricings, pricings, e.sizes.Pricings, &report, log,
		func(ctx context.Context, batch []repository.PricingUpsert) (int, error) {
			if _, err := e.repo.UpsertPricings(ctx, batch); err != nil {
				return 0, err
			}
			return len(batch), nil
		}); err != nil {
		return report, err
	}

	updates := make([]repository.ServiceUpdate, len(plan.UpdateMappings))
	for i, u := range plan.UpdateMappings {
		updates[i] = repository.ServiceUpdate{
			ServiceID:     u.ServiceID,
			ProviderID:    u.ProviderID,
			ProviderPrice: u.ProviderPrice,
			Status:        u.Status,
		}
	}
	if err := runBatches(ctx, StageUpdateServices, updates, e.sizes.Updates, &report, log,
		func(ctx context.Context, batch []repository.ServiceUpdate) (int, error) {
			if err := e.repo.ApplyServiceUpdates(ctx, plan.Provider, batch); err != nil {
				return 0, err
			}
			return len(batch), nil
		}); err != nil {
		return report, err
	}

	return report, nil
}

func (e *Engine) createServices(ctx context.Context, records []CreateServiceRecord, report *Report, log *logger.Logger) ([]CreatedService, error) {
	created := make([]CreatedService, 0, len(records))
	err := runBatches(ctx, StageCreateServices, records, e.sizes.Services, report, log,
		func(ctx context.Context, batch []CreateServiceRecord) (int, error) {
			rows := make([]repository.NewService, len(batch))
			for i, r := range batch {
				rows[i] = repository.NewService{
					Name:        r.Name,
					CategoryID:  r.CategoryID,
					Description: r.Description,
					Status:      r.Status,
				}
			}
			ids, err := e.repo.InsertServices(ctx, rows)
			if err != nil {
				return 0, err
			}
			for i, id := range ids {
				created = append(created, CreatedService{
					ID:            id,
					ProviderID:    batch[i].ProviderID,
					ProviderPrice: batch[i].ProviderPrice,
				})
			}
			return len(ids), nil
		})
	return created, err
}

// mappingRows builds one active mapping per created service, plus one per
// create-mapping record that resolves to an existing service. Records whose
// service was not committed are dropped until the next run.
//
// A snapshot service always arrives through an active mapping, but
// LoadSnapshot reads services and mappings in separate statements. A mapping
// deactivated between those reads leaves a service with no mapping in the
// index; the second loop writes that mapping back.
func mappingRows(plan Plan, created []CreatedService, idx *Index) []repository.MappingUpsert {
	type key struct {
		serviceID  int64
		providerID string
	}
	seen := make(map[key]struct{}, len(created))
	rows := make([]repository.MappingUpsert, 0, len(created))

	for _, svc := range created {
		seen[key{svc.ID, svc.ProviderID}] = struct{}{}
		rows = append(rows, repository.MappingUpsert{
			ServiceID:     svc.ID,
			ProviderID:    svc.ProviderID,
			Provider:      plan.Provider,
			ProviderPrice: svc.ProviderPrice,
			IsActive:      true,
		})
	}

	// Mappings lost between the snapshot reads.
	for _, rec := range plan.CreateMappings {
		existing, ok := idx.ServiceByProviderID(rec.ProviderID)
		if !ok {
			continue
		}
		k := key{existing.ID, rec.ProviderID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		rows = append(rows, repository.MappingUpsert{
			ServiceID:     existing.ID,
			ProviderID:    rec.ProviderID,
			Provider:      rec.Provider,
			ProviderPrice: rec.ProviderPrice,
			IsActive:      rec.IsActive,
		})
	}
	return rows
}

// runBatches writes rows in chunks of size, appending one outcome per chunk
// to report. It only returns an error when ctx is done.
func runBatches[T any](
	ctx context.Context,
	stage Stage,
	rows []T,
	size int,
	report *Report,
	log *logger.Logger,
	write func(context.Context, []T) (int, error),
) error {
	index := 0
	for start := 0; start < len(rows); start += size {
		if err := ctx.Err(); err != nil {
			return apperr.Canceled("sync cancelled during "+string(stage), err)
		}

		end := min(start+size, len(rows))
		batch := rows[start:end]
		index++

		written, err := write(ctx, batch)
		outcome := BatchOutcome{Stage: stage, Index: index, Size: len(batch), Succeeded: written}
		if err != nil {
			outcome.Succeeded = 0
			outcome.Failed = len(batch)
			outcome.Err = err
			log.BatchFailed(string(stage), index, len(batch), err)
		}
		report.Batches = append(report.Batches, outcome)

		switch stage {
		case StageUpsertMappings:
			report.MappingsCreated += outcome.Succeeded
		case StageUpsertPricings:
			report.PricingsCreated += outcome.Succeeded
		case StageUpdateServices:
			report.ServicesUpdated += outcome.Succeeded
		}
	}
	return nil
}
