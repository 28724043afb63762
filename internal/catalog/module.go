// Package catalog provides the catalog bounded context module: provider
// price-list synchronization and the catalog read endpoints.
package catalog

import (
	"ppob_backend/internal/catalog/handler"
	"ppob_backend/internal/catalog/repository"
	"ppob_backend/internal/catalog/service"
	"ppob_backend/internal/events"
	apphttp "ppob_backend/internal/http"
	"ppob_backend/internal/providers"
	"ppob_backend/platform/logger"
	"ppob_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the catalog bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the catalog module.
func NewModule(pool *pgxpool.Pool, registry *providers.Registry, bus events.Bus, val *validator.Validator, opts service.Options, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, registry, bus, log, opts)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "catalog"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// SetStatusReader wires the last-run store used by the status endpoint.
func (m *Module) SetStatusReader(reader service.StatusReader) {
	m.service.SetStatusReader(reader)
}

// SetRunLocker wires the cross-process run lock.
func (m *Module) SetRunLocker(locker service.RunLocker) {
	m.service.SetRunLocker(locker)
}

// SetSyncEnqueuer wires the task queue used by the enqueue endpoint.
func (m *Module) SetSyncEnqueuer(enqueuer service.SyncEnqueuer) {
	m.service.SetSyncEnqueuer(enqueuer)
}

// RegisterRoutes mounts catalog routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Protected read-only endpoints
	ctx.Protected.GET("/catalog/services", m.handler.ListServices)
	ctx.Protected.GET("/catalog/services/best-pricing", m.handler.ListBestPricing)

	// Admin sync endpoints
	adminGroup := ctx.Admin.Group("/providers")
	adminGroup.POST("/sync", m.handler.SyncAll)
	adminGroup.GET("/sync/status", m.handler.SyncStatus)
	adminGroup.POST("/:provider/sync", m.handler.SyncProvider)
	adminGroup.POST("/:provider/sync/enqueue", m.handler.EnqueueSync)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
