package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ppob_backend/internal/catalog/service"
	"ppob_backend/internal/catalog/transport"
	"ppob_backend/platform/httpkit"
	"ppob_backend/platform/validator"
)

// Handler handles HTTP requests for catalog synchronization and reads.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// New creates a new catalog handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// SyncAll runs every configured provider and returns the outcome list.
// POST /api/v1/admin/providers/sync
func (h *Handler) SyncAll(c *gin.Context) {
	// A dropped client connection must not abort a run halfway.
	ctx := context.WithoutCancel(c.Request.Context())

	result := h.svc.SyncAll(ctx)
	httpkit.OK(c, result)
}

// SyncProvider runs one provider and returns its outcome.
// POST /api/v1/admin/providers/:provider/sync
func (h *Handler) SyncProvider(c *gin.Context) {
	req, ok := h.bindProvider(c)
	if !ok {
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	result, err := h.svc.SyncProvider(ctx, req.Provider)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SyncOutcome{Provider: result.Provider, Status: transport.OutcomeFulfilled, Data: &result})
}

// EnqueueSync schedules a provider run on the task queue.
// POST /api/v1/admin/providers/:provider/sync/enqueue
func (h *Handler) EnqueueSync(c *gin.Context) {
	req, ok := h.bindProvider(c)
	if !ok {
		return
	}

	result, err := h.svc.EnqueueSync(c.Request.Context(), req.Provider)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusAccepted, result)
}

// SyncStatus reports run state and the last stored outcome per provider.
// GET /api/v1/admin/providers/sync/status
func (h *Handler) SyncStatus(c *gin.Context) {
	result, err := h.svc.SyncStatus(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListServices lists active services with their provider and segment prices.
// GET /api/v1/catalog/services
func (h *Handler) ListServices(c *gin.Context) {
	var req transport.ListServicesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.ListServicesWithPricing(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListBestPricing lists active services with their cheapest provider.
// GET /api/v1/catalog/services/best-pricing
func (h *Handler) ListBestPricing(c *gin.Context) {
	var req transport.ListBestPricingRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.ListServicesWithBestPricing(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) bindProvider(c *gin.Context) (transport.SyncProviderRequest, bool) {
	var req transport.SyncProviderRequest
	if err := c.ShouldBindUri(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return req, false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return req, false
	}
	return req, true
}
