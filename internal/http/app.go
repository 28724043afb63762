// Package http defines how domain modules plug into the gin router.
package http

import (
	"context"

	"ppob_backend/platform/config"
	"ppob_backend/platform/logger"
)

// RouterConfig is the slice of configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs GET /api/health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is assembled by a cmd main and handed to router.New.
type App struct {
	Config RouterConfig
	Logger *logger.Logger
	// Health is usually the database pool adapter. Nil skips the check.
	Health  HealthChecker
	Modules []Module
}
