package repository

import (
	"context"
)

// Category is an active catalog category; Brand is matched against provider items.
type Category struct {
	ID     int64  `db:"id"`
	Brand  string `db:"brand"`
	Status string `db:"status"`
}

// MappedService is a service linked to a provider item through an active mapping.
type MappedService struct {
	ID         int64  `db:"id"`
	Name       string `db:"name"`
	ProviderID string `db:"provider_id"`
}

// Mapping is an existing service_provider_mappings row for one provider.
type Mapping struct {
	ServiceID  int64  `db:"service_id"`
	ProviderID string `db:"provider_id"`
	IsActive   bool   `db:"is_active"`
}

// CustomerGroup is a buyer segment such as user, reseller or platinum.
type CustomerGroup struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Snapshot is the persisted state one reconciliation run classifies against.
type Snapshot struct {
	Categories     []Category
	Services       []MappedService
	Mappings       []Mapping
	CustomerGroups []CustomerGroup
}

// NewService contains data for inserting a service.
type NewService struct {
	Name        string
	CategoryID  int64
	Description string
	Status      bool
}

// MappingUpsert contains data for inserting or refreshing a provider mapping.
type MappingUpsert struct {
	ServiceID     int64
	ProviderID    string
	Provider      string
	ProviderPrice int64
	IsActive      bool
}

// PricingUpsert contains data for inserting or refreshing a segment price.
type PricingUpsert struct {
	ServiceID       int64
	CustomerGroupID int64
	PriceSale       int64
	Profit          int64
	IsActive        bool
}

// ServiceUpdate refreshes the provider price of a mapping and the status of its service.
type ServiceUpdate struct {
	ServiceID     int64
	ProviderID    string
	ProviderPrice int64
	Status        bool
}

// ServiceWithPricing is one (service, mapping, segment price) row of the catalog view.
type ServiceWithPricing struct {
	ID            int64
	Name          string
	Description   string
	Status        bool
	CategoryName  string
	Provider      *string
	ProviderPrice *int64
	PriceSale     *int64
	Profit        *int64
	CustomerGroup *string
}

// ServiceBestPricing summarizes the cheapest active provider for a service.
type ServiceBestPricing struct {
	ID                 int64
	Name               string
	CategoryID         int64
	CategoryName       string
	BestProviderPrice  int64
	AvailableProviders string
	ProviderCount      int
}

// ListServicesWithPricingParams defines filters for the catalog pricing view.
type ListServicesWithPricingParams struct {
	CategoryID      *int64
	CustomerGroupID *int64
}

// Repository defines catalog storage operations used by provider synchronization.
type Repository interface {
	// LoadSnapshot performs the four bulk reads a run needs: active categories,
	// services actively mapped to provider, all mappings of provider and the
	// customer groups named in groups.
	LoadSnapshot(ctx context.Context, provider string, groups []string) (Snapshot, error)

	// InsertServices inserts rows in one statement and returns their ids in input order.
	InsertServices(ctx context.Context, rows []NewService) ([]int64, error)
	// UpsertMappings inserts mappings, refreshing provider_price on (service_id, provider_id, provider) conflict.
	UpsertMappings(ctx context.Context, rows []MappingUpsert) (int64, error)
	// UpsertPricings inserts segment prices, refreshing profit on (service_id, customer_group_id) conflict.
	UpsertPricings(ctx context.Context, rows []PricingUpsert) (int64, error)
	// ApplyServiceUpdates runs every update in a single transaction.
	ApplyServiceUpdates(ctx context.Context, provider string, rows []ServiceUpdate) error

	ListServicesWithPricing(ctx context.Context, params ListServicesWithPricingParams) ([]ServiceWithPricing, error)
	ListServicesWithBestPricing(ctx context.Context, categoryID *int64) ([]ServiceBestPricing, error)
}
