package service

import (
	"strings"

	"ppob_backend/internal/providers"
)

// Skip reasons reported for items that cannot be placed in the catalog.
const (
	SkipReasonMissingBrand    = "missing brand"
	SkipReasonUnknownCategory = "no active category for brand"
)

// CreateServiceRecord describes a service to insert. ProviderID and
// ProviderPrice only drive the mapping written after the insert.
type CreateServiceRecord struct {
	Name          string
	CategoryID    int64
	Description   string
	Status        bool
	ProviderID    string
	ProviderPrice int64
}

// UpdateRecord refreshes the mapping price and status of an existing service.
type UpdateRecord struct {
	ServiceID     int64
	ProviderID    string
	ProviderPrice int64
	Status        bool
}

// CreateMappingRecord links a provider item to its service.
type CreateMappingRecord struct {
	ProviderID    string
	Provider      string
	ProviderPrice int64
	IsActive      bool
}

// SkippedItem is an item the planner left out of every work list.
type SkippedItem struct {
	ProviderID string
	Brand      string
	Reason     string
}

// Plan is the classified work for one provider run.
type Plan struct {
	Provider       string
	CreateServices []CreateServiceRecord
	UpdateMappings []UpdateRecord
	CreateMappings []CreateMappingRecord
	Skipped        []SkippedItem
	Processed      int
}

// SkippedCount returns how many items were not planned.
func (p Plan) SkippedCount() int {
	return len(p.Skipped)
}

// BuildPlan classifies items against idx in input order. Items sharing a
// provider id are classified independently.
func BuildPlan(provider string, items []providers.Item, idx *Index) Plan {
	plan := Plan{
		Provider:  provider,
		Processed: len(items),
	}

	for _, item := range items {
		providerID := item.ProviderID()

		if strings.TrimSpace(item.Brand) == "" {
			plan.Skipped = append(plan.Skipped, SkippedItem{ProviderID: providerID, Reason: SkipReasonMissingBrand})
			continue
		}
		category, ok := idx.CategoryByBrand(item.Brand)
		if !ok {
			plan.Skipped = append(plan.Skipped, SkippedItem{
				ProviderID: providerID,
				Brand:      item.Brand,
				Reason:     SkipReasonUnknownCategory,
			})
			continue
		}

		if existing, ok := idx.ServiceByProviderID(providerID); ok {
			plan.UpdateMappings = append(plan.UpdateMappings, UpdateRecord{
				ServiceID:     existing.ID,
				ProviderID:    providerID,
				ProviderPrice: item.Price,
				Status:        item.SellerProductStatus,
			})
		} else {
			plan.CreateServices = append(plan.CreateServices, CreateServiceRecord{
				Name:          item.ProductName,
				CategoryID:    category.ID,
				Description:   item.Desc,
				Status:        item.SellerProductStatus,
				ProviderID:    providerID,
				ProviderPrice: item.Price,
			})
		}

		if _, ok := idx.MappingByProviderID(providerID); !ok {
			plan.CreateMappings = append(plan.CreateMappings, CreateMappingRecord{
				ProviderID:    providerID,
				Provider:      provider,
				ProviderPrice: item.Price,
				IsActive:      true,
			})
		}
	}

	return plan
}
