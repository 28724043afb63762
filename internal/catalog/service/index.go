package service

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ppob_backend/internal/catalog/repository"
)

// Index is a read-only view of persisted catalog state for one provider,
// built once per run and passed to the planner.
type Index struct {
	categoriesByBrand  map[string]repository.Category
	servicesByProvider map[string]repository.MappedService
	mappingsByProvider map[string]repository.Mapping
	groupsByName       map[string]int64
}

// BuildIndex turns a snapshot into lookup maps. When several rows share a
// key the first one wins.
func BuildIndex(snap repository.Snapshot) *Index {
	idx := &Index{
		categoriesByBrand:  make(map[string]repository.Category, len(snap.Categories)),
		servicesByProvider: make(map[string]repository.MappedService, len(snap.Services)),
		mappingsByProvider: make(map[string]repository.Mapping, len(snap.Mappings)),
		groupsByName:       make(map[string]int64, len(snap.CustomerGroups)),
	}

	for _, c := range snap.Categories {
		key := NormalizeBrand(c.Brand)
		if key == "" {
			continue
		}
		if _, exists := idx.categoriesByBrand[key]; !exists {
			idx.categoriesByBrand[key] = c
		}
	}
	for _, s := range snap.Services {
		if _, exists := idx.servicesByProvider[s.ProviderID]; !exists {
			idx.servicesByProvider[s.ProviderID] = s
		}
	}
	for _, m := range snap.Mappings {
		if _, exists := idx.mappingsByProvider[m.ProviderID]; !exists {
			idx.mappingsByProvider[m.ProviderID] = m
		}
	}
	for _, g := range snap.CustomerGroups {
		if _, exists := idx.groupsByName[g.Name]; !exists {
			idx.groupsByName[g.Name] = g.ID
		}
	}

	return idx
}

// NormalizeBrand returns the lookup key for a brand: trimmed and upper-cased.
func NormalizeBrand(brand string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(brand))
}

// CategoryByBrand looks up an active category by brand, case-insensitively.
func (i *Index) CategoryByBrand(brand string) (repository.Category, bool) {
	c, ok := i.categoriesByBrand[NormalizeBrand(brand)]
	return c, ok
}

// ServiceByProviderID returns the service actively mapped to providerID.
func (i *Index) ServiceByProviderID(providerID string) (repository.MappedService, bool) {
	s, ok := i.servicesByProvider[providerID]
	return s, ok
}

// MappingByProviderID returns any mapping of the provider for providerID,
// active or not.
func (i *Index) MappingByProviderID(providerID string) (repository.Mapping, bool) {
	m, ok := i.mappingsByProvider[providerID]
	return m, ok
}

// CustomerGroupID returns the id of the customer group called name.
func (i *Index) CustomerGroupID(name string) (int64, bool) {
	id, ok := i.groupsByName[name]
	return id, ok
}
