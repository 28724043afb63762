package service

import (
	"context"
	"errors"
	"slices"
	"sync"

	"ppob_backend/internal/catalog/repository"
	"ppob_backend/internal/providers"
)

var errTestBatch = errors.New("forced batch failure")

type testServiceRow struct {
	repository.NewService
	ID int64
}

type testMappingKey struct {
	serviceID  int64
	providerID string
	provider   string
}

type testPricingKey struct {
	serviceID int64
	groupID   int64
}

// testRepo is an in-memory Repository with the conflict semantics of the
// SQL statements.
type testRepo struct {
	mu sync.Mutex

	categories []repository.Category
	groups     []repository.CustomerGroup
	services   []testServiceRow
	mappings   []repository.MappingUpsert
	pricings   []repository.PricingUpsert
	nextID     int64

	insertCalls    int
	failInsertCall int
	failUpdates    bool
	failMappings   bool
	onInsert       func(call int)
}

func newTestRepo() *testRepo {
	return &testRepo{
		groups: []repository.CustomerGroup{
			{ID: 1, Name: SegmentUser},
			{ID: 2, Name: SegmentReseller},
			{ID: 3, Name: SegmentPlatinum},
		},
		nextID: 1,
	}
}

func (r *testRepo) addCategory(id int64, brand, status string) {
	r.categories = append(r.categories, repository.Category{ID: id, Brand: brand, Status: status})
}

func (r *testRepo) addService(id int64, name string, categoryID int64) {
	r.services = append(r.services, testServiceRow{ID: id, NewService: repository.NewService{Name: name, CategoryID: categoryID, Status: true}})
	if id >= r.nextID {
		r.nextID = id + 1
	}
}

func (r *testRepo) addMapping(m repository.MappingUpsert) {
	r.mappings = append(r.mappings, m)
}

func (r *testRepo) LoadSnapshot(_ context.Context, provider string, groups []string) (repository.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var snap repository.Snapshot
	for _, c := range r.categories {
		if c.Status == "active" {
			snap.Categories = append(snap.Categories, c)
		}
	}
	for _, m := range r.mappings {
		if m.Provider != provider {
			continue
		}
		snap.Mappings = append(snap.Mappings, repository.Mapping{ServiceID: m.ServiceID, ProviderID: m.ProviderID, IsActive: m.IsActive})
		if !m.IsActive {
			continue
		}
		if svc, ok := r.serviceByID(m.ServiceID); ok {
			snap.Services = append(snap.Services, repository.MappedService{ID: svc.ID, Name: svc.Name, ProviderID: m.ProviderID})
		}
	}
	for _, g := range r.groups {
		if slices.Contains(groups, g.Name) {
			snap.CustomerGroups = append(snap.CustomerGroups, g)
		}
	}
	return snap, nil
}

func (r *testRepo) InsertServices(_ context.Context, rows []repository.NewService) ([]int64, error) {
	r.mu.Lock()
	r.insertCalls++
	call := r.insertCalls
	hook := r.onInsert
	r.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if call == r.failInsertCall {
		return nil, errTestBatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = r.nextID
		r.services = append(r.services, testServiceRow{ID: r.nextID, NewService: row})
		r.nextID++
	}
	return ids, nil
}

func (r *testRepo) UpsertMappings(_ context.Context, rows []repository.MappingUpsert) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failMappings {
		return 0, errTestBatch
	}

	seen := make(map[testMappingKey]struct{}, len(rows))
	for _, row := range rows {
		k := testMappingKey{row.ServiceID, row.ProviderID, row.Provider}
		if _, dup := seen[k]; dup {
			return 0, errors.New("ON CONFLICT DO UPDATE command cannot affect row a second time")
		}
		seen[k] = struct{}{}
	}

	for _, row := range rows {
		k := testMappingKey{row.ServiceID, row.ProviderID, row.Provider}
		if i := r.mappingIndex(k); i >= 0 {
			r.mappings[i].ProviderPrice = row.ProviderPrice
			continue
		}
		r.mappings = append(r.mappings, row)
	}
	return int64(len(rows)), nil
}

func (r *testRepo) UpsertPricings(_ context.Context, rows []repository.PricingUpsert) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range rows {
		k := testPricingKey{row.ServiceID, row.CustomerGroupID}
		updated := false
		for i, existing := range r.pricings {
			if (testPricingKey{existing.ServiceID, existing.CustomerGroupID}) == k {
				r.pricings[i].Profit = row.Profit
				updated = true
				break
			}
		}
		if !updated {
			r.pricings = append(r.pricings, row)
		}
	}
	return int64(len(rows)), nil
}

func (r *testRepo) ApplyServiceUpdates(_ context.Context, provider string, rows []repository.ServiceUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failUpdates {
		return errTestBatch
	}
	for _, u := range rows {
		for i, m := range r.mappings {
			if m.ServiceID == u.ServiceID && m.Provider == provider && m.ProviderID == u.ProviderID {
				r.mappings[i].ProviderPrice = u.ProviderPrice
			}
		}
		for i, s := range r.services {
			if s.ID == u.ServiceID {
				r.services[i].Status = u.Status
			}
		}
	}
	return nil
}

func (r *testRepo) ListServicesWithPricing(context.Context, repository.ListServicesWithPricingParams) ([]repository.ServiceWithPricing, error) {
	return nil, nil
}

func (r *testRepo) ListServicesWithBestPricing(context.Context, *int64) ([]repository.ServiceBestPricing, error) {
	return nil, nil
}

func (r *testRepo) serviceByID(id int64) (testServiceRow, bool) {
	for _, s := range r.services {
		if s.ID == id {
			return s, true
		}
	}
	return testServiceRow{}, false
}

func (r *testRepo) mappingIndex(k testMappingKey) int {
	for i, m := range r.mappings {
		if (testMappingKey{m.ServiceID, m.ProviderID, m.Provider}) == k {
			return i
		}
	}
	return -1
}

func (r *testRepo) pricingsFor(serviceID int64) []repository.PricingUpsert {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.PricingUpsert
	for _, p := range r.pricings {
		if p.ServiceID == serviceID {
			out = append(out, p)
		}
	}
	return out
}

func (r *testRepo) mappingsFor(provider, providerID string) []repository.MappingUpsert {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.MappingUpsert
	for _, m := range r.mappings {
		if m.Provider == provider && m.ProviderID == providerID {
			out = append(out, m)
		}
	}
	return out
}

func (r *testRepo) serviceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.services)
}

func (r *testRepo) pricingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pricings)
}

// testProviderClient serves a fixed price list or delegates to fetch.
type testProviderClient struct {
	name  string
	items []providers.Item
	err   error
	fetch func(ctx context.Context) ([]providers.Item, error)
}

func (c *testProviderClient) Name() string { return c.name }

func (c *testProviderClient) FetchCatalog(ctx context.Context) ([]providers.Item, error) {
	if c.fetch != nil {
		return c.fetch(ctx)
	}
	return c.items, c.err
}
