package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

const (
	selectActiveCategoriesQuery = `
		SELECT id, brand, status
		FROM categories
		WHERE status = 'active'`

	selectMappedServicesQuery = `
		SELECT s.id, s.name, spm.provider_id
		FROM services s
		JOIN service_provider_mappings spm ON s.id = spm.service_id
		WHERE spm.provider = $1 AND spm.is_active = TRUE`

	selectProviderMappingsQuery = `
		SELECT service_id, provider_id, is_active
		FROM service_provider_mappings
		WHERE provider = $1`

	selectCustomerGroupsQuery = `
		SELECT id, name
		FROM customer_groups
		WHERE name = ANY($1)`

	insertServicesQuery = `
		INSERT INTO services (name, category_id, description, status, created_at, updated_at)
		VALUES %s
		RETURNING id`

	upsertMappingsQuery = `
		INSERT INTO service_provider_mappings
			(service_id, provider_id, provider, provider_price, is_active, created_at, updated_at)
		VALUES %s
		ON CONFLICT (service_id, provider_id, provider)
		DO UPDATE SET
			provider_price = EXCLUDED.provider_price,
			updated_at = now()`

	upsertPricingsQuery = `
		INSERT INTO service_pricings
			(service_id, customer_group_id, price_sale, profit, is_active, created_at, updated_at)
		VALUES %s
		ON CONFLICT (service_id, customer_group_id)
		DO UPDATE SET
			profit = EXCLUDED.profit,
			updated_at = now()`

	updateMappingPriceQuery = `
		UPDATE service_provider_mappings
		SET provider_price = $1, updated_at = now()
		WHERE service_id = $2 AND provider = $3 AND provider_id = $4`

	updateServiceStatusQuery = `
		UPDATE services
		SET status = $1, updated_at = now()
		WHERE id = $2`
)

// Column counts of the parameterized part of each bulk statement.
const (
	serviceInsertColumns = 4
	mappingUpsertColumns = 5
	pricingUpsertColumns = 5
)

// Repo implements the catalog repository.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new catalog repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// LoadSnapshot runs the four snapshot reads concurrently.
func (r *Repo) LoadSnapshot(ctx context.Context, provider string, groups []string) (Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := r.pool.Query(gctx, selectActiveCategoriesQuery)
		if err != nil {
			return fmt.Errorf("load categories: %w", err)
		}
		snap.Categories, err = pgx.CollectRows(rows, pgx.RowToStructByName[Category])
		if err != nil {
			return fmt.Errorf("scan categories: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		rows, err := r.pool.Query(gctx, selectMappedServicesQuery, provider)
		if err != nil {
			return fmt.Errorf("load mapped services: %w", err)
		}
		snap.Services, err = pgx.CollectRows(rows, pgx.RowToStructByName[MappedService])
		if err != nil {
			return fmt.Errorf("scan mapped services: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		rows, err := r.pool.Query(gctx, selectProviderMappingsQuery, provider)
		if err != nil {
			return fmt.Errorf("load provider mappings: %w", err)
		}
		snap.Mappings, err = pgx.CollectRows(rows, pgx.RowToStructByName[Mapping])
		if err != nil {
			return fmt.Errorf("scan provider mappings: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		rows, err := r.pool.Query(gctx, selectCustomerGroupsQuery, groups)
		if err != nil {
			return fmt.Errorf("load customer groups: %w", err)
		}
		snap.CustomerGroups, err = pgx.CollectRows(rows, pgx.RowToStructByName[CustomerGroup])
		if err != nil {
			return fmt.Errorf("scan customer groups: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// InsertServices inserts services in one multi-row statement.
func (r *Repo) InsertServices(ctx context.Context, rows []NewService) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(rows)*serviceInsertColumns)
	for _, s := range rows {
		args = append(args, s.Name, s.CategoryID, s.Description, s.Status)
	}
	query := fmt.Sprintf(insertServicesQuery, valuesClause(len(rows), serviceInsertColumns, "now()", "now()"))

	result, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert services: %w", err)
	}
	ids, err := pgx.CollectRows(result, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("insert services: %w", err)
	}
	if len(ids) != len(rows) {
		return nil, fmt.Errorf("insert services: expected %d ids, got %d", len(rows), len(ids))
	}
	return ids, nil
}

// UpsertMappings inserts or refreshes provider mappings in one statement.
func (r *Repo) UpsertMappings(ctx context.Context, rows []MappingUpsert) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(rows)*mappingUpsertColumns)
	for _, m := range rows {
		args = append(args, m.ServiceID, m.ProviderID, m.Provider, m.ProviderPrice, m.IsActive)
	}
	query := fmt.Sprintf(upsertMappingsQuery, valuesClause(len(rows), mappingUpsertColumns, "now()", "now()"))

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("upsert mappings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpsertPricings inserts or refreshes segment prices in one statement.
func (r *Repo) UpsertPricings(ctx context.Context, rows []PricingUpsert) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(rows)*pricingUpsertColumns)
	for _, p := range rows {
		args = append(args, p.ServiceID, p.CustomerGroupID, p.PriceSale, p.Profit, p.IsActive)
	}
	query := fmt.Sprintf(upsertPricingsQuery, valuesClause(len(rows), pricingUpsertColumns, "now()", "now()"))

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("upsert pricings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ApplyServiceUpdates updates mapping prices and service statuses inside one
// transaction. Any failing statement rolls back the whole set.
func (r *Repo) ApplyServiceUpdates(ctx context.Context, provider string, rows []ServiceUpdate) error {
	if len(rows) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, u := range rows {
			batch.Queue(updateMappingPriceQuery, u.ProviderPrice, u.ServiceID, provider, u.ProviderID)
			batch.Queue(updateServiceStatusQuery, u.Status, u.ServiceID)
		}

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("update service %d: %w", rows[i/2].ServiceID, err)
			}
		}
		return br.Close()
	})
}

// ListServicesWithPricing lists active services with their mappings and segment prices.
func (r *Repo) ListServicesWithPricing(ctx context.Context, params ListServicesWithPricingParams) ([]ServiceWithPricing, error) {
	whereClauses := []string{"s.status = TRUE"}
	args := []any{}
	argIdx := 1

	if params.CategoryID != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("s.category_id = $%d", argIdx))
		args = append(args, *params.CategoryID)
		argIdx++
	}
	if params.CustomerGroupID != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("sp.customer_group_id = $%d", argIdx))
		args = append(args, *params.CustomerGroupID)
	}

	query := fmt.Sprintf(`
		SELECT s.id, s.name, s.description, s.status, c.name,
			spm.provider, spm.provider_price, sp.price_sale, sp.profit, cg.name
		FROM services s
		JOIN categories c ON s.category_id = c.id
		LEFT JOIN service_provider_mappings spm ON s.id = spm.service_id AND spm.is_active = TRUE
		LEFT JOIN service_pricings sp ON s.id = sp.service_id
		LEFT JOIN customer_groups cg ON sp.customer_group_id = cg.id
		WHERE %s
		ORDER BY s.name, cg.name`, strings.Join(whereClauses, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list services with pricing: %w", err)
	}
	defer rows.Close()

	items := make([]ServiceWithPricing, 0)
	for rows.Next() {
		var item ServiceWithPricing
		if err := rows.Scan(
			&item.ID, &item.Name, &item.Description, &item.Status, &item.CategoryName,
			&item.Provider, &item.ProviderPrice, &item.PriceSale, &item.Profit, &item.CustomerGroup,
		); err != nil {
			return nil, fmt.Errorf("scan service with pricing: %w", err)
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate services with pricing: %w", rows.Err())
	}

	return items, nil
}

// ListServicesWithBestPricing lists active services with their cheapest active provider.
func (r *Repo) ListServicesWithBestPricing(ctx context.Context, categoryID *int64) ([]ServiceBestPricing, error) {
	whereClause := "spm.is_active = TRUE AND s.status = TRUE"
	args := []any{}
	if categoryID != nil {
		whereClause += " AND s.category_id = $1"
		args = append(args, *categoryID)
	}

	query := fmt.Sprintf(`
		SELECT s.id, s.name, s.category_id, c.name,
			MIN(spm.provider_price), STRING_AGG(spm.provider, ', ' ORDER BY spm.provider), COUNT(spm.provider)
		FROM services s
		JOIN categories c ON s.category_id = c.id
		JOIN service_provider_mappings spm ON s.id = spm.service_id
		WHERE %s
		GROUP BY s.id, s.name, s.category_id, c.name
		HAVING COUNT(spm.provider) > 0
		ORDER BY s.name`, whereClause)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list services with best pricing: %w", err)
	}
	defer rows.Close()

	items := make([]ServiceBestPricing, 0)
	for rows.Next() {
		var item ServiceBestPricing
		if err := rows.Scan(
			&item.ID, &item.Name, &item.CategoryID, &item.CategoryName,
			&item.BestProviderPrice, &item.AvailableProviders, &item.ProviderCount,
		); err != nil {
			return nil, fmt.Errorf("scan service best pricing: %w", err)
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate services best pricing: %w", rows.Err())
	}

	return items, nil
}

// valuesClause renders rows of positional placeholders, each row followed by
// the literal trailing expressions: valuesClause(2, 2, "now()") yields
// "($1, $2, now()), ($3, $4, now())".
func valuesClause(rows, cols int, trailing ...string) string {
	var b strings.Builder
	param := 1
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := 0; j < cols; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", param)
			param++
		}
		for _, expr := range trailing {
			b.WriteString(", ")
			b.WriteString(expr)
		}
		b.WriteByte(')')
	}
	return b.String()
}
