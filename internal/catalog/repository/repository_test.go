package repository

import (
	"strings"
	"testing"
)

func TestValuesClause(t *testing.T) {
	got := valuesClause(2, 3, "now()", "now()")
	want := "($1, $2, $3, now(), now()), ($4, $5, $6, now(), now())"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestValuesClauseStaysUnderParameterLimit(t *testing.T) {
	// 300 pricing rows is the largest batch the sync engine issues.
	clause := valuesClause(300, pricingUpsertColumns, "now()", "now()")
	if !strings.Contains(clause, "$1500") || strings.Contains(clause, "$1501") {
		t.Fatal("expected exactly 1500 placeholders for 300 pricing rows")
	}
}

func TestMappingUpsertTargetsCompositeKey(t *testing.T) {
	query := strings.ToLower(upsertMappingsQuery)

	requiredFragments := []string{
		"on conflict (service_id, provider_id, provider)",
		"provider_price = excluded.provider_price",
		"updated_at = now()",
	}
	for _, fragment := range requiredFragments {
		if !strings.Contains(query, fragment) {
			t.Fatalf("expected mapping upsert fragment %q to be present", fragment)
		}
	}
}

func TestPricingUpsertTargetsServiceAndGroup(t *testing.T) {
	query := strings.ToLower(upsertPricingsQuery)

	if !strings.Contains(query, "on conflict (service_id, customer_group_id)") {
		t.Fatal("expected pricing upsert to target (service_id, customer_group_id)")
	}
	if strings.Contains(query, "price_sale = excluded") {
		t.Fatal("pricing upsert must not overwrite an operator-resolved price_sale")
	}
}

func TestSnapshotQueriesAreProviderScoped(t *testing.T) {
	for name, query := range map[string]string{
		"mapped services":   selectMappedServicesQuery,
		"provider mappings": selectProviderMappingsQuery,
	} {
		if !strings.Contains(strings.ToLower(query), "provider = $1") {
			t.Fatalf("expected %s query to filter by provider", name)
		}
	}
	if !strings.Contains(strings.ToLower(selectMappedServicesQuery), "spm.is_active = true") {
		t.Fatal("mapped services must only include active mappings")
	}
	if !strings.Contains(strings.ToLower(selectActiveCategoriesQuery), "status = 'active'") {
		t.Fatal("categories must be restricted to active ones")
	}
}

func TestInsertServicesReturnsIDs(t *testing.T) {
	if !strings.Contains(strings.ToLower(insertServicesQuery), "returning id") {
		t.Fatal("service insert must return generated ids")
	}
}
