package service

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"ppob_backend/internal/catalog/repository"
)

// Customer segments priced for every new service.
const (
	SegmentUser     = "user"
	SegmentReseller = "reseller"
	SegmentPlatinum = "platinum"
)

// Segments lists the customer segments in pricing order.
var Segments = []string{SegmentUser, SegmentReseller, SegmentPlatinum}

// PlaceholderPriceSale is stored until an operator resolves the sale price.
const PlaceholderPriceSale int64 = 0

// MarginTable maps a customer segment to its flat profit add-on.
type MarginTable map[string]int64

// DefaultMargins returns the built-in margin table.
func DefaultMargins() MarginTable {
	return MarginTable{
		SegmentUser:     4,
		SegmentReseller: 3,
		SegmentPlatinum: 2,
	}
}

// LoadMarginTable reads a YAML mapping of segment to margin. An empty path
// yields the defaults; segments missing from the file keep their default.
//
//	user: 5
//	reseller: 3
func LoadMarginTable(path string) (MarginTable, error) {
	margins := DefaultMargins()
	if strings.TrimSpace(path) == "" {
		return margins, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read margin table: %w", err)
	}

	var overrides map[string]int64
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse margin table: %w", err)
	}

	for segment, margin := range overrides {
		if _, known := margins[segment]; !known {
			return nil, fmt.Errorf("margin table: unknown segment %q", segment)
		}
		if margin < 0 {
			return nil, fmt.Errorf("margin table: negative margin for %q", segment)
		}
		margins[segment] = margin
	}
	return margins, nil
}

// DerivePricing emits one pricing row per created service and segment.
// Segments without a customer group in idx are left out.
func DerivePricing(created []CreatedService, idx *Index, margins MarginTable) []repository.PricingUpsert {
	rows := make([]repository.PricingUpsert, 0, len(created)*len(Segments))
	for _, svc := range created {
		for _, segment := range Segments {
			groupID, ok := idx.CustomerGroupID(segment)
			if !ok {
				continue
			}
			rows = append(rows, repository.PricingUpsert{
				ServiceID:       svc.ID,
				CustomerGroupID: groupID,
				PriceSale:       PlaceholderPriceSale,
				Profit:          margins[segment],
				IsActive:        true,
			})
		}
	}
	return rows
}
