// Package providers defines the upstream price-list capability consumed by
// catalog synchronization and a registry of configured provider clients.
package providers

import (
	"context"
	"strings"

	"ppob_backend/platform/apperr"
)

// Item is one entry of a provider price list.
type Item struct {
	ProductName         string `json:"product_name"`
	Category            string `json:"category"`
	Brand               string `json:"brand"`
	Type                string `json:"type"`
	SellerName          string `json:"seller_name"`
	Price               int64  `json:"price"`
	BuyerSkuCode        string `json:"buyer_sku_code"`
	BuyerProductStatus  bool   `json:"buyer_product_status"`
	SellerProductStatus bool   `json:"seller_product_status"`
	UnlimitedStock      bool   `json:"unlimited_stock"`
	Stock               int64  `json:"stock"`
	Multi               bool   `json:"multi"`
	StartCutOff         string `json:"start_cut_off"`
	EndCutOff           string `json:"end_cut_off"`
	Desc                string `json:"desc"`
}

// ProviderID is the provider-side identifier of the item.
func (i Item) ProviderID() string {
	return i.BuyerSkuCode
}

// Client fetches the full price list of one provider.
type Client interface {
	Name() string
	FetchCatalog(ctx context.Context) ([]Item, error)
}

// Registry holds the configured provider clients in registration order.
type Registry struct {
	order   []string
	clients map[string]Client
}

// NewRegistry builds a registry. Later clients with a duplicate name replace
// earlier ones but keep the original position.
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		if c == nil {
			continue
		}
		name := strings.TrimSpace(c.Name())
		if _, exists := r.clients[name]; !exists {
			r.order = append(r.order, name)
		}
		r.clients[name] = c
	}
	return r
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns the client registered under name.
func (r *Registry) Get(name string) (Client, error) {
	c, ok := r.clients[strings.TrimSpace(name)]
	if !ok {
		return nil, apperr.NotFound("provider not configured: " + name)
	}
	return c, nil
}
