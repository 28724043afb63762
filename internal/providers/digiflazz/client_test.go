package digiflazz

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ppob_backend/platform/apperr"
	"ppob_backend/platform/logger"
)

const priceListFixture = `{"data":[
 {"product_name":"Pulsa 10rb","category":"Pulsa","brand":"TELKOMSEL","type":"Umum","seller_name":"Seller A",
  "price":9500,"buyer_sku_code":"TSEL10","buyer_product_status":true,"seller_product_status":true,
  "unlimited_stock":true,"stock":0,"multi":true,"start_cut_off":"23:45","end_cut_off":"00:15","desc":"Pulsa Telkomsel 10.000"}
]}`

func newTestClient(url string) *Client {
	return New(Config{BaseURL: url, Username: "user", APIKey: "key", Timeout: 2 * time.Second}, logger.Discard())
}

func TestFetchCatalogDecodesItemsAndSigns(t *testing.T) {
	var got priceListRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != priceListPath || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(priceListFixture))
	}))
	defer srv.Close()

	items, err := newTestClient(srv.URL).FetchCatalog(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	item := items[0]
	if item.ProviderID() != "TSEL10" || item.Price != 9500 || !item.SellerProductStatus || item.Brand != "TELKOMSEL" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if got.Username != "user" || got.Sign != Sign("user", "key", "pricelist") {
		t.Fatalf("unexpected request payload: %+v", got)
	}
}

func TestFetchCatalogErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"rc":"41","message":"Signature Anda salah"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchCatalog(context.Background())
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestFetchCatalogNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchCatalog(context.Background())
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestFetchCatalogMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchCatalog(context.Background())
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestFetchCatalogHonoursContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv.URL).FetchCatalog(ctx)
	if !apperr.Is(err, apperr.KindCanceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
}

func TestFetchCatalogRateLimitPastDeadlineIsUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(priceListFixture))
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Username: "user", APIKey: "key", Timeout: 2 * time.Second, RatePerMinute: 1}, logger.Discard())
	if _, err := client.FetchCatalog(context.Background()); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.FetchCatalog(ctx)
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if ctx.Err() != nil {
		t.Fatalf("limiter should refuse before the deadline, got %v", ctx.Err())
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one upstream call, got %d", n)
	}
}
