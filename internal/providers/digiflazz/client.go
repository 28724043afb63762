// Package digiflazz provides the HTTP client for the Digiflazz price list API.
package digiflazz

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ppob_backend/internal/providers"
	"ppob_backend/platform/apperr"
	"ppob_backend/platform/logger"
)

// Name is the provider identifier stored in service_provider_mappings.provider.
const Name = "digiflazz"

const (
	defaultBaseURL = "https://api.digiflazz.com"
	priceListPath  = "/v1/price-list"
	maxBodyBytes   = 64 << 20
)

// Config configures the client.
type Config struct {
	BaseURL       string
	Username      string
	APIKey        string
	Timeout       time.Duration
	RatePerMinute int
}

// Client is the Digiflazz price list client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	apiKey     string
	limiter    *rate.Limiter
	log        *logger.Logger
}

// New creates a new Digiflazz client.
func New(cfg Config, log *logger.Logger) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// The price list endpoint is throttled upstream.
	limit := rate.Inf
	if cfg.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RatePerMinute))
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		username:   cfg.Username,
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(limit, 1),
		log:        log,
	}
}

// Name implements providers.Client.
func (c *Client) Name() string {
	return Name
}

type priceListRequest struct {
	Cmd      string `json:"cmd"`
	Username string `json:"username"`
	Sign     string `json:"sign"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type errorBody struct {
	RC      string `json:"rc"`
	Message string `json:"message"`
}

// FetchCatalog implements providers.Client.
func (c *Client) FetchCatalog(ctx context.Context) ([]providers.Item, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Canceled("digiflazz price list throttled", err)
		}
		// The next token falls after the deadline.
		return nil, apperr.Unavailable("digiflazz price list rate limit exceeds deadline", err)
	}

	body, err := json.Marshal(priceListRequest{
		Cmd:      "prepaid",
		Username: c.username,
		Sign:     Sign(c.username, c.apiKey, "pricelist"),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+priceListPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Canceled("digiflazz price list request cancelled", ctx.Err())
		}
		return nil, apperr.Unavailable("digiflazz price list request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Unavailable("read digiflazz price list", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Unavailable("digiflazz price list", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	items, err := decodePriceList(raw)
	if err != nil {
		return nil, err
	}

	if c.log != nil {
		c.log.Debug("digiflazz price list fetched", "items", len(items))
	}
	return items, nil
}

// decodePriceList accepts {"data": [...]} and turns the error envelope
// {"data": {"rc": "..", "message": ".."}} into an Unavailable error.
func decodePriceList(raw []byte) ([]providers.Item, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperr.Unavailable("decode digiflazz price list", err)
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, apperr.Unavailable("decode digiflazz price list", fmt.Errorf("missing data field"))
	}

	if data[0] == '{' {
		var eb errorBody
		if err := json.Unmarshal(data, &eb); err != nil {
			return nil, apperr.Unavailable("decode digiflazz error body", err)
		}
		return nil, apperr.Unavailable("digiflazz rejected price list request",
			fmt.Errorf("rc=%s: %s", eb.RC, eb.Message))
	}

	var items []providers.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, apperr.Unavailable("decode digiflazz price list items", err)
	}
	return items, nil
}

// Sign computes md5(username + apiKey + suffix) as hex.
func Sign(username, apiKey, suffix string) string {
	sum := md5.Sum([]byte(username + apiKey + suffix))
	return hex.EncodeToString(sum[:])
}

var _ providers.Client = (*Client)(nil)
