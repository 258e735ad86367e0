package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/cartograph-dev/cartograph/taskerror"
)

// Config configures the HTTP-backed Client.
type Config struct {
	// BaseURL is the upstream API root, e.g. "https://api.example.com/v1".
	BaseURL string
	// APIKey is sent as a bearer token. Credential loading is the caller's
	// responsibility; this client only attaches the value.
	APIKey string
	// HTTPClient is the transport used for requests. Defaults to
	// http.DefaultClient when nil.
	HTTPClient *http.Client
	// RateLimit bounds outbound requests per second. Zero disables
	// pre-emptive throttling.
	RateLimit float64
	// RateBurst is the token bucket burst size. Defaults to 1 when
	// RateLimit is set and RateBurst is zero.
	RateBurst int
}

// HTTPClient is the production Client implementation. It throttles outbound
// calls with a token bucket so the upstream's own rate limiter is rarely
// the first to react, and classifies non-2xx responses into the taskerror
// taxonomy at the point of call.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient constructs an HTTPClient from cfg.
func NewHTTPClient(cfg Config) *HTTPClient {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &HTTPClient{baseURL: cfg.BaseURL, apiKey: cfg.APIKey, http: hc, limiter: limiter}
}

func (c *HTTPClient) CreateWebset(ctx context.Context, req CreateWebsetRequest) (*Webset, error) {
	var ws Webset
	if err := c.do(ctx, "createWebset", http.MethodPost, "/websets", req, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

func (c *HTTPClient) GetWebset(ctx context.Context, id string) (*Webset, error) {
	var ws Webset
	path := "/websets/" + url.PathEscape(id)
	if err := c.do(ctx, "getWebset", http.MethodGet, path, nil, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

func (c *HTTPClient) CancelWebset(ctx context.Context, id string) error {
	path := "/websets/" + url.PathEscape(id) + "/cancel"
	return c.do(ctx, "cancelWebset", http.MethodPost, path, nil, nil)
}

func (c *HTTPClient) DeleteWebset(ctx context.Context, id string) error {
	path := "/websets/" + url.PathEscape(id)
	return c.do(ctx, "deleteWebset", http.MethodDelete, path, nil, nil)
}

func (c *HTTPClient) ListItems(ctx context.Context, websetID string, cursor string, limit int) (*ItemPage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/websets/" + url.PathEscape(websetID) + "/items"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var page ItemPage
	if err := c.do(ctx, "listItems", http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *HTTPClient) CreateMonitor(ctx context.Context, websetID string, cron, timezone string) (*Monitor, error) {
	body := struct {
		Cron     string `json:"cron"`
		Timezone string `json:"timezone,omitempty"`
	}{Cron: cron, Timezone: timezone}
	var m Monitor
	path := "/websets/" + url.PathEscape(websetID) + "/monitors"
	if err := c.do(ctx, "createMonitor", http.MethodPost, path, body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *HTTPClient) CreateResearch(ctx context.Context, req CreateResearchRequest) (*ResearchJob, error) {
	var job ResearchJob
	if err := c.do(ctx, "createResearch", http.MethodPost, "/research", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *HTTPClient) GetResearch(ctx context.Context, id string) (*ResearchJob, error) {
	var job ResearchJob
	path := "/research/" + url.PathEscape(id)
	if err := c.do(ctx, "getResearch", http.MethodGet, path, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// do executes one HTTP round-trip, throttling pre-emptively and classifying
// the response per the taskerror taxonomy. step names the Client method,
// used for error attribution.
func (c *HTTPClient) do(ctx context.Context, step, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return taskerror.Cancelled(step)
		}
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return taskerror.Internal(step, err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return taskerror.Internal(step, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return taskerror.Cancelled(step)
		}
		return taskerror.UpstreamTransient(step, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return taskerror.UpstreamTerminal(step, fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	cause := fmt.Errorf("upstream returned status %d", resp.StatusCode)
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return taskerror.UpstreamTransient(step, cause)
	}
	return taskerror.UpstreamTerminal(step, cause)
}
