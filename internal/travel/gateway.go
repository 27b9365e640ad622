// Package travel is the gateway to the external travel-data providers. It
// owns credential rotation, per-call timeouts, typed error mapping and the
// response cache wrap; callers never see transport details.
package travel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tripwise/server/internal/agent/stream"
	"github.com/tripwise/server/internal/cache"
	errx "github.com/tripwise/server/internal/core/error"
	logx "github.com/tripwise/server/pkg/logger"
)

// Config holds provider connectivity settings, sourced from env.
type Config struct {
	Host       string   `envconfig:"RAPIDAPI_HOST" default:"booking-com15.p.rapidapi.com"`
	SearchHost string   `envconfig:"RAPIDAPI_SEARCH_HOST" default:"real-time-web-search.p.rapidapi.com"`
	Keys       []string `envconfig:"RAPIDAPI_KEYS"`
	// BaseURL / SearchBaseURL override the https://{host} derivation; used
	// by tests to point at a local backend.
	BaseURL        string `envconfig:"RAPIDAPI_BASE_URL"`
	SearchBaseURL  string `envconfig:"RAPIDAPI_SEARCH_BASE_URL"`
	TimeoutSeconds int    `envconfig:"PROVIDER_TIMEOUT_SECONDS" default:"25"`
	CacheTTL       string `envconfig:"PROVIDER_CACHE_TTL" default:"10m"`
}

// Client performs single request/response calls against the travel
// providers. Safe for concurrent use across queries.
type Client struct {
	http          *http.Client
	baseURL       string
	searchBaseURL string
	host          string
	searchHost    string
	keys          []string
	cache         cache.Store
	timeout       time.Duration
}

func NewClient(cfg Config, store cache.Store) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://" + cfg.Host
	}
	searchBaseURL := cfg.SearchBaseURL
	if searchBaseURL == "" {
		searchBaseURL = "https://" + cfg.SearchHost
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &Client{
		http:          &http.Client{},
		baseURL:       baseURL,
		searchBaseURL: searchBaseURL,
		host:          cfg.Host,
		searchHost:    cfg.SearchHost,
		keys:          cfg.Keys,
		cache:         store,
		timeout:       timeout,
	}
}

// rotatable reports whether the status is the provider's universal
// rate-limit/auth failure, answered by trying the next pooled credential.
func rotatable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// call performs one cached provider call. The cache key is derived from the
// semantic parameters only, scoped by tool name, so identical calls within
// the TTL window return the stored envelope without touching the network.
func (c *Client) call(ctx context.Context, tool, baseURL, host, path string, params map[string]string) (map[string]any, error) {
	pub := stream.FromContext(ctx)
	pub.Emit(stream.Event{Type: stream.EventToolStart, Tool: tool})
	defer pub.Emit(stream.Event{Type: stream.EventToolComplete, Tool: tool})

	key := cache.Key(tool, params)
	if c.cache != nil {
		if b, ok := c.cache.Get(ctx, key); ok {
			var payload map[string]any
			if err := json.Unmarshal(b, &payload); err == nil {
				logx.Debug().Str("tool", tool).Msg("provider cache hit")
				return payload, nil
			}
		}
	}

	if len(c.keys) == 0 {
		return nil, errx.New(errors.New("no provider credentials configured"),
			http.StatusUnauthorized, errx.ProviderErrorMessage)
	}

	var lastStatus int
	var lastBody []byte
	for _, apiKey := range c.keys {
		status, body, err := c.do(ctx, baseURL, host, path, params, apiKey)
		if err != nil {
			// Network failure or timeout; no point rotating credentials.
			return nil, errx.New(err, http.StatusBadGateway, errx.ProviderErrorMessage)
		}
		if rotatable(status) {
			logx.Warn().Str("tool", tool).Int("status", status).Msg("credential rejected, rotating")
			lastStatus = status
			lastBody = body
			continue
		}
		if status < 200 || status > 299 {
			return nil, errx.New(fmt.Errorf("status %d: %s", status, snippet(body)),
				status, errx.ProviderErrorMessage)
		}

		payload := decodePayload(body)
		if c.cache != nil {
			if b, err := json.Marshal(payload); err == nil {
				c.cache.Set(ctx, key, b)
			}
		}
		return payload, nil
	}

	return nil, errx.New(fmt.Errorf("status %d: %s", lastStatus, snippet(lastBody)),
		lastStatus, errx.RateLimitMessage)
}

func (c *Client) do(ctx context.Context, baseURL, host, path string, params map[string]string, apiKey string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	for name, value := range params {
		q.Set(name, value)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("x-rapidapi-key", apiKey)
	if host != "" {
		req.Header.Set("x-rapidapi-host", host)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// decodePayload tolerates providers that return non-JSON bodies; the
// normalizer downstream copes with any shape.
func decodePayload(body []byte) map[string]any {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		return payload
	}
	var list []any
	if err := json.Unmarshal(body, &list); err == nil {
		return map[string]any{"data": list}
	}
	return map[string]any{"raw": string(body)}
}
