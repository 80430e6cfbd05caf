package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/scriptbox/scriptbox/internal/resilience"
	"github.com/scriptbox/scriptbox/internal/types"
)

// FetchConfig tunes the outbound HTTP capability.
type FetchConfig struct {
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	MaxResponseBytes  int64
	// AllowHost, when set, must return true for a host to be reachable.
	// Nil allows everything.
	AllowHost func(host string) bool
}

// DefaultFetchConfig returns production-ready fetch configuration.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:           10 * time.Second,
		MaxRetries:        3,
		RequestsPerSecond: 10,
		MaxResponseBytes:  1 << 20,
	}
}

// Fetch provides outbound HTTP to guest scripts, rate limited and guarded
// by a circuit breaker so a failing upstream cannot be hammered from
// inside the sandbox.
type Fetch struct {
	cfg     FetchConfig
	client  *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// NewFetch creates the fetch capability.
func NewFetch(cfg FetchConfig) *Fetch {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = 1 << 20
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "scriptbox-fetch/1.0")
	client.SetTransport(retryClient.HTTPClient.Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}

	return &Fetch{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		breaker: resilience.New("fetch", resilience.Settings{
			Timeout: 30 * time.Second,
		}),
	}
}

// Definition returns capability metadata.
func (f *Fetch) Definition() types.Capability {
	urlParam := types.Param{Name: "url", Type: "string", Description: "Request URL", Required: true}
	headersParam := types.Param{Name: "headers", Type: "object", Description: "Request headers"}

	return types.Capability{
		ID:          "fetch",
		Name:        "Data Fetch",
		Description: "Outbound HTTP requests with retry, rate limiting and circuit breaking",
		Kind:        types.KindNetwork,
		Operations: []types.Operation{
			{
				ID:          "fetch.get",
				Name:        "GET",
				Description: "Fetch a URL",
				Params:      []types.Param{urlParam, headersParam},
				Returns:     "object",
			},
			{
				ID:          "fetch.post",
				Name:        "POST",
				Description: "Post a body to a URL",
				Params: []types.Param{
					urlParam,
					{Name: "body", Type: "any", Description: "Request body, JSON-encoded"},
					headersParam,
				},
				Returns:  "object",
				Mutating: true,
			},
			{
				ID:          "fetch.head",
				Name:        "HEAD",
				Description: "Fetch headers for a URL",
				Params:      []types.Param{urlParam},
				Returns:     "object",
			},
		},
	}
}

// Execute runs a fetch operation.
func (f *Fetch) Execute(ctx context.Context, opID string, params map[string]interface{}, _ *types.Context) (*types.Result, error) {
	switch opID {
	case "fetch.get":
		return f.do(ctx, "GET", params)
	case "fetch.post":
		return f.do(ctx, "POST", params)
	case "fetch.head":
		return f.do(ctx, "HEAD", params)
	default:
		return types.Fail(fmt.Sprintf("unknown operation: %s", opID)), nil
	}
}

func (f *Fetch) do(ctx context.Context, method string, params map[string]interface{}) (*types.Result, error) {
	rawURL, ok := params["url"].(string)
	if !ok || rawURL == "" {
		return types.Fail("url parameter required"), nil
	}
	if err := f.checkURL(rawURL); err != nil {
		return types.Fail(err.Error()), nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return types.Fail("rate limit wait cancelled"), nil
	}

	result, err := f.breaker.Execute(func() (interface{}, error) {
		req := f.client.R().SetContext(ctx)
		if headers, ok := params["headers"].(map[string]interface{}); ok {
			for name, value := range headers {
				req.SetHeader(name, fmt.Sprint(value))
			}
		}
		if body, ok := params["body"]; ok && method == "POST" {
			req.SetHeader("Content-Type", "application/json")
			req.SetBody(body)
		}

		resp, err := req.Execute(method, rawURL)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return types.Fail(fmt.Sprintf("fetch failed: %v", err)), nil
	}

	resp := result.(*resty.Response)
	body := resp.Body()
	truncated := false
	if int64(len(body)) > f.cfg.MaxResponseBytes {
		body = body[:f.cfg.MaxResponseBytes]
		truncated = true
	}

	respHeaders := make(map[string]interface{})
	for name, values := range resp.Header() {
		if len(values) > 0 {
			respHeaders[name] = values[0]
		}
	}

	return types.Ok(map[string]interface{}{
		"status":    int64(resp.StatusCode()),
		"body":      string(body),
		"headers":   respHeaders,
		"truncated": truncated,
	}), nil
}

func (f *Fetch) checkURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if f.cfg.AllowHost != nil && !f.cfg.AllowHost(parsed.Hostname()) {
		return fmt.Errorf("host %q is not allowed", parsed.Hostname())
	}
	return nil
}
