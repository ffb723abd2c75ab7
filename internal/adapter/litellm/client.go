// Package litellm provides an HTTP client for the LiteLLM Proxy: the
// OpenAI-compatible chat completion endpoint and the admin API.
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/LLManager/internal/resilience"
)

// ModelInfo represents a configured model in LiteLLM.
type ModelInfo struct {
	ModelName string            `json:"model_name"`
	Provider  string            `json:"litellm_provider,omitempty"`
	ModelID   string            `json:"model_id,omitempty"`
	ModelInfo map[string]any    `json:"model_info,omitempty"`
	Params    map[string]string `json:"litellm_params,omitempty"`
}

// HealthReport is the per-endpoint health from /health.
type HealthReport struct {
	HealthyEndpoints   []EndpointHealth `json:"healthy_endpoints"`
	UnhealthyEndpoints []EndpointHealth `json:"unhealthy_endpoints"`
	HealthyCount       int              `json:"healthy_count"`
	UnhealthyCount     int              `json:"unhealthy_count"`
}

// EndpointHealth represents the health of a single model endpoint.
type EndpointHealth struct {
	Model   string `json:"model"`
	APIBase string `json:"api_base,omitempty"`
	Error   string `json:"error,omitempty"`
}

// APIError is a non-2xx response from LiteLLM.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("litellm API error %d: %s", e.StatusCode, e.Body)
}

// Client talks to the LiteLLM Proxy.
type Client struct {
	baseURL    string
	masterKey  string
	keySource  func() string
	httpClient *http.Client
	adminHTTP  *http.Client
	breaker    *resilience.Breaker
	pool       *resilience.Pool
}

// NewClient creates a new LiteLLM client. Chat calls are bounded only by the
// caller's context; admin calls time out after 10 seconds.
func NewClient(baseURL, masterKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		masterKey:  masterKey,
		httpClient: &http.Client{},
		adminHTTP:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SetBreaker attaches a circuit breaker to chat calls. Only transport
// failures and 5xx/429 responses count towards opening it.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b.WithFailureFilter(isUpstreamFailure)
}

// SetKeySource makes every request read the master key from fn, so a
// rotated key takes effect without a restart. Call it before first use.
func (c *Client) SetKeySource(fn func() string) {
	c.keySource = fn
}

// SetPool bounds the number of concurrent chat calls.
func (c *Client) SetPool(p *resilience.Pool) {
	c.pool = p
}

// BreakerState reports the chat breaker position, "closed" when none is set.
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return resilience.StateClosed.String()
	}
	return c.breaker.State().String()
}

func isUpstreamFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

// ListModels returns all configured models from LiteLLM.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.do(ctx, c.adminHTTP, http.MethodGet, "/model/info", nil)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	var result struct {
		Data []ModelInfo `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("unmarshal models: %w", err)
	}
	return result.Data, nil
}

// Health checks if LiteLLM is reachable.
func (c *Client) Health(ctx context.Context) (bool, error) {
	_, err := c.do(ctx, c.adminHTTP, http.MethodGet, "/health/liveliness", nil)
	return err == nil, err
}

// HealthDetailed returns the per-endpoint health report.
func (c *Client) HealthDetailed(ctx context.Context) (*HealthReport, error) {
	resp, err := c.do(ctx, c.adminHTTP, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	var report HealthReport
	if err := json.Unmarshal(resp, &report); err != nil {
		return nil, fmt.Errorf("unmarshal health: %w", err)
	}
	return &report, nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	key := c.masterKey
	if c.keySource != nil {
		key = c.keySource()
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}
