package caps

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/latticehq/lattice/internal/broker"
	"github.com/latticehq/lattice/internal/infrastructure/config"
	"github.com/latticehq/lattice/internal/infrastructure/resilience"
)

// tokenRecordKey is the scoped storage key holding an app's bearer
// token for outbound calls, written by the integration connect flow.
const tokenRecordKey = "integrations/token"

// IntegrationsClient is the shared outbound HTTP client. Retries are
// safe here: these are plain third-party fetches, unlike inter-app
// calls which stay at-most-once. A per-host circuit breaker keeps one
// misbehaving third party from tying up every app's outbound calls.
type IntegrationsClient struct {
	client *retryablehttp.Client

	mu       sync.Mutex
	breakers map[string]*resilience.Breaker
}

// NewIntegrationsClient creates the shared outbound client.
func NewIntegrationsClient(cfg config.IntegrationsConfig) *IntegrationsClient {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = nil
	return &IntegrationsClient{
		client:   client,
		breakers: make(map[string]*resilience.Breaker),
	}
}

func (c *IntegrationsClient) breakerFor(host string) *resilience.Breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[host]; ok {
		return b
	}
	b := resilience.New(host, resilience.Settings{})
	c.breakers[host] = b
	return b
}

// Integrations is the per-bundle outbound HTTP capability.
type Integrations struct {
	bundle *broker.Context
	client *IntegrationsClient
}

// NewIntegrationsBuilder returns an integrations capability builder
// bound to the shared client.
func NewIntegrationsBuilder(client *IntegrationsClient) func(*broker.Context) broker.Integrations {
	return func(bundle *broker.Context) broker.Integrations {
		return &Integrations{bundle: bundle, client: client}
	}
}

// Request performs an outbound JSON request. A bearer token stored in
// the app's scope (by its connect flow) is attached when present.
func (i *Integrations) Request(ctx context.Context, method, rawURL string, body interface{}) (map[string]interface{}, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	result, err := i.client.breakerFor(parsed.Host).Execute(func() (interface{}, error) {
		return i.do(ctx, method, rawURL, body)
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(map[string]interface{}), nil
}

func (i *Integrations) do(ctx context.Context, method, rawURL string, body interface{}) (interface{}, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := sonic.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if token, err := i.bearerToken(ctx); err == nil && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := i.client.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("outbound request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("outbound request returned %s", resp.Status)
	}

	if len(raw) == 0 {
		return nil, nil
	}
	var out map[string]interface{}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func (i *Integrations) bearerToken(ctx context.Context) (string, error) {
	val, err := i.bundle.Storage().Get(ctx, tokenRecordKey)
	if err != nil || val == nil {
		return "", err
	}
	token, _ := val.(string)
	return token, nil
}
