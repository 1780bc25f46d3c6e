package caps

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/latticehq/lattice/internal/broker"
	"github.com/latticehq/lattice/internal/infrastructure/config"
)

// AIClient talks to the platform's model inference service.
type AIClient struct {
	client *resty.Client
	model  string
}

// NewAIClient creates the shared inference client.
func NewAIClient(cfg config.AIConfig) *AIClient {
	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	return &AIClient{client: client, model: cfg.Model}
}

type completeRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	UserID string `json:"user_id"`
	AppID  string `json:"app_id"`
}

type completeResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// AI is the per-bundle inference capability. Requests carry the
// (user, app) pair for accounting upstream.
type AI struct {
	bundle *broker.Context
	client *AIClient
}

// NewAIBuilder returns an ai capability builder bound to the shared
// client.
func NewAIBuilder(client *AIClient) func(*broker.Context) broker.AI {
	return func(bundle *broker.Context) broker.AI {
		return &AI{bundle: bundle, client: client}
	}
}

// Complete sends a prompt and returns the completion text.
func (a *AI) Complete(ctx context.Context, prompt string) (string, error) {
	var out completeResponse
	resp, err := a.client.client.R().
		SetContext(ctx).
		SetBody(completeRequest{
			Model:  a.client.model,
			Prompt: prompt,
			UserID: a.bundle.UserID(),
			AppID:  a.bundle.AppID(),
		}).
		SetResult(&out).
		Post("/v1/complete")
	if err != nil {
		return "", fmt.Errorf("inference request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("inference service returned %s", resp.Status())
	}
	if out.Error != "" {
		return "", fmt.Errorf("inference failed: %s", out.Error)
	}
	return out.Text, nil
}
