// Package openaicompat is the reasoning engine client. It speaks the OpenAI
// chat completions protocol, which Gemini, Mistral, Groq, vLLM and LiteLLM
// all expose behind a configurable base_url.
package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/flemzord/toolgate/internal/provider"
)

// ErrMissingAPIKey is returned by New when no key was supplied.
var ErrMissingAPIKey = errors.New("engine: api key is empty")

// Provider is an OpenAI-compatible engine client.
type Provider struct {
	config Config
	apiKey string
	client *http.Client
	logger *slog.Logger
}

// New builds a client from cfg. apiKey is resolved by the caller from
// cfg.APIKeyEnv.
func New(cfg Config, apiKey string, logger *slog.Logger) (*Provider, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Provider{
		config: cfg,
		apiKey: apiKey,
		// Cancellation and deadlines come from the caller's context; the
		// transport only bounds the wait for response headers.
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: cfg.Timeout,
			},
		},
		logger: logger.With("component", "engine", "model", cfg.Model),
	}, nil
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	oaiReq := buildRequest(p.config, req)

	resp, err := p.doRequest(ctx, oaiReq)
	if err != nil {
		return provider.CompletionResponse{}, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		return provider.CompletionResponse{}, handleErrorResponse(resp)
	}

	var oaiResp oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("%w: decode response: %w", provider.ErrInvalidResponse, err)
	}
	if len(oaiResp.Choices) == 0 {
		return provider.CompletionResponse{}, fmt.Errorf("%w: no choices returned", provider.ErrInvalidResponse)
	}

	out := parseResponse(oaiResp)
	p.logger.Debug("completion received",
		"finish_reason", out.FinishReason,
		"tool_calls", len(out.ToolCalls),
		"total_tokens", out.Usage.TotalTokens,
	)
	return out, nil
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	return p.config.Model
}

// Config returns the effective configuration.
func (p *Provider) Config() Config {
	return p.config
}

var _ provider.Provider = (*Provider)(nil)
