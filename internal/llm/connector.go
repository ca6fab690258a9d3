// Package llm wraps the external reasoning model behind a narrow contract.
// Errors and malformed output are distinguishable from "no solutions": this
// package only reports transport/model errors, parsing lives with the
// analysis orchestrator.
package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Client is the reasoning-model contract consumed by the orchestrator.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Provider selects the backing model family.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderClaude Provider = "claude"
	ProviderOllama Provider = "ollama"
)

// Options configure a connector.
type Options struct {
	Provider    Provider
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	// RequestsPerMinute throttles outbound calls; zero disables the limiter.
	RequestsPerMinute int
}

// Connector is a langchaingo-backed Client with an optional rate limiter.
type Connector struct {
	model   llms.Model
	options Options
	limiter *rate.Limiter
}

func NewConnector(ctx context.Context, options Options) (*Connector, error) {
	var model llms.Model
	var err error

	log.Debug().
		Str("provider", string(options.Provider)).
		Str("model", options.Model).
		Float64("temperature", options.Temperature).
		Msg("Creating reasoning model connector")

	switch options.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(options.Model), openai.WithToken(options.APIKey)}
		if options.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(options.BaseURL))
		}
		model, err = openai.New(opts...)
	case ProviderGemini:
		model, err = googleai.New(ctx, googleai.WithAPIKey(options.APIKey))
	case ProviderClaude:
		model, err = anthropic.New(anthropic.WithToken(options.APIKey), anthropic.WithModel(options.Model))
	case ProviderOllama:
		baseURL := options.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model, err = ollama.New(ollama.WithServerURL(baseURL), ollama.WithModel(options.Model))
	default:
		return nil, fmt.Errorf("unsupported provider: %s", options.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", options.Provider, err)
	}

	var limiter *rate.Limiter
	if options.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(options.RequestsPerMinute)/60.0), 1)
	}

	return &Connector{model: model, options: options, limiter: limiter}, nil
}

func (c *Connector) Generate(ctx context.Context, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	callOptions := []llms.CallOption{
		llms.WithTemperature(c.options.Temperature),
	}
	if c.options.MaxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(c.options.MaxTokens))
	}
	if c.options.Provider == ProviderGemini {
		callOptions = append(callOptions, llms.WithModel(c.options.Model))
	}

	response, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, callOptions...)
	if err != nil {
		log.Error().Err(err).
			Str("provider", string(c.options.Provider)).
			Str("model", c.options.Model).
			Msg("Reasoning model call failed")
		return "", err
	}

	log.Debug().
		Str("provider", string(c.options.Provider)).
		Int("response_bytes", len(response)).
		Msg("Reasoning model call succeeded")
	return response, nil
}
