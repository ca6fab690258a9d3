package llm

import (
	"context"
	"time"

	"github.com/settleline/internal/retry"
)

// ResilientClient wraps a Client with retry logic and per-request timeouts.
// Only transport-level errors are retried here; unusable output is the
// orchestrator's concern.
type ResilientClient struct {
	client      Client
	retryConfig retry.Config
	timeout     time.Duration
}

func NewResilientClient(client Client, config retry.Config, timeout time.Duration) *ResilientClient {
	return &ResilientClient{client: client, retryConfig: config, timeout: timeout}
}

func NewResilientClientWithDefaults(client Client) *ResilientClient {
	return NewResilientClient(client, retry.LLMConfig(), 2*time.Minute)
}

func (rc *ResilientClient) Generate(ctx context.Context, prompt string) (string, error) {
	if rc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rc.timeout)
		defer cancel()
	}

	var response string
	result := retry.WithBackoffAndReason(ctx, rc.retryConfig, func() (error, string) {
		out, err := rc.client.Generate(ctx, prompt)
		if err != nil {
			return err, err.Error()
		}
		response = out
		return nil, "success"
	})
	if !result.Success {
		return "", result.LastError
	}
	return response, nil
}
