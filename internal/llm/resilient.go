package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/chatrelay/internal/retry"
	"github.com/chatrelay/pkg/models"
)

// ResilientClient wraps a Client with retry logic for transient provider
// failures. Permanent failures (bad credentials, unknown model) surface
// after a single attempt.
type ResilientClient struct {
	client      Client
	retryConfig retry.Config
}

// NewResilientClient creates a resilient wrapper with the given retry configuration.
func NewResilientClient(client Client, config retry.Config) *ResilientClient {
	return &ResilientClient{
		client:      client,
		retryConfig: config,
	}
}

// NewResilientClientWithDefaults creates a resilient wrapper with the
// completion-tuned retry configuration.
func NewResilientClientWithDefaults(client Client) *ResilientClient {
	return NewResilientClient(client, retry.CompletionConfig())
}

// GenerateReply calls the wrapped client, retrying transient failures with
// exponential backoff.
func (rc *ResilientClient) GenerateReply(ctx context.Context, history []models.Message) (string, error) {
	var reply string

	result := retry.WithBackoff(ctx, rc.retryConfig, func() error {
		r, err := rc.client.GenerateReply(ctx, history)
		if err != nil {
			return err
		}
		reply = r
		return nil
	})

	if !result.Success {
		return "", fmt.Errorf("completion failed after %d attempts: %w", result.Attempts, result.LastError)
	}

	if result.Attempts > 1 {
		log.Info().
			Int("attempts", result.Attempts).
			Dur("total", result.TotalDuration).
			Msg("Completion succeeded after retrying")
	}
	return reply, nil
}
