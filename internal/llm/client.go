package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/cohere"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/chatrelay/pkg/models"
)

// ErrEmptyCompletion is returned when the provider answers without any
// usable text.
var ErrEmptyCompletion = errors.New("completion service returned an empty reply")

// Client produces an assistant reply for an ordered conversation history.
type Client interface {
	GenerateReply(ctx context.Context, history []models.Message) (string, error)
}

// Provider represents a completion backend type
type Provider string

const (
	// Provider types
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogleAI  Provider = "googleai"
	ProviderOllama    Provider = "ollama"
	ProviderCohere    Provider = "cohere"
)

// Options contains options for creating a connector
type Options struct {
	Provider    Provider `json:"provider"`
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// Connector adapts a langchaingo model to the Client interface.
type Connector struct {
	provider Provider
	llm      llms.Model
	options  Options
}

// NewConnector creates a new connector for the specified provider
func NewConnector(ctx context.Context, options Options) (*Connector, error) {
	if options.Model == "" {
		options.Model = defaultModel(options.Provider)
	}

	log.Debug().
		Str("provider", string(options.Provider)).
		Str("model", options.Model).
		Float64("temperature", options.Temperature).
		Msg("Creating completion connector")

	var model llms.Model
	var err error

	switch options.Provider {
	case ProviderOpenAI:
		model, err = createOpenAIModel(options)
	case ProviderAnthropic:
		model, err = createAnthropicModel(options)
	case ProviderGoogleAI:
		model, err = createGoogleAIModel(ctx, options)
	case ProviderOllama:
		model, err = createOllamaModel(options)
	case ProviderCohere:
		model, err = createCohereModel(options)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", options.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", options.Provider, err)
	}

	return &Connector{
		provider: options.Provider,
		llm:      model,
		options:  options,
	}, nil
}

func defaultModel(provider Provider) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderGoogleAI:
		return "gemini-2.5-flash"
	case ProviderOllama:
		return "llama3"
	case ProviderCohere:
		return "command"
	}
	return ""
}

// Helper functions to create models for specific providers

func createOpenAIModel(options Options) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(options.Model),
		openai.WithToken(options.APIKey),
	}

	// Add custom base URL if provided
	if options.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(options.BaseURL))
	}

	return openai.New(opts...)
}

func createAnthropicModel(options Options) (llms.Model, error) {
	opts := []anthropic.Option{
		anthropic.WithToken(options.APIKey),
		anthropic.WithModel(options.Model),
	}

	return anthropic.New(opts...)
}

func createGoogleAIModel(ctx context.Context, options Options) (llms.Model, error) {
	// Keep construction minimal; the model is pinned per call instead,
	// which avoids parameter conflicts in the googleai client.
	opts := []googleai.Option{
		googleai.WithAPIKey(options.APIKey),
	}

	model, err := googleai.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create googleai model: %w", err)
	}
	return model, nil
}

func createOllamaModel(options Options) (llms.Model, error) {
	// Set default server URL if not provided
	if options.BaseURL == "" {
		options.BaseURL = "http://localhost:11434"
	}

	opts := []ollama.Option{
		ollama.WithServerURL(options.BaseURL),
		ollama.WithModel(options.Model),
	}

	return ollama.New(opts...)
}

func createCohereModel(options Options) (llms.Model, error) {
	opts := []cohere.Option{
		cohere.WithToken(options.APIKey),
		cohere.WithModel(options.Model),
	}

	// Add custom base URL if provided
	if options.BaseURL != "" {
		opts = append(opts, cohere.WithBaseURL(options.BaseURL))
	}

	return cohere.New(opts...)
}

// GenerateReply replays the history to the model in order and returns the
// text of the first choice.
func (c *Connector) GenerateReply(ctx context.Context, history []models.Message) (string, error) {
	content := make([]llms.MessageContent, 0, len(history))
	for _, m := range history {
		content = append(content, llms.TextParts(chatMessageType(m.Role), m.Content))
	}

	callOptions := []llms.CallOption{
		llms.WithTemperature(c.options.Temperature),
	}
	if c.options.MaxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(c.options.MaxTokens))
	}
	// The googleai client needs the model named on every call
	if c.provider == ProviderGoogleAI {
		callOptions = append(callOptions, llms.WithModel(c.options.Model))
	}

	resp, err := c.llm.GenerateContent(ctx, content, callOptions...)
	if err != nil {
		return "", fmt.Errorf("completion call failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	reply := strings.TrimSpace(resp.Choices[0].Content)
	if reply == "" {
		return "", ErrEmptyCompletion
	}
	return reply, nil
}

func chatMessageType(role models.Role) llms.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// GetProvider returns the provider of this connector
func (c *Connector) GetProvider() Provider {
	return c.provider
}

// GetModel returns the model name in use
func (c *Connector) GetModel() string {
	return c.options.Model
}
