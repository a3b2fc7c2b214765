package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port        int    `koanf:"port"`
		VerifyToken string `koanf:"verify_token"`
		AppSecret   string `koanf:"app_secret"`
	} `koanf:"server"`

	WhatsApp struct {
		BaseURL           string  `koanf:"base_url"`
		PhoneNumberID     string  `koanf:"phone_number_id"`
		AccessToken       string  `koanf:"access_token"`
		RequestsPerSecond float64 `koanf:"requests_per_second"`
		Burst             int     `koanf:"burst"`
	} `koanf:"whatsapp"`

	AI struct {
		Provider       string  `koanf:"provider"`
		APIKey         string  `koanf:"api_key"`
		BaseURL        string  `koanf:"base_url"`
		Model          string  `koanf:"model"`
		Temperature    float64 `koanf:"temperature"`
		MaxTokens      int     `koanf:"max_tokens"`
		TimeoutSeconds int     `koanf:"timeout_seconds"`
		MaxRetries     int     `koanf:"max_retries"`
	} `koanf:"ai"`

	Chat struct {
		SystemPrompt         string `koanf:"system_prompt"`
		MaxTurns             int    `koanf:"max_turns"`
		SessionTTLMinutes    int    `koanf:"session_ttl_minutes"`
		SweepIntervalMinutes int    `koanf:"sweep_interval_minutes"`
	} `koanf:"chat"`

	Moderation struct {
		ProhibitedTerms []string `koanf:"prohibited_terms"`
		ProtectedTerms  []string `koanf:"protected_terms"`
	} `koanf:"moderation"`

	Admin struct {
		Numbers []string `koanf:"numbers"`
	} `koanf:"admin"`

	Logging struct {
		Level  string `koanf:"level"`
		Pretty bool   `koanf:"pretty"`
	} `koanf:"logging"`
}

// SessionTTL returns the idle lifetime of a conversation session.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Chat.SessionTTLMinutes) * time.Minute
}

// SweepInterval returns how often expired sessions are collected.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Chat.SweepIntervalMinutes) * time.Minute
}

// CompletionTimeout returns the per-request deadline for model calls.
func (c *Config) CompletionTimeout() time.Duration {
	return time.Duration(c.AI.TimeoutSeconds) * time.Second
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"server.port":                  8484,
		"whatsapp.base_url":            "https://graph.facebook.com/v19.0",
		"whatsapp.requests_per_second": 10.0,
		"whatsapp.burst":               5,
		"ai.provider":                  "openai",
		"ai.temperature":               0.7,
		"ai.max_tokens":                512,
		"ai.timeout_seconds":           60,
		"ai.max_retries":               3,
		"chat.system_prompt":           "You are a friendly assistant chatting over WhatsApp. Keep replies short and conversational.",
		"chat.max_turns":               16,
		"chat.session_ttl_minutes":     30,
		"chat.sweep_interval_minutes":  5,
		"logging.level":                "info",
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		// Try to load from default locations
		defaultPaths := []string{"./chatrelay.toml", "$HOME/.chatrelay.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix CHATRELAY_
	k.Load(env.Provider("CHATRELAY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "CHATRELAY_")), "_", ".", -1)
	}), nil)

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	// Create sample configuration
	sampleConfig := `# ChatRelay Configuration

[server]
port = 8484
# Token echoed back during the webhook verification handshake.
verify_token = "your-verify-token"
# App secret used to check X-Hub-Signature-256 on deliveries.
# Leave empty to disable signature checks (not recommended).
app_secret = ""

[whatsapp]
base_url = "https://graph.facebook.com/v19.0"
phone_number_id = "your-phone-number-id"
access_token = "your-access-token"
requests_per_second = 10.0
burst = 5

[ai]
# One of: openai, anthropic, googleai, ollama, cohere
provider = "openai"
api_key = "your-api-key"
model = "gpt-4o-mini"
temperature = 0.7
max_tokens = 512
timeout_seconds = 60
max_retries = 3

[chat]
system_prompt = "You are a friendly assistant chatting over WhatsApp. Keep replies short and conversational."
max_turns = 16
session_ttl_minutes = 30
sweep_interval_minutes = 5

[moderation]
# Messages containing any of these terms are refused outright.
prohibited_terms = []
# Terms that insult/compliment targets may not reference.
protected_terms = []

[admin]
# Phone numbers allowed to run admin commands. Formatting does not
# matter, only the digits are compared.
numbers = []

[logging]
level = "info"
pretty = false
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	if config.Server.VerifyToken == "" {
		return fmt.Errorf("server verify_token is required")
	}

	if config.WhatsApp.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp phone_number_id is required")
	}

	if config.WhatsApp.AccessToken == "" {
		return fmt.Errorf("whatsapp access_token is required")
	}

	switch config.AI.Provider {
	case "openai", "anthropic", "googleai", "cohere":
		if config.AI.APIKey == "" {
			return fmt.Errorf("ai api_key is required for provider %s", config.AI.Provider)
		}
	case "ollama":
		// Local provider, no key needed.
	default:
		return fmt.Errorf("unsupported ai provider: %s", config.AI.Provider)
	}

	if config.Chat.MaxTurns < 1 {
		return fmt.Errorf("chat max_turns must be at least 1")
	}

	if config.Chat.SessionTTLMinutes < 1 {
		return fmt.Errorf("chat session_ttl_minutes must be at least 1")
	}

	if config.Chat.SweepIntervalMinutes < 1 {
		return fmt.Errorf("chat sweep_interval_minutes must be at least 1")
	}

	return nil
}
