// Package config loads the worker configuration from a YAML file with
// environment overrides for the values that differ per deployment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Environment variables overriding the file values.
const (
	EnvAgentName     = "HAAKEEM_AGENT_NAME"
	EnvAgentIdentity = "HAAKEEM_AGENT_IDENTITY"
	EnvOpenAIKey     = "OPENAI_API_KEY"
)

// Config is the full worker configuration.
type Config struct {
	Room   Room   `yaml:"room"`
	Agent  Agent  `yaml:"agent"`
	OpenAI OpenAI `yaml:"openai"`
}

// Room carries the transport endpoint.
type Room struct {
	// URL is the websocket room endpoint (ws:// or wss://).
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// Agent carries the worker's identity and startup behavior.
type Agent struct {
	// Name is the display name announced to the room.
	Name string `yaml:"name"`

	// Identity is the dispatch identity the room addresses the worker by.
	Identity string `yaml:"identity"`

	// DefaultVariant is the variant started on boot. Empty means the
	// registry default.
	DefaultVariant string `yaml:"default_variant"`

	// FallbackDelay is how long after a failed start the one deferred
	// recovery start waits.
	FallbackDelay time.Duration `yaml:"fallback_delay"`
}

// OpenAI carries the pipeline backend parameters.
type OpenAI struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// Default returns a configuration with the built-in defaults.
func Default() *Config {
	return &Config{
		Agent: Agent{
			Name:     "HAAKEEM",
			Identity: "haakeem-agent",
		},
	}
}

// Load reads the YAML file at path, if non-empty, and applies environment
// overrides on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAgentName); v != "" {
		c.Agent.Name = v
	}
	if v := os.Getenv(EnvAgentIdentity); v != "" {
		c.Agent.Identity = v
	}
	if v := os.Getenv(EnvOpenAIKey); v != "" {
		c.OpenAI.APIKey = v
	}
}

// Validate checks the values the worker cannot run without.
func (c *Config) Validate() error {
	if c.Room.URL == "" {
		return fmt.Errorf("config: room.url is required")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("config: openai.api_key (or %s) is required", EnvOpenAIKey)
	}
	return nil
}
