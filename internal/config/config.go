// Package config handles TaskPilot configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/taskpilot/config.yaml, /etc/taskpilot/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "taskpilot", "config.yaml"))
	}

	paths = append(paths, "/etc/taskpilot/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all TaskPilot configuration.
type Config struct {
	Listen    ListenConfig `yaml:"listen"`
	Model     ModelConfig  `yaml:"model"`
	Auth      AuthConfig   `yaml:"auth"`
	Agent     AgentConfig  `yaml:"agent"`
	DataDir   string       `yaml:"data_dir"`
	LogLevel  string       `yaml:"log_level"`
	LogFormat string       `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelConfig defines the language model provider settings.
type ModelConfig struct {
	Provider  string          `yaml:"provider"` // openai or anthropic
	Name      string          `yaml:"name"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
}

// OpenAIConfig defines OpenAI API settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // override for compatible endpoints
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// AuthConfig defines token issuance settings.
type AuthConfig struct {
	// JWTSecret signs access and refresh tokens. Required in production;
	// the serve command refuses to start without it.
	JWTSecret string `yaml:"jwt_secret"`
	// AccessTTLSeconds is the access token lifetime (default 7 days).
	AccessTTLSeconds int `yaml:"access_ttl_seconds"`
	// RefreshTTLSeconds is the refresh token lifetime (default 14 days).
	RefreshTTLSeconds int `yaml:"refresh_ttl_seconds"`
}

// AgentConfig tunes the tool dispatch loop and context window.
type AgentConfig struct {
	// MaxIterations caps model round-trips per chat turn (default 5).
	MaxIterations int `yaml:"max_iterations"`
	// ContextMessages is how many recent messages are sent as history (default 20).
	ContextMessages int `yaml:"context_messages"`
	// SummarizeThreshold triggers conversation compaction once a
	// conversation holds this many live messages (default 20).
	SummarizeThreshold int `yaml:"summarize_threshold"`
	// KeepRecent is how many recent messages survive compaction (default 10).
	KeepRecent int `yaml:"keep_recent"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Model: ModelConfig{
			Provider: "openai",
			Name:     "gpt-4-turbo-preview",
		},
		Auth: AuthConfig{
			AccessTTLSeconds:  604800,
			RefreshTTLSeconds: 1209600,
		},
		Agent: AgentConfig{
			MaxIterations:      5,
			ContextMessages:    20,
			SummarizeThreshold: 20,
			KeepRecent:         10,
		},
		DataDir: "data",
	}
}

// Validate checks settings that have no sensible fallback.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	switch c.Model.Provider {
	case "openai":
		if c.Model.OpenAI.APIKey == "" {
			return fmt.Errorf("model.openai.api_key is required when provider is openai")
		}
	case "anthropic":
		if c.Model.Anthropic.APIKey == "" {
			return fmt.Errorf("model.anthropic.api_key is required when provider is anthropic")
		}
	default:
		return fmt.Errorf("unknown model provider %q (valid: openai, anthropic)", c.Model.Provider)
	}
	return nil
}
