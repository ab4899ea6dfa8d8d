// Package config handles sharpai configuration loading.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when a value is absent from the config file.
const (
	DefaultEndpoint = "http://localhost:8000"
	DefaultTimeout  = 5 * time.Minute
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/sharpai/config.yaml, /etc/sharpai/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sharpai", "config.yaml"))
	}

	paths = append(paths, "/etc/sharpai/config.yaml")
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

// Config holds all sharpai configuration.
type Config struct {
	// Endpoint is the base URL of the SharpAI server. Both the Ollama
	// (/api/*) and OpenAI (/v1/*) surfaces are served from it.
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds each non-streaming request. Streaming requests are
	// bounded by their context instead.
	Timeout time.Duration `yaml:"timeout"`

	// TLSInsecureSkipVerify accepts any server certificate. Only for
	// servers on a trusted network with self-signed certificates.
	TLSInsecureSkipVerify bool `yaml:"tls_insecure_skip_verify"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text or json

	// LogRequests and LogResponses enable request size and response
	// body logging on the SDK client.
	LogRequests  bool `yaml:"log_requests"`
	LogResponses bool `yaml:"log_responses"`

	Journal JournalConfig `yaml:"journal"`
	Check   CheckConfig   `yaml:"check"`
}

// JournalConfig controls the on-disk record of stream sessions.
type JournalConfig struct {
	// Path is the SQLite database file. Empty disables the journal.
	Path string `yaml:"path"`
}

// Enabled reports whether a journal database is configured.
func (j JournalConfig) Enabled() bool { return j.Path != "" }

// CheckConfig names the models exercised by the check subcommand.
type CheckConfig struct {
	EmbeddingsModel  string `yaml:"embeddings_model"`
	CompletionsModel string `yaml:"completions_model"`
	ChatModel        string `yaml:"chat_model"`
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
	// An omitted chat_model follows completions_model.
	cfg.Check.ChatModel = ""
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Endpoint:  DefaultEndpoint,
		Timeout:   DefaultTimeout,
		LogLevel:  "info",
		LogFormat: "text",
		Check: CheckConfig{
			EmbeddingsModel:  "leliuga/all-MiniLM-L6-v2-GGUF",
			CompletionsModel: "QuantFactory/Qwen2.5-3B-GGUF",
			ChatModel:        "QuantFactory/Qwen2.5-3B-GGUF",
		},
	}
}

// applyDefaults fills values a config file explicitly blanked.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Endpoint == "" {
		c.Endpoint = def.Endpoint
	}
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}
	if c.Check.EmbeddingsModel == "" {
		c.Check.EmbeddingsModel = def.Check.EmbeddingsModel
	}
	if c.Check.CompletionsModel == "" {
		c.Check.CompletionsModel = def.Check.CompletionsModel
	}
	if c.Check.ChatModel == "" {
		c.Check.ChatModel = c.Check.CompletionsModel
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid endpoint %q (want http:// or https:// URL)", c.Endpoint)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout %v", c.Timeout)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q (expected text or json)", c.LogFormat)
	}
	return nil
}
