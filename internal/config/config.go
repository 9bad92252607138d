// Package config loads the orchestrator's server configuration from an
// optional YAML file overlaid with environment variables, following the
// teacher's internal/config.Load (file-first, then env-override) and
// cmd/nexus-edge/main.go's flat env-driven Config shape for the daemon
// surface.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cerebraschat/orchestrator/pkg/orchestration"
)

// Config is the orchestrator process's full configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Cerebras CerebrasConfig `yaml:"cerebras"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CerebrasConfig carries the credential pool and endpoint for the backend
// model provider.
type CerebrasConfig struct {
	APIKeys []string `yaml:"api_keys"`
	BaseURL string   `yaml:"base_url"`
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Addr: ":8080"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Cerebras: CerebrasConfig{
			BaseURL: "https://api.cerebras.ai/v1",
		},
	}
}

// Load builds a Config from, in increasing priority: built-in defaults, an
// optional YAML file at path (skipped silently if path is empty or the
// file does not exist), a .env file in the working directory (best-effort,
// via godotenv.Load), then process environment variables.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		b, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	applyEnv(&cfg)

	if len(cfg.Cerebras.APIKeys) == 0 {
		return nil, &orchestration.ConfigError{Reason: "no credentials supplied: set CEREBRAS_API_KEYS or cerebras.api_keys"}
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CEREBRAS_API_KEYS")); v != "" {
		cfg.Cerebras.APIKeys = splitTrimmed(v)
	}
	if v := strings.TrimSpace(os.Getenv("CEREBRAS_BASE_URL")); v != "" {
		cfg.Cerebras.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ORCHESTRATOR_HTTP_ADDR")); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("ORCHESTRATOR_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("ORCHESTRATOR_LOG_FORMAT")); v != "" {
		cfg.Logging.Format = v
	}
}

// splitTrimmed splits a comma-separated list, discarding empty entries
// after trimming, so CEREBRAS_API_KEYS tolerates stray whitespace and
// trailing commas from whatever shell or secrets manager set it.
func splitTrimmed(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
