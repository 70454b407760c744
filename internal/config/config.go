// Package config loads the nophish configuration object.
//
// Values are layered, lowest priority first: built-in defaults, the YAML file,
// .env files, environment variables named by `env` struct tags. Command-line
// flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/vulnverified/nophish/internal/logger"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultPath is read when no --config flag is given, if it exists.
const DefaultPath = "nophish.yaml"

// Renderer kinds.
const (
	RendererBrowser = "browser"
	RendererStatic  = "static"
)

// Config is the explicit configuration object passed to the pipeline constructor.
type Config struct {
	Model           string      `yaml:"model" env:"NOPHISH_MODEL"`
	Temperature     float64     `yaml:"temperature" env:"NOPHISH_TEMPERATURE"`
	MaxOutputTokens int         `yaml:"max_output_tokens" env:"NOPHISH_MAX_OUTPUT_TOKENS"`
	TokenCeiling    int         `yaml:"token_ceiling" env:"NOPHISH_TOKEN_CEILING"`
	Encoding        string      `yaml:"encoding" env:"NOPHISH_ENCODING"`
	Credentials     Credentials `yaml:"credentials"`

	Collectors Collectors    `yaml:"collectors"`
	Logging    logger.Config `yaml:"logging"`
	Server     Server        `yaml:"server"`
}

// Credentials for the LLM API.
type Credentials struct {
	APIKey  string `yaml:"api_key" env:"ANTHROPIC_API_KEY"`
	BaseURL string `yaml:"base_url" env:"ANTHROPIC_BASE_URL"`
}

// Collectors tunes the evidence collectors.
type Collectors struct {
	DNSServer         string        `yaml:"dns_server" env:"NOPHISH_DNS_SERVER"`
	DNSTimeout        time.Duration `yaml:"dns_timeout" env:"NOPHISH_DNS_TIMEOUT"`
	TLSPort           int           `yaml:"tls_port" env:"NOPHISH_TLS_PORT"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" env:"NOPHISH_CONNECT_TIMEOUT"`
	WHOISTimeout      time.Duration `yaml:"whois_timeout" env:"NOPHISH_WHOIS_TIMEOUT"`
	Renderer          string        `yaml:"renderer" env:"NOPHISH_RENDERER"`
	ChromePath        string        `yaml:"chrome_path" env:"NOPHISH_CHROME_PATH"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" env:"NOPHISH_NAVIGATION_TIMEOUT"`
	SettleDelay       time.Duration `yaml:"settle_delay" env:"NOPHISH_SETTLE_DELAY"`
	CollectTimeout    time.Duration `yaml:"collect_timeout" env:"NOPHISH_COLLECT_TIMEOUT"`
	UserAgent         string        `yaml:"user_agent" env:"NOPHISH_USER_AGENT"`
}

// Server configures `nophish serve`.
type Server struct {
	Addr            string        `yaml:"addr" env:"NOPHISH_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	if c.Model == "" {
		c.Model = "claude-sonnet-4-5"
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = 1024
	}
	if c.TokenCeiling == 0 {
		c.TokenCeiling = 7500
	}
	if c.Encoding == "" {
		c.Encoding = "cl100k_base"
	}

	col := &c.Collectors
	if col.DNSTimeout == 0 {
		col.DNSTimeout = 5 * time.Second
	}
	if col.TLSPort == 0 {
		col.TLSPort = 443
	}
	if col.ConnectTimeout == 0 {
		col.ConnectTimeout = 10 * time.Second
	}
	if col.WHOISTimeout == 0 {
		col.WHOISTimeout = 15 * time.Second
	}
	if col.Renderer == "" {
		col.Renderer = RendererBrowser
	}
	if col.NavigationTimeout == 0 {
		col.NavigationTimeout = 30 * time.Second
	}
	if col.SettleDelay == 0 {
		col.SettleDelay = 5 * time.Second
	}
	if col.CollectTimeout == 0 {
		col.CollectTimeout = 90 * time.Second
	}
	if col.UserAgent == "" {
		col.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 3 * time.Minute
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}

	c.Logging.SetDefaults()
}

// Load reads path (when non-empty), layers .env and environment overrides on
// top of defaults, and validates the result. A missing file is an error only
// when required is true.
func Load(path string, required bool) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err) && !required:
		default:
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option ranges.
func (c *Config) Validate() error {
	switch {
	case c.Model == "":
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	case c.Temperature < 0 || c.Temperature > 1:
		return fmt.Errorf("%w: temperature %.2f outside [0,1]", ErrInvalidConfig, c.Temperature)
	case c.TokenCeiling <= 0:
		return fmt.Errorf("%w: token_ceiling must be positive, got %d", ErrInvalidConfig, c.TokenCeiling)
	case c.MaxOutputTokens <= 0:
		return fmt.Errorf("%w: max_output_tokens must be positive, got %d", ErrInvalidConfig, c.MaxOutputTokens)
	case c.Collectors.TLSPort < 1 || c.Collectors.TLSPort > 65535:
		return fmt.Errorf("%w: tls_port %d out of range (1-65535)", ErrInvalidConfig, c.Collectors.TLSPort)
	case c.Collectors.Renderer != RendererBrowser && c.Collectors.Renderer != RendererStatic:
		return fmt.Errorf("%w: unknown renderer %q", ErrInvalidConfig, c.Collectors.Renderer)
	}

	timeouts := map[string]time.Duration{
		"dns_timeout":        c.Collectors.DNSTimeout,
		"connect_timeout":    c.Collectors.ConnectTimeout,
		"whois_timeout":      c.Collectors.WHOISTimeout,
		"navigation_timeout": c.Collectors.NavigationTimeout,
		"collect_timeout":    c.Collectors.CollectTimeout,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidConfig, name, d)
		}
	}
	if c.Collectors.SettleDelay < 0 {
		return fmt.Errorf("%w: settle_delay must not be negative", ErrInvalidConfig)
	}
	return nil
}

// RequireCredentials reports whether an LLM call can be made.
func (c *Config) RequireCredentials() error {
	if c.Credentials.APIKey == "" {
		return fmt.Errorf("%w: ANTHROPIC_API_KEY (credentials.api_key) is not set", ErrInvalidConfig)
	}
	return nil
}
