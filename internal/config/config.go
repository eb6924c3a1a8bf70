package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models ticketline.yml.
type Config struct {
	Roles struct {
		Admins    []string `yaml:"admins"`
		Resolvers []string `yaml:"resolvers"`
	} `yaml:"roles"`
	Escrow struct {
		// ResolvedWithdrawal is winner or either.
		ResolvedWithdrawal string `yaml:"resolved_withdrawal"`
	} `yaml:"escrow"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
	Webhooks Webhooks `yaml:"webhooks"`
	Redis    Redis    `yaml:"redis"`
}

type Server struct {
	Addr                   string    `yaml:"addr"`
	BasePath               string    `yaml:"base_path"`
	AllowLegacyActorHeader bool      `yaml:"allow_legacy_actor_header"`
	RateLimit              RateLimit `yaml:"rate_limit"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Webhooks struct {
	Hooks []Webhook `yaml:"hooks"`
}

type Webhook struct {
	ID             string   `yaml:"id"`
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        bool     `yaml:"enabled"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to Default when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	for _, id := range append(append([]string{}, c.Roles.Admins...), c.Roles.Resolvers...) {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("config.roles contains an empty actor id")
		}
	}
	switch c.Escrow.ResolvedWithdrawal {
	case "winner", "either":
	default:
		return fmt.Errorf("config.escrow.resolved_withdrawal must be winner or either")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Server.RateLimit.RPS < 0 || c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("config.server.rate_limit values must not be negative")
	}
	if c.Server.RateLimit.RPS > 0 && c.Server.RateLimit.Burst == 0 {
		return fmt.Errorf("config.server.rate_limit.burst is required when rps is set")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.logging.level must be debug, info, warn or error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config.logging.format must be text or json")
	}
	seen := map[string]bool{}
	for i, h := range c.Webhooks.Hooks {
		if h.ID == "" {
			return fmt.Errorf("config.webhooks.hooks[%d].id is required", i)
		}
		if seen[h.ID] {
			return fmt.Errorf("webhook %s defined twice", h.ID)
		}
		seen[h.ID] = true
		u, err := url.Parse(h.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook %s url must be an absolute http(s) url", h.ID)
		}
		if h.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %s timeout_seconds must not be negative", h.ID)
		}
		for _, evt := range h.Events {
			if evt == "" {
				return fmt.Errorf("webhook %s has empty event type", h.ID)
			}
		}
	}
	if c.Redis.Addr != "" && c.Redis.Channel == "" {
		return fmt.Errorf("config.redis.channel is required when redis.addr is set")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "ticketline.yml")
}

// GenerateDefault returns default config YAML with admin as the first admin.
func GenerateDefault(admin string) string {
	if admin == "" {
		admin = "admin"
	}
	return fmt.Sprintf(defaultTemplate, admin)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Escrow.ResolvedWithdrawal == "" {
		c.Escrow.ResolvedWithdrawal = "winner"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/v1"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Redis.Addr != "" && c.Redis.Channel == "" {
		c.Redis.Channel = "ticketline.events"
	}
	for i := range c.Webhooks.Hooks {
		if c.Webhooks.Hooks[i].TimeoutSeconds == 0 {
			c.Webhooks.Hooks[i].TimeoutSeconds = 5
		}
	}
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders cfg back to its file form.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

const defaultTemplate = `roles:
  admins: [%s]
  resolvers: []

escrow:
  # winner: only the resolution winner may withdraw a resolved ticket.
  # either: client or freelancer may withdraw after resolution.
  resolved_withdrawal: winner

server:
  addr: 127.0.0.1:8080
  base_path: /v1
  allow_legacy_actor_header: false
  rate_limit:
    rps: 10
    burst: 20

logging:
  level: info
  format: text

webhooks:
  hooks: []

redis:
  addr: ""
  channel: ticketline.events
`
