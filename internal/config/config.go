package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config models bidline.yml (or bidline.toml).
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Documents DocumentsConfig `yaml:"documents" toml:"documents"`
	Engine    EngineConfig    `yaml:"engine" toml:"engine"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Relay     RelayConfig     `yaml:"relay" toml:"relay"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr" toml:"addr"`
	BasePath       string   `yaml:"base_path" toml:"base_path"`
	GRPCAddr       string   `yaml:"grpc_addr" toml:"grpc_addr"`
	RequestTimeout Duration `yaml:"request_timeout" toml:"request_timeout"`
	DevLogin       bool     `yaml:"dev_login" toml:"dev_login"`
}

type DatabaseConfig struct {
	// Driver is sqlite or postgres.
	Driver    string `yaml:"driver" toml:"driver"`
	DSN       string `yaml:"dsn" toml:"dsn"`
	Workspace string `yaml:"workspace" toml:"workspace"`
}

type AuthConfig struct {
	JWTSecret string   `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTL  Duration `yaml:"token_ttl" toml:"token_ttl"`
	RedisURL  string   `yaml:"redis_url" toml:"redis_url"`
}

type DocumentsConfig struct {
	Root     string `yaml:"root" toml:"root"`
	MaxBytes int64  `yaml:"max_bytes" toml:"max_bytes"`
}

type EngineConfig struct {
	Retry RetryConfig `yaml:"retry" toml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts" toml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay" toml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay" toml:"max_delay"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

type RelayConfig struct {
	Interval Duration        `yaml:"interval" toml:"interval"`
	Batch    int             `yaml:"batch" toml:"batch"`
	Webhooks []WebhookConfig `yaml:"webhooks" toml:"webhooks"`
	Kafka    KafkaConfig     `yaml:"kafka" toml:"kafka"`
}

type WebhookConfig struct {
	Name           string   `yaml:"name" toml:"name"`
	URL            string   `yaml:"url" toml:"url"`
	Secret         string   `yaml:"secret" toml:"secret"`
	Events         []string `yaml:"events" toml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds" toml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled" toml:"enabled"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" toml:"brokers"`
	Topic   string   `yaml:"topic" toml:"topic"`
}

// Duration decodes "5s" style strings from YAML and TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a config usable for local development on SQLite.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.Server.BasePath = "/v1"
	cfg.Server.RequestTimeout = Duration{15 * time.Second}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Workspace = "."
	cfg.Auth.TokenTTL = Duration{24 * time.Hour}
	cfg.Documents.MaxBytes = 10 << 20
	cfg.Engine.Retry.MaxAttempts = 3
	cfg.Engine.Retry.BaseDelay = Duration{25 * time.Millisecond}
	cfg.Engine.Retry.MaxDelay = Duration{500 * time.Millisecond}
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Relay.Interval = Duration{2 * time.Second}
	cfg.Relay.Batch = 100
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("config.database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config.database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Engine.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config.engine.retry.max_attempts must be at least 1")
	}
	if c.Engine.Retry.MaxDelay.Duration < c.Engine.Retry.BaseDelay.Duration {
		return fmt.Errorf("config.engine.retry.max_delay must not be below base_delay")
	}
	if c.Documents.MaxBytes <= 0 {
		return fmt.Errorf("config.documents.max_bytes must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	for i, hook := range c.Relay.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.relay.webhooks[%d].url is required", i)
		}
	}
	if len(c.Relay.Kafka.Brokers) > 0 && c.Relay.Kafka.Topic == "" {
		return fmt.Errorf("config.relay.kafka.topic is required when brokers are set")
	}
	return nil
}

// DocumentsRoot returns where uploaded documents live.
func (c *Config) DocumentsRoot() string {
	if c.Documents.Root != "" {
		return c.Documents.Root
	}
	return filepath.Join(workspaceOrDot(c.Database.Workspace), ".bidline", "uploads")
}

// Path returns the YAML config path for a workspace.
func Path(workspace string) string {
	return filepath.Join(workspaceOrDot(workspace), "bidline.yml")
}

// TOMLPath returns the TOML config path for a workspace.
func TOMLPath(workspace string) string {
	return filepath.Join(workspaceOrDot(workspace), "bidline.toml")
}

// LoadOptional reads the workspace config if present and falls back to
// Default otherwise. YAML wins when both files exist.
func LoadOptional(workspace string) (*Config, error) {
	for _, path := range []string{Path(workspace), TOMLPath(workspace)} {
		cfg, err := FromFile(path)
		if err == nil {
			if cfg.Database.Workspace == "" || cfg.Database.Workspace == "." {
				cfg.Database.Workspace = workspaceOrDot(workspace)
			}
			return cfg, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	cfg := Default()
	cfg.Database.Workspace = workspaceOrDot(workspace)
	return cfg, nil
}

// FromFile reads config from path, choosing the decoder by extension.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FromTOML(data)
	default:
		return FromYAML(data)
	}
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromTOML parses and validates config from raw TOML bytes.
func FromTOML(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config toml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns the default config as YAML.
func GenerateDefault() string {
	return defaultTemplate
}

func workspaceOrDot(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1
  grpc_addr: ""
  request_timeout: 15s
  dev_login: false

database:
  driver: sqlite
  dsn: ""

auth:
  jwt_secret: ""
  token_ttl: 24h
  redis_url: ""

documents:
  max_bytes: 10485760

engine:
  retry:
    max_attempts: 3
    base_delay: 25ms
    max_delay: 500ms

log:
  level: info
  format: text

relay:
  interval: 2s
  batch: 100
  webhooks: []
  kafka:
    brokers: []
    topic: ""
`
