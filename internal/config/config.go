// Package config loads server configuration from an optional YAML file, a .env file,
// and environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	EarthEngine EarthEngineConfig `yaml:"earth_engine"`
	Logging     LoggingConfig     `yaml:"logging"`
	Vis         VisConfig         `yaml:"vis"`
	Bridge      BridgeConfig      `yaml:"bridge"`
}

// ServerConfig selects the transport and its addresses.
type ServerConfig struct {
	Transport string `yaml:"transport" envconfig:"AXION_TRANSPORT"` // stdio or http
	HTTPAddr  string `yaml:"http_addr" envconfig:"AXION_HTTP_ADDR"`
	BaseURL   string `yaml:"base_url" envconfig:"AXION_BASE_URL"`
}

// StoreConfig configures the hybrid session store.
type StoreConfig struct {
	RedisURL string `yaml:"redis_url" envconfig:"REDIS_URL"`

	CompositeTTL   time.Duration `yaml:"-" envconfig:"AXION_COMPOSITE_TTL"`
	MapTTL         time.Duration `yaml:"-" envconfig:"AXION_MAP_TTL"`
	SweepInterval  time.Duration `yaml:"-" envconfig:"AXION_SWEEP_INTERVAL"`
	ConnectTimeout time.Duration `yaml:"-" envconfig:"AXION_REDIS_CONNECT_TIMEOUT"`

	// Raw string values for YAML unmarshaling
	CompositeTTLRaw   string `yaml:"composite_ttl" envconfig:"-"`
	MapTTLRaw         string `yaml:"map_ttl" envconfig:"-"`
	SweepIntervalRaw  string `yaml:"sweep_interval" envconfig:"-"`
	ConnectTimeoutRaw string `yaml:"connect_timeout" envconfig:"-"`
}

// EarthEngineConfig configures the Earth Engine REST client.
type EarthEngineConfig struct {
	BaseURL         string        `yaml:"base_url" envconfig:"GEE_API_URL"`
	ProjectID       string        `yaml:"project_id" envconfig:"GEE_PROJECT_ID"`
	CredentialsJSON string        `yaml:"-" envconfig:"GEE_SA_KEY"`
	CredentialsFile string        `yaml:"credentials_file" envconfig:"GEE_SA_KEY_PATH"`
	RequestTimeout  time.Duration `yaml:"-" envconfig:"GEE_REQUEST_TIMEOUT"`

	RequestTimeoutRaw string `yaml:"request_timeout" envconfig:"-"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"AXION_LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"AXION_LOG_FORMAT"`
	File   string `yaml:"file" envconfig:"AXION_LOG_FILE"`
}

// VisConfig points at optional visualization preset overrides.
type VisConfig struct {
	PresetsPath string `yaml:"presets_path" envconfig:"AXION_VIS_PRESETS"`
}

// BridgeConfig configures the stdio bridge binary.
type BridgeConfig struct {
	ServerURL string        `yaml:"server_url" envconfig:"AXION_SERVER_URL"`
	Timeout   time.Duration `yaml:"-" envconfig:"AXION_BRIDGE_TIMEOUT"`

	TimeoutRaw string `yaml:"timeout" envconfig:"-"`
}

// Default returns a config with the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Transport: "stdio",
			HTTPAddr:  ":3000",
			BaseURL:   "http://localhost:3000",
		},
		Store: StoreConfig{
			CompositeTTL:   24 * time.Hour,
			MapTTL:         7 * 24 * time.Hour,
			SweepInterval:  time.Minute,
			ConnectTimeout: 5 * time.Second,
		},
		EarthEngine: EarthEngineConfig{
			BaseURL:        "https://earthengine.googleapis.com",
			RequestTimeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Bridge: BridgeConfig{
			ServerURL: "http://localhost:3000",
			Timeout:   5 * time.Minute,
		},
	}
}

// Load builds the configuration. path may be empty, in which case only the defaults,
// a .env file in the working directory (if any), and the environment are used.
// Environment variables in the YAML file in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	// A missing .env is normal
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		if err := parseDurations(cfg); err != nil {
			return nil, fmt.Errorf("parsing durations: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	// GOOGLE_APPLICATION_CREDENTIALS is the conventional fallback for the key path.
	if cfg.EarthEngine.CredentialsFile == "" && cfg.EarthEngine.CredentialsJSON == "" {
		cfg.EarthEngine.CredentialsFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment
// variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{cfg.Store.CompositeTTLRaw, &cfg.Store.CompositeTTL, "store.composite_ttl"},
		{cfg.Store.MapTTLRaw, &cfg.Store.MapTTL, "store.map_ttl"},
		{cfg.Store.SweepIntervalRaw, &cfg.Store.SweepInterval, "store.sweep_interval"},
		{cfg.Store.ConnectTimeoutRaw, &cfg.Store.ConnectTimeout, "store.connect_timeout"},
		{cfg.EarthEngine.RequestTimeoutRaw, &cfg.EarthEngine.RequestTimeout, "earth_engine.request_timeout"},
		{cfg.Bridge.TimeoutRaw, &cfg.Bridge.Timeout, "bridge.timeout"},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case "stdio":
	case "http":
		if c.Server.HTTPAddr == "" {
			return errors.New("server.http_addr is required for http transport")
		}
	default:
		return fmt.Errorf("unknown transport %q (want stdio or http)", c.Server.Transport)
	}
	if c.Store.CompositeTTL <= 0 || c.Store.MapTTL <= 0 {
		return errors.New("store TTLs must be positive")
	}
	if c.Store.SweepInterval <= 0 {
		return errors.New("store.sweep_interval must be positive")
	}
	if c.EarthEngine.BaseURL == "" {
		return errors.New("earth_engine.base_url is required")
	}
	if c.EarthEngine.RequestTimeout <= 0 {
		return errors.New("earth_engine.request_timeout must be positive")
	}
	if c.Bridge.ServerURL == "" || c.Bridge.Timeout <= 0 {
		return errors.New("bridge.server_url and bridge.timeout are required")
	}
	return nil
}
