package domain

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxSatelliteTimeout bounds the single network call made per scoring run.
const MaxSatelliteTimeout = 30 * time.Second

// Config holds the complete Shamba configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Tier determines which backends are used
	Tier Tier `yaml:"tier"`

	// Upstream climate data source
	Satellite SatelliteConfig `yaml:"satellite"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"eventBus"`
	Velocity   VelocityConfig   `yaml:"velocity"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`

	// Run the bus-driven scoring worker
	AsyncWorker bool `yaml:"asyncWorker"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`  // seconds
	WriteTimeout int    `yaml:"writeTimeout"` // seconds
	MaxBodyBytes int64  `yaml:"maxBodyBytes"`
}

// SatelliteConfig configures the NASA POWER point API client.
type SatelliteConfig struct {
	BaseURL    string        `yaml:"baseUrl"`
	Community  string        `yaml:"community"`
	WindowDays int           `yaml:"windowDays"`
	Timeout    time.Duration `yaml:"timeout"`

	// CacheTTL caches raw upstream series; 0 disables.
	CacheTTL time.Duration `yaml:"cacheTtl"`
}

// VelocityConfig limits scoring requests per farmer identity.
type VelocityConfig struct {
	MaxRequests int           `yaml:"maxRequests"` // 0 disables
	Window      time.Duration `yaml:"window"`
}

// SchedulerConfig configures periodic background jobs.
type SchedulerConfig struct {
	// RuleReloadCron reloads fraud rules from the repository; empty disables.
	RuleReloadCron string `yaml:"ruleReloadCron"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + in-memory cache + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Tier: TierCommunity,
		Satellite: SatelliteConfig{
			BaseURL:    "https://power.larc.nasa.gov/api/temporal/daily/point",
			Community:  "AG",
			WindowDays: 90,
			Timeout:    MaxSatelliteTimeout,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./shamba.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Velocity: VelocityConfig{
			MaxRequests: 20,
			Window:      time.Hour,
		},
		Scheduler: SchedulerConfig{
			RuleReloadCron: "0 */5 * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "shamba",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "shamba",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Satellite.CacheTTL = 6 * time.Hour
	cfg.AsyncWorker = true
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig builds the configuration: tier defaults, then the optional YAML
// file at path, then SHAMBA_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if os.Getenv("SHAMBA_TIER") == string(TierPro) {
		cfg = ProConfig()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("SHAMBA_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SHAMBA_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("SHAMBA_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("SHAMBA_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("SHAMBA_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("SHAMBA_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("SHAMBA_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("SHAMBA_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("SHAMBA_WORKER_GROUP"); v != "" {
		cfg.EventBus.WorkerGroup = v
	}
	if v := os.Getenv("SHAMBA_POWER_URL"); v != "" {
		cfg.Satellite.BaseURL = v
	}
	if v := os.Getenv("SHAMBA_POWER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SHAMBA_POWER_TIMEOUT: %w", err)
		}
		cfg.Satellite.Timeout = d
	}
	if v := os.Getenv("SHAMBA_ASYNC_WORKER"); v != "" {
		cfg.AsyncWorker = v == "true"
	}
	if os.Getenv("SHAMBA_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	return nil
}

// Validate checks settings that would otherwise fail late, and clamps the
// satellite timeout to MaxSatelliteTimeout.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Satellite.BaseURL == "" {
		return fmt.Errorf("satellite.baseUrl is required")
	}
	if c.Satellite.WindowDays <= 0 {
		c.Satellite.WindowDays = 90
	}
	if c.Satellite.Timeout <= 0 || c.Satellite.Timeout > MaxSatelliteTimeout {
		c.Satellite.Timeout = MaxSatelliteTimeout
	}
	if c.Velocity.MaxRequests < 0 {
		return fmt.Errorf("velocity.maxRequests must not be negative")
	}
	if c.Velocity.MaxRequests > 0 && c.Velocity.Window <= 0 {
		return fmt.Errorf("velocity.window must be positive when maxRequests is set")
	}
	return nil
}
