package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Env                     string        `mapstructure:"ENV"`
	LogLevel                string        `mapstructure:"LOG_LEVEL"`
	Port                    string        `mapstructure:"PORT"`
	SimulatorPort           string        `mapstructure:"SIMULATOR_PORT"`
	SimulatorMLLPAddr       string        `mapstructure:"SIMULATOR_MLLP_ADDR"`
	SimulatorRedisURL       string        `mapstructure:"SIMULATOR_REDIS_URL"`
	SimulatorStoreTTL       time.Duration `mapstructure:"SIMULATOR_STORE_TTL"`
	DatabaseURL             string        `mapstructure:"DATABASE_URL"`
	DBMaxConns              int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns              int32         `mapstructure:"DB_MIN_CONNS"`
	HTTPTimeout             time.Duration `mapstructure:"HTTP_TIMEOUT"`
	RateLimitRPS            float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst          int           `mapstructure:"RATE_LIMIT_BURST"`
	BreakerFailureThreshold uint32        `mapstructure:"BREAKER_FAILURE_THRESHOLD"`
	BreakerOpenTimeout      time.Duration `mapstructure:"BREAKER_OPEN_TIMEOUT"`
	QueryParallelism        int           `mapstructure:"QUERY_PARALLELISM"`
	LogText                 bool          `mapstructure:"LOG_TEXT"`
	SoftwareFile            string        `mapstructure:"SOFTWARE_FILE"`
}

var keys = []string{
	"ENV", "LOG_LEVEL", "PORT",
	"SIMULATOR_PORT", "SIMULATOR_MLLP_ADDR", "SIMULATOR_REDIS_URL", "SIMULATOR_STORE_TTL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"HTTP_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"BREAKER_FAILURE_THRESHOLD", "BREAKER_OPEN_TIMEOUT",
	"QUERY_PARALLELISM", "LOG_TEXT", "SOFTWARE_FILE",
}

// Load reads configuration from the environment and an optional .env file.
// An empty DATABASE_URL keeps results in memory.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", "8000")
	v.SetDefault("SIMULATOR_PORT", "8089")
	v.SetDefault("SIMULATOR_MLLP_ADDR", ":2575")
	v.SetDefault("SIMULATOR_STORE_TTL", "24h")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 1)
	v.SetDefault("BREAKER_FAILURE_THRESHOLD", 5)
	v.SetDefault("BREAKER_OPEN_TIMEOUT", "30s")
	v.SetDefault("QUERY_PARALLELISM", 4)
	v.SetDefault("LOG_TEXT", false)
	v.SetDefault("SOFTWARE_FILE", "software.yaml")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Level returns the zerolog level for LOG_LEVEL.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil || c.LogLevel == "" {
		return fmt.Errorf("LOG_LEVEL %q is not a known level", c.LogLevel)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if c.QueryParallelism <= 0 {
		return fmt.Errorf("QUERY_PARALLELISM must be positive, got %d", c.QueryParallelism)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative, got %v", c.RateLimitRPS)
	}
	if c.BreakerOpenTimeout <= 0 {
		return fmt.Errorf("BREAKER_OPEN_TIMEOUT must be positive, got %s", c.BreakerOpenTimeout)
	}
	if c.DatabaseURL != "" && c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
