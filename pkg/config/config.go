// Package config loads the engine configuration: defaults, an optional
// config file, a .env file, and environment overrides, resolved once at
// startup. Runtime reconfiguration is out of scope.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kairosgraph/kairos/pkg/llm"
)

// Config holds all configuration for the engine and its collaborators.
type Config struct {
	Log            LogConfig            `mapstructure:"log"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Tenant         TenantConfig         `mapstructure:"tenant"`
	LLM            LLMConfig            `mapstructure:"llm"`
	CircuitBreaker llm.BreakerConfig    `mapstructure:"circuit_breaker"`
	Telemetry      TelemetryConfig      `mapstructure:"telemetry"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig selects and configures the graph backend.
type DatabaseConfig struct {
	// Driver is one of memory, badger, neo4j.
	Driver   string `mapstructure:"driver"`
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// TenantConfig holds tenant-manager configuration.
type TenantConfig struct {
	// DefaultIsolation is the policy applied to tenants created without one:
	// property, label, or database.
	DefaultIsolation string `mapstructure:"default_isolation"`
}

// LLMConfig holds provider configurations keyed by name; "default" is the
// connector the engine wires at startup.
type LLMConfig struct {
	Providers map[string]llm.Config `mapstructure:"providers"`
}

// Default returns the provider config the engine should use.
func (c LLMConfig) Default() llm.Config {
	if cfg, ok := c.Providers["default"]; ok {
		return cfg
	}
	return llm.Config{}
}

// TelemetryConfig holds telemetry output configuration.
type TelemetryConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	OutputDir string `mapstructure:"output_dir"`
}

// Load reads configuration from defaults, an optional .env file, the viper
// config file (when one was located by the caller), and environment
// variables.
func Load() (*Config, error) {
	// A missing .env is fine; an unreadable one is not worth failing over.
	_ = godotenv.Load()

	setDefaults()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	overrideWithEnv(cfg)
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")

	viper.SetDefault("database.driver", "memory")
	viper.SetDefault("database.uri", "")
	viper.SetDefault("database.database", "neo4j")

	viper.SetDefault("tenant.default_isolation", "property")

	viper.SetDefault("llm.providers.default.provider", "openai")
	viper.SetDefault("llm.providers.default.model", "gpt-4o-mini")
	viper.SetDefault("llm.providers.default.temperature", 0.0)
	viper.SetDefault("llm.providers.default.max_retries", 2)
	viper.SetDefault("llm.providers.default.timeout", 30*time.Second)

	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.interval", 60)
	viper.SetDefault("circuit_breaker.timeout", 30)
	viper.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)

	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("telemetry.output_dir", home+"/.kairos/telemetry")
	}
	viper.SetDefault("telemetry.enabled", false)
}

func overrideWithEnv(cfg *Config) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]llm.Config)
	}
	def := cfg.LLM.Providers["default"]
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && (def.Provider == "" || def.Provider == "openai") {
		def.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && def.Provider == "anthropic" {
		def.APIKey = key
	}
	if model := os.Getenv("KAIROS_LLM_MODEL"); model != "" {
		def.Model = model
	}
	if budget := os.Getenv("KAIROS_LLM_BUDGET_USD"); budget != "" {
		if v, err := strconv.ParseFloat(budget, 64); err == nil {
			def.BudgetUSD = v
		}
	}
	cfg.LLM.Providers["default"] = def

	if driver := os.Getenv("KAIROS_DB_DRIVER"); driver != "" {
		cfg.Database.Driver = driver
	}
	if uri := os.Getenv("KAIROS_DB_URI"); uri != "" {
		cfg.Database.URI = uri
	}
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Database.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Database.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		cfg.Database.Password = pass
	}

	if host := os.Getenv("KAIROS_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("KAIROS_SERVER_PORT"); port != "" {
		if v, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = v
		}
	}
}
