// Package config loads engine configuration with viper.
//
// Priority (highest to lowest):
//  1. Environment variables with COMPLIANCE_ prefix
//     (e.g. COMPLIANCE_SWEEP_INTERVAL, COMPLIANCE_THRESHOLDS_TYPES_TAX)
//  2. The config file (TOML, YAML or JSON)
//  3. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/warp/compliance-engine/factory"
	"github.com/warp/compliance-engine/lifecycle"
	"github.com/warp/compliance-engine/logging"
	"github.com/warp/compliance-engine/vehicle"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Log        logging.Config
	Sweep      SweepConfig
	Thresholds ThresholdConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	CORSAllowOrigins []string
	DemoScenarios    bool
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string
}

// SweepConfig controls the reconciliation scheduler
type SweepConfig struct {
	Enabled    bool
	Interval   time.Duration
	RunOnStart bool
	Timeout    time.Duration
	History    int // sweep runs returned by the API
}

// ThresholdConfig is the expiring-soon window table, in days. When Default
// is set explicitly it replaces every registered per-type default; Types
// entries win over both.
type ThresholdConfig struct {
	Default         int
	DefaultExplicit bool
	Types           map[lifecycle.RecordType]int
}

// Load reads configuration. An empty path searches for compliance.{toml,yaml,json}
// in the working directory and /etc/compliance-engine; a missing file is fine.
// An explicit path that cannot be read is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("compliance")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/compliance-engine")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("COMPLIANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:             v.GetString("server.port"),
			ReadTimeout:      v.GetDuration("server.read_timeout"),
			WriteTimeout:     v.GetDuration("server.write_timeout"),
			IdleTimeout:      v.GetDuration("server.idle_timeout"),
			ShutdownTimeout:  v.GetDuration("server.shutdown_timeout"),
			CORSAllowOrigins: v.GetStringSlice("server.cors_allow_origins"),
			DemoScenarios:    v.GetBool("server.demo_scenarios"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Log: logging.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Sweep: SweepConfig{
			Enabled:    v.GetBool("sweep.enabled"),
			Interval:   v.GetDuration("sweep.interval"),
			RunOnStart: v.GetBool("sweep.run_on_start"),
			Timeout:    v.GetDuration("sweep.timeout"),
			History:    v.GetInt("sweep.history"),
		},
	}

	thresholds, err := loadThresholds(v)
	if err != nil {
		return nil, err
	}
	cfg.Thresholds = thresholds

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_allow_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.demo_scenarios", false)

	v.SetDefault("database.path", "compliance.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", 24*time.Hour)
	v.SetDefault("sweep.run_on_start", true)
	v.SetDefault("sweep.timeout", 10*time.Minute)
	v.SetDefault("sweep.history", 20)
}

// loadThresholds reads thresholds.types.<record-type> for every registered
// type, from the file or the environment. File keys may use legacy
// camelCase names (cgPermit); unknown names are rejected. Canonical keys
// and environment variables win over legacy keys.
func loadThresholds(v *viper.Viper) (ThresholdConfig, error) {
	tc := ThresholdConfig{
		Default: vehicle.DefaultExpiryThreshold,
		Types:   make(map[lifecycle.RecordType]int),
	}
	if v.IsSet("thresholds.default") {
		tc.Default = v.GetInt("thresholds.default")
		tc.DefaultExplicit = true
	}

	for name := range v.GetStringMap("thresholds.types") {
		rt, err := factory.ParseRecordType(name)
		if err != nil {
			return ThresholdConfig{}, fmt.Errorf("thresholds.types: %w", err)
		}
		if string(rt) != name {
			tc.Types[rt] = v.GetInt("thresholds.types." + name)
		}
	}

	for _, info := range lifecycle.ListRecordTypes() {
		key := "thresholds.types." + string(info.Type)
		if err := v.BindEnv(key); err != nil {
			return ThresholdConfig{}, err
		}
		if v.IsSet(key) {
			tc.Types[info.Type] = v.GetInt(key)
		}
	}
	return tc, nil
}

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive, got %s", c.Sweep.Interval)
	}
	if c.Sweep.Timeout <= 0 {
		return fmt.Errorf("sweep.timeout must be positive, got %s", c.Sweep.Timeout)
	}
	if _, err := c.ThresholdTable(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	return nil
}

// ThresholdTable builds the per-type table: registered defaults (or the
// explicit default) with the per-type overrides applied.
func (c *Config) ThresholdTable() (lifecycle.Thresholds, error) {
	overrides := make(map[lifecycle.RecordType]int, len(c.Thresholds.Types))
	if c.Thresholds.DefaultExplicit {
		for _, info := range lifecycle.ListRecordTypes() {
			overrides[info.Type] = c.Thresholds.Default
		}
	}
	for rt, days := range c.Thresholds.Types {
		overrides[rt] = days
	}
	return lifecycle.RegisteredThresholds(c.Thresholds.Default, overrides)
}
