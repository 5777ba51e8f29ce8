// Package config loads server settings from the environment and an optional
// config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/ZanzyTHEbar/core-view/internal/errors"
)

// Config is the full server configuration
type Config struct {
	Port                 string        `mapstructure:"port"`
	DataDir              string        `mapstructure:"data_dir"`
	CatalogDir           string        `mapstructure:"catalog_dir"`
	LogLevel             string        `mapstructure:"log_level"`
	RedisAddr            string        `mapstructure:"redis_addr"`
	RedisPassword        string        `mapstructure:"redis_password"`
	RedisDB              int           `mapstructure:"redis_db"`
	IPLimitPerMin        int           `mapstructure:"ip_limit_per_min"`
	ShareTokenSecret     string        `mapstructure:"share_token_secret"`
	ProfileCacheSize     int           `mapstructure:"profile_cache_size"`
	ProfileCacheTTL      time.Duration `mapstructure:"profile_cache_ttl"`
	SessionRetentionDays int           `mapstructure:"session_retention_days"`
	CleanupInterval      time.Duration `mapstructure:"cleanup_interval"`
	EnableHSTS           bool          `mapstructure:"enable_hsts"`
	CORSOrigins          []string      `mapstructure:"cors_origins"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
}

var defaults = map[string]any{
	"port":                   "8080",
	"data_dir":               "./data",
	"catalog_dir":            "",
	"log_level":              "info",
	"redis_addr":             "",
	"redis_password":         "",
	"redis_db":               0,
	"ip_limit_per_min":       60,
	"share_token_secret":     "",
	"profile_cache_size":     1024,
	"profile_cache_ttl":      15 * time.Minute,
	"session_retention_days": 365,
	"cleanup_interval":       24 * time.Hour,
	"enable_hsts":            false,
	"cors_origins":           []string{"http://localhost:3000", "http://localhost:5173"},
	"request_timeout":        30 * time.Second,
	"shutdown_timeout":       30 * time.Second,
}

// Load reads configuration. Environment variables use the upper-case key
// names (PORT, DATA_DIR, ...). If configFile is non-empty it is read first and
// the environment overrides it.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.NewConfigurationError("failed to read config file "+configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.NewConfigurationError("failed to decode configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.NewConfigurationError("invalid configuration", err)
	}
	return &cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port must be set"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must be set"))
	}
	if c.IPLimitPerMin <= 0 {
		errs = append(errs, fmt.Errorf("ip_limit_per_min must be positive, got %d", c.IPLimitPerMin))
	}
	if c.ProfileCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("profile_cache_size must be positive, got %d", c.ProfileCacheSize))
	}
	if c.ProfileCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("profile_cache_ttl must be positive, got %s", c.ProfileCacheTTL))
	}
	if c.SessionRetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("session_retention_days must be positive, got %d", c.SessionRetentionDays))
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("cleanup_interval must be positive, got %s", c.CleanupInterval))
	}
	if c.ShareTokenSecret != "" && len(c.ShareTokenSecret) < 32 {
		errs = append(errs, errors.New("share_token_secret must be at least 32 bytes"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address
func (c *Config) Addr() string {
	return ":" + c.Port
}

// SignShareTokens reports whether share tokens are issued as signed JWTs
func (c *Config) SignShareTokens() bool {
	return c.ShareTokenSecret != ""
}
