package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "TASKFORGE"
	defaultHTTPAddress  = "0.0.0.0:3500"
	defaultDatabasePath = "taskforge.db"
	defaultLogLevel     = "info"

	defaultAccessTTLMinutes = 60
	defaultRefreshTTLHours  = 5
	defaultCacheTTLSeconds  = 3600

	defaultAPIRatePerMinute  = 100
	defaultAuthRatePerMinute = 15
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	CORSOrigins   []string
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	CacheTTL      time.Duration

	APIRatePerMinute  int
	AuthRatePerMinute int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("cors.origins", []string{"http://localhost:3000"})
	configViper.SetDefault("auth.access_ttl_minutes", defaultAccessTTLMinutes)
	configViper.SetDefault("auth.refresh_ttl_hours", defaultRefreshTTLHours)
	configViper.SetDefault("cache.ttl_seconds", defaultCacheTTLSeconds)
	configViper.SetDefault("ratelimit.api_per_minute", defaultAPIRatePerMinute)
	configViper.SetDefault("ratelimit.auth_per_minute", defaultAuthRatePerMinute)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		CORSOrigins:       configViper.GetStringSlice("cors.origins"),
		AccessSecret:      configViper.GetString("auth.access_secret"),
		RefreshSecret:     configViper.GetString("auth.refresh_secret"),
		AccessTTL:         time.Duration(configViper.GetInt("auth.access_ttl_minutes")) * time.Minute,
		RefreshTTL:        time.Duration(configViper.GetInt("auth.refresh_ttl_hours")) * time.Hour,
		CacheTTL:          time.Duration(configViper.GetInt("cache.ttl_seconds")) * time.Second,
		APIRatePerMinute:  configViper.GetInt("ratelimit.api_per_minute"),
		AuthRatePerMinute: configViper.GetInt("ratelimit.auth_per_minute"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AccessSecret) == "" {
		return fmt.Errorf("auth.access_secret is required")
	}
	if strings.TrimSpace(c.RefreshSecret) == "" {
		return fmt.Errorf("auth.refresh_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.AccessTTL <= 0 {
		return fmt.Errorf("auth.access_ttl_minutes must be positive")
	}
	if c.RefreshTTL <= 0 {
		return fmt.Errorf("auth.refresh_ttl_hours must be positive")
	}
	return nil
}
