package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries all externally tunable settings of the sync daemon.
type Config struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	Backend struct {
		BaseURL string        `mapstructure:"base_url"`
		WSURL   string        `mapstructure:"ws_url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"backend"`

	History struct {
		CacheTTL     time.Duration `mapstructure:"cache_ttl"`
		InitialHours int           `mapstructure:"initial_hours"`
	} `mapstructure:"history"`

	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	Auth struct {
		SigningKey string        `mapstructure:"signing_key"`
		TokenTTL   time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`
}

// wsFallbackPort is used when no explicit WebSocket URL is configured:
// the socket URL is derived from the backend host on this port.
const wsFallbackPort = "8000"

// Load reads configs/config.yml, applies defaults and env overrides
// (CAULDRONWATCH_BACKEND_BASE_URL and friends), and returns the Config.
func Load() (*Config, error) {
	v := viper.New()
	v.AddConfigPath("configs") // configs/config.yml
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("cauldronwatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// A missing file is fine: defaults plus env cover everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Backend.WSURL == "" {
		ws, err := deriveWSURL(cfg.Backend.BaseURL)
		if err != nil {
			return nil, err
		}
		cfg.Backend.WSURL = ws
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("history.cache_ttl", 5*time.Minute)
	v.SetDefault("history.initial_hours", 24)
	v.SetDefault("db.path", "cauldronwatch.db")
	v.SetDefault("auth.token_ttl", time.Hour)
}

// deriveWSURL builds a ws:// URL from the backend host on the fallback port.
func deriveWSURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("derive ws url from %q: %w", baseURL, err)
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%s/ws", scheme, u.Hostname(), wsFallbackPort), nil
}
