// Package config loads the CIFS client configuration.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CIFS_*, e.g. CIFS_RESOLVE_WINS)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete client configuration.
type Config struct {
	Resolve   ResolveConfig   `mapstructure:"resolve"`
	Transport TransportConfig `mapstructure:"transport"`
	Session   SessionConfig   `mapstructure:"session"`
	Login     LoginConfig     `mapstructure:"login"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ResolveConfig controls NetBIOS name resolution.
type ResolveConfig struct {
	// Order lists lookup methods tried after the cache: dns, lmhosts, wins, bcast.
	Order    []string      `mapstructure:"order"`
	WINS     string        `mapstructure:"wins"`
	LMHosts  string        `mapstructure:"lmhosts"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Retries  int           `mapstructure:"retries"`

	// NodeStatus asks servers resolved by DNS for their NetBIOS name.
	NodeStatus bool `mapstructure:"node_status"`
}

// TransportConfig controls the NetBIOS session connection.
type TransportConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	Port        int           `mapstructure:"port"`
	Socks5      string        `mapstructure:"socks5"`
	CallingName string        `mapstructure:"calling_name"`
}

// SessionConfig controls SMB session behavior.
type SessionConfig struct {
	AutoReconnect bool   `mapstructure:"auto_reconnect"`
	MaxBuffer     int    `mapstructure:"max_buffer"`
	NativeOS      string `mapstructure:"native_os"`
}

// LoginConfig is the default login. A nil Password means a null session.
type LoginConfig struct {
	User     string  `mapstructure:"user"`
	Password *string `mapstructure:"password"`
}

// LoggingConfig controls pkg/debug.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

var validMethods = map[string]bool{"dns": true, "lmhosts": true, "wins": true, "bcast": true}

// Load reads configuration from configPath, the environment and defaults.
// An empty configPath looks for config.yaml in the default directory and
// falls back to defaults when none exists.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	setupViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic("config: defaults do not decode: " + err.Error())
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("resolve.order", []string{"dns", "lmhosts", "wins"})
	v.SetDefault("resolve.wins", "")
	v.SetDefault("resolve.lmhosts", "")
	v.SetDefault("resolve.cache_ttl", 10*time.Minute)
	v.SetDefault("resolve.timeout", 3*time.Second)
	v.SetDefault("resolve.retries", 2)
	v.SetDefault("resolve.node_status", true)

	v.SetDefault("transport.timeout", 30*time.Second)
	v.SetDefault("transport.port", 139)
	v.SetDefault("transport.socks5", "")
	v.SetDefault("transport.calling_name", "")

	v.SetDefault("session.auto_reconnect", false)
	v.SetDefault("session.max_buffer", 40*1024)
	v.SetDefault("session.native_os", "Go")

	v.SetDefault("login.user", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9139")
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("CIFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("login.password")

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(ConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// ConfigDir returns $XDG_CONFIG_HOME/cifsgooser or ~/.config/cifsgooser.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "cifsgooser")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "cifsgooser")
}

// Validate checks the configuration for values the client cannot use.
func Validate(cfg *Config) error {
	if len(cfg.Resolve.Order) == 0 {
		return errors.New("resolve.order must list at least one method")
	}
	for i, m := range cfg.Resolve.Order {
		m = strings.ToLower(strings.TrimSpace(m))
		if !validMethods[m] {
			return fmt.Errorf("resolve.order: unknown method %q", m)
		}
		cfg.Resolve.Order[i] = m
	}
	if cfg.Transport.Port <= 0 || cfg.Transport.Port > 65535 {
		return fmt.Errorf("transport.port out of range: %d", cfg.Transport.Port)
	}
	if cfg.Transport.Timeout < 0 {
		return errors.New("transport.timeout must not be negative")
	}
	if cfg.Session.MaxBuffer < 1024 || cfg.Session.MaxBuffer > 0xffff {
		return fmt.Errorf("session.max_buffer out of range: %d", cfg.Session.MaxBuffer)
	}
	if cfg.Transport.Socks5 != "" && !strings.HasPrefix(cfg.Transport.Socks5, "socks5://") {
		cfg.Transport.Socks5 = "socks5://" + cfg.Transport.Socks5
	}
	return nil
}
