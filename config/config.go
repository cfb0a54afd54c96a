package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	LocalStore LocalStoreConfig `mapstructure:"localstore"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	SessionSecret string `mapstructure:"session_secret"`
	SecureCookies bool   `mapstructure:"secure_cookies"`
	MaxAgeDays    int    `mapstructure:"max_age_days"`
}

// LocalStoreConfig selects where per-profile client state lives: "sqlite"
// (the row store database) or "redis".
type LocalStoreConfig struct {
	Driver        string `mapstructure:"driver"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	EngineCache   int    `mapstructure:"engine_cache"`
}

// StorageConfig is the S3 compatible bucket for avatars. Uploads are
// disabled when Bucket is empty.
type StorageConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	Region         string `mapstructure:"region"`
	Bucket         string `mapstructure:"bucket"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	PublicURL      string `mapstructure:"public_url"`
	UsePathStyle   bool   `mapstructure:"use_path_style"`
	MaxAvatarBytes int64  `mapstructure:"max_avatar_bytes"`
}

// SyncConfig tunes the fetch retry of live views.
type SyncConfig struct {
	MaxTries        uint          `mapstructure:"max_tries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type ChatConfig struct {
	PerMinute int `mapstructure:"per_minute"`
	Burst     int `mapstructure:"burst"`
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// MetricsConfig guards /metrics with basic auth when User is set.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// DefaultSessionSecret is only accepted in development mode.
const DefaultSessionSecret = "your-secret-key-change-this-in-production"

var ErrDefaultSessionSecret = errors.New("auth.session_secret must be changed outside development mode")

// Load reads config.yaml, merges config.local.yaml on top and applies
// RECONECTAR_* environment overrides.
func Load() (*Config, error) {
	cfg, err := load(viper.New(), ".", "./config")
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server must not start with.
func (c *Config) Validate() error {
	secret := strings.TrimSpace(c.Auth.SessionSecret)
	if !c.Logger.Development && (secret == "" || secret == DefaultSessionSecret) {
		return ErrDefaultSessionSecret
	}
	return nil
}

func load(v *viper.Viper, paths ...string) (*Config, error) {
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found, use defaults
	}

	// Read local config file for overrides (ignored by git)
	v.SetConfigName("config.local")
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.SetEnvPrefix("RECONECTAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:8080"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.path", "./reconectar.db")

	v.SetDefault("auth.session_secret", DefaultSessionSecret)
	v.SetDefault("auth.secure_cookies", false)
	v.SetDefault("auth.max_age_days", 30)

	v.SetDefault("localstore.driver", "sqlite")
	v.SetDefault("localstore.redis_addr", "localhost:6379")
	v.SetDefault("localstore.redis_password", "")
	v.SetDefault("localstore.redis_db", 0)
	v.SetDefault("localstore.engine_cache", 1024)

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.public_url", "")
	v.SetDefault("storage.use_path_style", true)
	v.SetDefault("storage.max_avatar_bytes", 2<<20)

	v.SetDefault("sync.max_tries", 3)
	v.SetDefault("sync.initial_interval", 200*time.Millisecond)
	v.SetDefault("sync.max_interval", 2*time.Second)

	v.SetDefault("chat.per_minute", 20)
	v.SetDefault("chat.burst", 5)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.development", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.user", "")
	v.SetDefault("metrics.password", "")
}
