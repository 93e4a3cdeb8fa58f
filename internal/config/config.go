package config

import (
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/viper"
)

const ErrorCodeConfig = "CONFIG_INVALID"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	APIToken     string        `mapstructure:"api_token"`
}

type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

type DeliveryConfig struct {
	Workers          int           `mapstructure:"workers"`
	QueueSize        int           `mapstructure:"queue_size"`
	FanOut           int           `mapstructure:"fan_out"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	ForwardUserEmail bool          `mapstructure:"forward_user_email"`
}

type SweepConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
	RedisURL  string        `mapstructure:"redis_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("feedbackhooks")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/feedbackhooks")
	}

	setDefaults(v)

	v.SetEnvPrefix("FEEDBACKHOOKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.api_token", "")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite.path", "./data/feedbackhooks.db")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.max_conns", 10)

	v.SetDefault("delivery.workers", 4)
	v.SetDefault("delivery.queue_size", 256)
	v.SetDefault("delivery.fan_out", 16)
	v.SetDefault("delivery.timeout", 30*time.Second)
	v.SetDefault("delivery.max_attempts", 5)
	v.SetDefault("delivery.base_delay", 5*time.Second)
	v.SetDefault("delivery.max_delay", time.Hour)
	v.SetDefault("delivery.forward_user_email", true)

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", time.Minute)
	v.SetDefault("sweep.batch_size", 100)
	v.SetDefault("sweep.lock_ttl", 5*time.Minute)
	v.SetDefault("sweep.redis_url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks settings every command needs. Serving additionally
// requires an API token, see RequireAPIToken.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Storage.SQLite.Path) == "" {
			return configError("storage.sqlite.path is required")
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.Postgres.DSN) == "" {
			return configError("storage.postgres.dsn is required")
		}
	default:
		return configError("unsupported storage driver: " + c.Storage.Driver)
	}
	if c.Delivery.MaxAttempts < 1 {
		return configError("delivery.max_attempts must be at least 1")
	}
	if c.Delivery.Timeout <= 0 {
		return configError("delivery.timeout must be positive")
	}
	if c.Delivery.BaseDelay <= 0 || c.Delivery.MaxDelay < c.Delivery.BaseDelay {
		return configError("delivery.base_delay must be positive and not exceed delivery.max_delay")
	}
	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		return configError("sweep.interval must be positive")
	}
	return nil
}

func (c *Config) RequireAPIToken() error {
	if strings.TrimSpace(c.Server.APIToken) == "" {
		return configError("server.api_token is required")
	}
	return nil
}

func configError(message string) error {
	return goerrors.New("config: "+message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorCodeConfig)
}
