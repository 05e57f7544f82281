package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	Permissions PermissionsConfig `mapstructure:"permissions"`
	Audit       AuditConfig       `mapstructure:"audit"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Worker      WorkerConfig      `mapstructure:"worker"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

type JWTConfig struct {
	Secret   string        `mapstructure:"secret"`
	Audience string        `mapstructure:"audience"`
	Leeway   time.Duration `mapstructure:"leeway"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

const (
	PermissionModeLocal  = "local"
	PermissionModeRemote = "remote"
)

type PermissionsConfig struct {
	// Mode selects where scope decisions run: "local" evaluates the rules in
	// process, "remote" calls the check_user_permission procedure.
	Mode string `mapstructure:"mode"`
	// CacheTTL bounds how long a role's settings are served from memory.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// ListenNotify subscribes to Postgres NOTIFY for settings changes.
	ListenNotify bool `mapstructure:"listen_notify"`
}

type AuditConfig struct {
	// UseRPC writes entries through the log_activity procedure.
	UseRPC          bool          `mapstructure:"use_rpc"`
	RetentionDays   int           `mapstructure:"retention_days"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `mapstructure:"prometheus_enabled"`
	MetricsPath       string `mapstructure:"metrics_path"`
	Namespace         string `mapstructure:"namespace"`
}

type WorkerConfig struct {
	// HealthPort serves liveness and metrics for the retention worker.
	HealthPort int `mapstructure:"health_port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "taskdesk")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.audience", "authenticated")
	v.SetDefault("jwt.leeway", 30*time.Second)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)

	v.SetDefault("permissions.mode", PermissionModeLocal)
	v.SetDefault("permissions.cache_ttl", 5*time.Minute)
	v.SetDefault("permissions.listen_notify", true)

	v.SetDefault("audit.use_rpc", false)
	v.SetDefault("audit.retention_days", 0)
	v.SetDefault("audit.cleanup_interval", 24*time.Hour)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 50)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("monitoring.prometheus_enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.namespace", "taskdesk")

	v.SetDefault("worker.health_port", 8081)
}

// LoadConfig reads and validates the service configuration.
func LoadConfig() (*Config, error) {
	config, err := Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Load reads config.yaml from . or ./config, overlaid with TASKDESK_*
// environment variables (a local .env file is loaded first when present).
// Tools that only need the database section use it without validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("TASKDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	switch c.Permissions.Mode {
	case PermissionModeLocal, PermissionModeRemote:
	default:
		return fmt.Errorf("permissions.mode must be %q or %q, got %q", PermissionModeLocal, PermissionModeRemote, c.Permissions.Mode)
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days must not be negative")
	}
	return nil
}
