package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/leadrelay/keygate/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. KEYGATE_SERVER_ADDR.
const EnvPrefix = "KEYGATE"

var upstreamName = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Config is the effective keygate configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Auth        AuthConfig        `mapstructure:"auth" yaml:"auth"`
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Usage       UsageConfig       `mapstructure:"usage" yaml:"usage"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance" yaml:"maintenance"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Upstreams   []UpstreamConfig  `mapstructure:"upstreams" yaml:"upstreams"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	IPRateLimit     int           `mapstructure:"ip_rate_limit" yaml:"ip_rate_limit"` // per minute, 0 disables
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"`
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	DataDir         string        `mapstructure:"data_dir" yaml:"data_dir"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// AuthConfig controls management session verification.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
}

// CacheConfig enables the shared Redis key cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db"`
	KeyTTL        time.Duration `mapstructure:"key_ttl" yaml:"key_ttl"`
}

// UsageConfig controls usage logging and retention.
type UsageConfig struct {
	RetentionDays int           `mapstructure:"retention_days" yaml:"retention_days"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// MaintenanceConfig schedules the cleanup jobs run by serve.
type MaintenanceConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	WindowInterval time.Duration `mapstructure:"window_interval" yaml:"window_interval"`
	UsageInterval  time.Duration `mapstructure:"usage_interval" yaml:"usage_interval"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // json or text
}

// UpstreamConfig proxies /api/v1/external/{name} to a business service.
type UpstreamConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	URL         string `mapstructure:"url" yaml:"url"`
	Description string `mapstructure:"description" yaml:"description,omitempty"`
}

// SetDefaults registers every key with its default so that environment
// overrides apply even when no config file sets the key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.ip_rate_limit", 600)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.driver", store.DriverSQLite)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.data_dir", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "keygate")

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.key_ttl", 30*time.Second)

	v.SetDefault("usage.retention_days", 90)
	v.SetDefault("usage.write_timeout", 5*time.Second)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.window_interval", time.Hour)
	v.SetDefault("maintenance.usage_interval", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// NewViper returns a viper instance with defaults and environment binding
// applied. configFile may be empty to search ./keygate.yaml and
// $HOME/.keygate/keygate.yaml.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("keygate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.keygate")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads variables from path into the process environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the config file (when present) and decodes the result.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	return validation.Errors{
		"server": validation.ValidateStruct(&c.Server,
			validation.Field(&c.Server.Addr, validation.Required),
			validation.Field(&c.Server.IPRateLimit, validation.Min(0)),
		),
		"database": validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.Driver, validation.Required, validation.In(
				store.DriverSQLite, store.DriverPostgres, store.DriverMySQL, store.DriverSQLServer)),
			validation.Field(&c.Database.DSN, validation.When(c.Database.Driver != store.DriverSQLite, validation.Required)),
		),
		"usage": validation.ValidateStruct(&c.Usage,
			validation.Field(&c.Usage.RetentionDays, validation.Required, validation.Min(1)),
		),
		"log": validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.Format, validation.In("json", "text")),
		),
		"upstreams": validation.Validate(c.Upstreams),
	}.Filter()
}

// Validate implements validation.Validatable for list entries.
func (u UpstreamConfig) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Name, validation.Required, validation.Match(upstreamName)),
		validation.Field(&u.URL, validation.Required),
	)
}

// StoreOptions converts the database section to store options.
func (d DatabaseConfig) StoreOptions() store.Options {
	return store.Options{
		Driver:          d.Driver,
		DSN:             d.DSN,
		DataDir:         d.DataDir,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
	}
}
