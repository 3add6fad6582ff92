/*
Package config loads the application configuration.

SOURCES (later wins):
  1. Built-in defaults (setDefaults)
  2. .env file in the working directory, if present
  3. Optional config file (yaml/toml/json) given with --config
  4. LENDING_* environment variables, e.g. LENDING_DATABASE_DRIVER=postgres
  5. Command-line flags bound by cmd/server

GROUPS:
  server, database, redis, kafka, smtp, auth, lending, reminders, log

Optional integrations are disabled by leaving their address empty:
redis.addr, kafka.brokers, smtp.host.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment variables.
const EnvPrefix = "LENDING"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Lending   LendingConfig   `mapstructure:"lending"`
	Reminders RemindersConfig `mapstructure:"reminders"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Driver         string `mapstructure:"driver"` // sqlite | postgres | memory
	Path           string `mapstructure:"path"`   // sqlite file, ":memory:" allowed
	URL            string `mapstructure:"url"`    // postgres connection string
	MaxConns       int32  `mapstructure:"max_conns"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Enabled() bool { return c.Addr != "" }

type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

func (c SMTPConfig) Enabled() bool { return c.Host != "" }

type AuthConfig struct {
	Disabled     bool          `mapstructure:"disabled"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`      // plain, hashed at startup
	PasswordHash string        `mapstructure:"password_hash"` // bcrypt, wins over Password
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

type LendingConfig struct {
	DefaultInterestRate string `mapstructure:"default_interest_rate"`
	InstallmentCounts   []int  `mapstructure:"installment_counts"`
	LateFeeRate         string `mapstructure:"late_fee_rate"`
	LateFeeDays         int    `mapstructure:"late_fee_days"`
	CurrencySymbol      string `mapstructure:"currency_symbol"`
}

// Rates parses the decimal settings.
func (c LendingConfig) Rates() (interest, lateFee decimal.Decimal, err error) {
	interest, err = decimal.NewFromString(c.DefaultInterestRate)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("lending.default_interest_rate: %w", err)
	}
	lateFee, err = decimal.NewFromString(c.LateFeeRate)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("lending.late_fee_rate: %w", err)
	}
	return interest, lateFee, nil
}

type RemindersConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"` // cron expression, e.g. "@daily" or "0 9 * * *"
	Subject  string `mapstructure:"subject"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// =============================================================================
// LOADING
// =============================================================================

// New returns a viper instance with defaults and environment binding applied.
// Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env, the optional config file, and decodes into Config.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration with no file or env applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if _, _, err := c.Lending.Rates(); err != nil {
		return err
	}
	if len(c.Lending.InstallmentCounts) == 0 {
		return errors.New("lending.installment_counts must not be empty")
	}
	if !c.Auth.Disabled && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required unless auth.disabled is set")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "lending.db")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.migrate_on_start", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "lending")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "cobranzas@localhost")

	v.SetDefault("auth.disabled", false)
	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.password", "admin123")
	v.SetDefault("auth.password_hash", "")
	v.SetDefault("auth.jwt_secret", "change-me")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetDefault("lending.default_interest_rate", "0.10")
	v.SetDefault("lending.installment_counts", []int{1, 2, 3, 4, 6, 12, 18, 24})
	v.SetDefault("lending.late_fee_rate", "0.25")
	v.SetDefault("lending.late_fee_days", 30)
	v.SetDefault("lending.currency_symbol", "S/")

	v.SetDefault("reminders.enabled", false)
	v.SetDefault("reminders.schedule", "@daily")
	v.SetDefault("reminders.subject", "Payment reminder")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}
