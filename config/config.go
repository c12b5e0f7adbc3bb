package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type HTTP struct {
	Addr           string        `yaml:"addr" env:"ADDR"`                      // ":8080"
	ReadTimeout    time.Duration `yaml:"readTimeout" env:"READ_TIMEOUT"`       // "10s"
	WriteTimeout   time.Duration `yaml:"writeTimeout" env:"WRITE_TIMEOUT"`     // "15s"
	IdleTimeout    time.Duration `yaml:"idleTimeout" env:"IDLE_TIMEOUT"`       // "60s"
	RequestTimeout time.Duration `yaml:"requestTimeout" env:"REQUEST_TIMEOUT"` // chi Timeout для REST
}

type GRPC struct {
	Addr string `yaml:"addr" env:"ADDR"` // пусто - gRPC не поднимается
}

type Logging struct {
	Env       string `yaml:"env" env:"ENV"`              // dev|stage|prod
	Service   string `yaml:"service" env:"SERVICE"`      // feed-service
	Version   string `yaml:"version" env:"VERSION"`      // v0.1.0
	Backend   string `yaml:"backend" env:"BACKEND"`      // std|zap
	Level     string `yaml:"level" env:"LEVEL"`          // debug|info|warn|error
	AddSource bool   `yaml:"addSource" env:"ADD_SOURCE"` // false|true
	Debug     bool   `yaml:"debug" env:"DEBUG"`          // false|true
}

type Storage struct {
	Driver string `yaml:"driver" env:"DRIVER"` // memory|sqlite|postgres
}

type Postgres struct {
	DSN             string        `yaml:"dsn" env:"DSN"`
	MaxConns        int32         `yaml:"maxConns" env:"MAX_CONNS"`
	MinConns        int32         `yaml:"minConns" env:"MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime" env:"MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime" env:"MAX_CONN_IDLE_TIME"`
	Migrate         bool          `yaml:"migrate" env:"MIGRATE"`
}

type SQLite struct {
	Path string `yaml:"path" env:"PATH"` // ./data/feed.db или :memory:
}

type WS struct {
	PingInterval   time.Duration `yaml:"pingInterval" env:"PING_INTERVAL"`
	WriteWait      time.Duration `yaml:"writeWait" env:"WRITE_WAIT"`
	SendBuffer     int           `yaml:"sendBuffer" env:"SEND_BUFFER"`
	ReadLimit      int64         `yaml:"readLimit" env:"READ_LIMIT"`
	CommandTimeout time.Duration `yaml:"commandTimeout" env:"COMMAND_TIMEOUT"`
}

type Feed struct {
	MaxMessageLength int    `yaml:"maxMessageLength" env:"MAX_MESSAGE_LENGTH"`
	MaxPollOptions   int    `yaml:"maxPollOptions" env:"MAX_POLL_OPTIONS"`
	TimeLayout       string `yaml:"timeLayout" env:"TIME_LAYOUT"` // формат «timestamp»
}

type Telemetry struct {
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"` // OTLP/HTTP, пусто - выключено
}

type Config struct {
	HTTP      HTTP      `yaml:"http" envPrefix:"HTTP_"`
	GRPC      GRPC      `yaml:"grpc" envPrefix:"GRPC_"`
	Logging   Logging   `yaml:"logging" envPrefix:"LOG_"`
	Storage   Storage   `yaml:"storage" envPrefix:"STORAGE_"`
	Postgres  Postgres  `yaml:"postgres" envPrefix:"POSTGRES_"`
	SQLite    SQLite    `yaml:"sqlite" envPrefix:"SQLITE_"`
	WS        WS        `yaml:"ws" envPrefix:"WS_"`
	Feed      Feed      `yaml:"feed"`
	Telemetry Telemetry `yaml:"telemetry" envPrefix:"OTEL_"`
}

const envPrefix = "FEED_"

// LoadConfig: .env (если есть) -> YAML из CONFIG_PATH -> переменные FEED_*.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	return Load(path, os.Environ())
}

// Load собирает конфиг из файла и явного окружения. Отсутствующий файл допустим.
func Load(path string, environ []string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{
		Prefix:      envPrefix,
		Environment: toMap(environ),
	}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLite.Path == "" {
			c.SQLite.Path = "./data/feed.db"
		}
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for storage.driver=postgres")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	if c.Feed.MaxMessageLength < 0 || c.Feed.MaxPollOptions < 0 {
		return errors.New("feed limits must not be negative")
	}
	if c.Feed.MaxPollOptions != 0 && c.Feed.MaxPollOptions < 2 {
		return errors.New("feed.maxPollOptions must allow at least 2 options")
	}

	// установка дефолтов, если значения не указаны
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	c.HTTP.ReadTimeout = orDefault(c.HTTP.ReadTimeout, 10*time.Second)
	c.HTTP.WriteTimeout = orDefault(c.HTTP.WriteTimeout, 15*time.Second)
	c.HTTP.IdleTimeout = orDefault(c.HTTP.IdleTimeout, 60*time.Second)
	c.HTTP.RequestTimeout = orDefault(c.HTTP.RequestTimeout, 30*time.Second)

	if c.Logging.Service == "" {
		c.Logging.Service = "feed-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	return nil
}

func orDefault(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

func toMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			m[k] = v
		}
	}
	return m
}
