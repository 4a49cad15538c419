package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"

	"github.com/tair/marketplace-catalog/pkg/database"
)

// Snapshot backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// Config is the catalog service configuration, read from the environment
type Config struct {
	Service  ServiceConfig
	Catalog  CatalogConfig
	Upstream UpstreamConfig
	Snapshot SnapshotConfig
	Redis    RedisConfig
	DB       DBConfig
	Kafka    KafkaConfig
	CORS     CORSConfig
	JWT      JWTConfig
	Tracing  TracingConfig
}

type ServiceConfig struct {
	Name        string `envconfig:"SERVICE_NAME" default:"catalog-service"`
	Version     string `envconfig:"SERVICE_VERSION" default:"1.0.0"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Port        string `envconfig:"HTTP_PORT" default:"8084"`
}

func (c ServiceConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

type CatalogConfig struct {
	StalenessWindow time.Duration `envconfig:"CATALOG_STALENESS_WINDOW" default:"5m"`
	FetchTimeout    time.Duration `envconfig:"CATALOG_FETCH_TIMEOUT" default:"10s"`
	SimilarLimit    int           `envconfig:"CATALOG_SIMILAR_LIMIT" default:"6"`
}

type UpstreamConfig struct {
	BaseURL         string        `envconfig:"MARKETPLACE_API_URL" default:"http://localhost:8081/api"`
	MaxFailures     int           `envconfig:"MARKETPLACE_BREAKER_MAX_FAILURES" default:"5"`
	BreakerCoolDown time.Duration `envconfig:"MARKETPLACE_BREAKER_COOLDOWN" default:"30s"`
}

type SnapshotConfig struct {
	Backend    string `envconfig:"SNAPSHOT_BACKEND" default:"memory"`
	BadgerPath string `envconfig:"SNAPSHOT_BADGER_PATH" default:"./data/catalog"`
}

type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	TTL      time.Duration `envconfig:"REDIS_SNAPSHOT_TTL" default:"0"`
}

type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName   string `envconfig:"DB_NAME" default:"catalog"`
	SSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
}

func (c DBConfig) Database() database.Config {
	return database.Config{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		DBName:   c.DBName,
		SSLMode:  c.SSLMode,
	}
}

type KafkaConfig struct {
	// Empty disables both the listing consumer and the refresh publisher
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"catalog-service"`
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type JWTConfig struct {
	// Empty disables the admin endpoints
	Secret    string `envconfig:"JWT_SECRET"`
	AdminRole string `envconfig:"JWT_ADMIN_ROLE" default:"admin"`
}

type TracingConfig struct {
	JaegerEndpoint string `envconfig:"JAEGER_ENDPOINT" default:"http://localhost:14268/api/traces"`
}

// Load reads the configuration from the environment and validates it
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to process env config")
	}
	cfg.Snapshot.Backend = strings.ToLower(strings.TrimSpace(cfg.Snapshot.Backend))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Snapshot.Backend {
	case BackendMemory, BackendRedis, BackendBadger, BackendPostgres:
	default:
		return errors.Newf("unknown snapshot backend %q", c.Snapshot.Backend)
	}
	if c.Catalog.StalenessWindow <= 0 {
		return errors.New("CATALOG_STALENESS_WINDOW must be positive")
	}
	if c.Catalog.FetchTimeout <= 0 {
		return errors.New("CATALOG_FETCH_TIMEOUT must be positive")
	}
	if c.Catalog.SimilarLimit <= 0 {
		return errors.New("CATALOG_SIMILAR_LIMIT must be positive")
	}
	if c.Upstream.BaseURL == "" {
		return errors.New("MARKETPLACE_API_URL is required")
	}
	return nil
}
