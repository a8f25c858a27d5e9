package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "JAVERY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	StoreDriverFirestore = "firestore"
	StoreDriverPostgres  = "postgres"
	StoreDriverSQLite    = "sqlite"
)

const (
	EnvAppEnv        = "JAVERY_APP_ENV"
	EnvPort          = "JAVERY_APP_PORT"
	EnvStoreDriver   = "JAVERY_STORE_DRIVER"
	EnvDBDSN         = "JAVERY_DB_DSN"
	EnvRedisURL      = "JAVERY_REDIS_URL"
	EnvJWTSecret     = "JAVERY_JWT_SECRET"
	EnvJWTIssuer     = "JAVERY_JWT_ISSUER"
	EnvGCPProjectID  = "JAVERY_GCP_PROJECT_ID"
	EnvOrdersTopic   = "JAVERY_PUBSUB_ORDERS_TOPIC"
	EnvDeliveryLimit = "JAVERY_ORDERS_DELIVERY_TIMEOUT"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	Store        StoreConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	GCP          GCPConfig
	Firestore    FirestoreConfig
	PubSub       PubSubConfig
	Eventing     EventingConfig
	Outbox       OutboxConfig
	Push         PushConfig
	Orders       OrdersConfig
	Cron         CronConfig
	Metrics      MetricsConfig
	CORS         CORSConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreDriverFirestore:
		if c.GCP.ProjectID == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvGCPProjectID, EnvStoreDriver, StoreDriverFirestore)
		}
	case StoreDriverPostgres, StoreDriverSQLite:
		c.DB.Driver = c.Store.Driver
		if err := c.DB.ensureDSN(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvStoreDriver, c.Store.Driver)
	}
	if c.Orders.DeliveryTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvDeliveryLimit)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"JAVERY_APP_ENV" required:"true"`
	Port         string `envconfig:"JAVERY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"JAVERY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"JAVERY_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"JAVERY_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"JAVERY_SERVICE_KIND" default:"api"`
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Driver string `envconfig:"JAVERY_STORE_DRIVER" default:"firestore"`
}

// IsSQL reports whether documents live in the gorm-backed SQL store.
func (s StoreConfig) IsSQL() bool {
	return s.Driver == StoreDriverPostgres || s.Driver == StoreDriverSQLite
}

type DBConfig struct {
	DSN    string `envconfig:"JAVERY_DB_DSN"`
	Driver string `envconfig:"JAVERY_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"JAVERY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"JAVERY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"JAVERY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"JAVERY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"JAVERY_DB_SLOW_QUERY" default:"200ms"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.Driver == StoreDriverSQLite {
		db.DSN = "file:javery.db?_foreign_keys=on"
		return nil
	}
	return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvStoreDriver, db.Driver)
}

type RedisConfig struct {
	URL          string        `envconfig:"JAVERY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"JAVERY_REDIS_ADDR"`
	Password     string        `envconfig:"JAVERY_REDIS_PASSWORD"`
	DB           int           `envconfig:"JAVERY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"JAVERY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"JAVERY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"JAVERY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"JAVERY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"JAVERY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies bearer tokens minted by the identity provider.
type JWTConfig struct {
	Secret string `envconfig:"JAVERY_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"JAVERY_JWT_ISSUER" required:"true"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"JAVERY_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"JAVERY_GCP_CREDENTIALS_JSON"`
}

type FirestoreConfig struct {
	DatabaseID string `envconfig:"JAVERY_FIRESTORE_DATABASE_ID" default:"(default)"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"JAVERY_PUBSUB_ORDERS_TOPIC" default:"javery-order-events"`
	NotificationSubscription string `envconfig:"JAVERY_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"javery-order-notifications"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"JAVERY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"JAVERY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"JAVERY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"JAVERY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"JAVERY_OUTBOX_RETENTION_DAYS" default:"30"`
}

type PushConfig struct {
	Endpoint    string        `envconfig:"JAVERY_PUSH_ENDPOINT" default:"https://exp.host/--/api/v2/push/send"`
	AccessToken string        `envconfig:"JAVERY_PUSH_ACCESS_TOKEN"`
	Timeout     time.Duration `envconfig:"JAVERY_PUSH_TIMEOUT" default:"10s"`
}

type OrdersConfig struct {
	DeliveryTimeout time.Duration `envconfig:"JAVERY_ORDERS_DELIVERY_TIMEOUT" default:"30m"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"JAVERY_CRON_INTERVAL" default:"1h"`
}

type MetricsConfig struct {
	Addr string `envconfig:"JAVERY_METRICS_ADDR" default:":9091"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"JAVERY_CORS_ALLOWED_ORIGINS" default:"http://localhost:8081,http://localhost:19006"`
}

type RateLimitConfig struct {
	OrderCreateWindow    time.Duration `envconfig:"JAVERY_RATE_LIMIT_ORDER_CREATE_WINDOW" default:"1m"`
	OrderCreateUserLimit int           `envconfig:"JAVERY_RATE_LIMIT_ORDER_CREATE_USER" default:"10"`
	OrderCreateIPLimit   int           `envconfig:"JAVERY_RATE_LIMIT_ORDER_CREATE_IP" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"JAVERY_AUTO_MIGRATE" default:"false"`
}
