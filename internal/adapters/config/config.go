package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"poolvault/pkg/errors"
)

type Config struct {
	App           AppConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Ledger        LedgerConfig
	Prices        PricesConfig
	Pool          PoolConfig
	Admin         AdminConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"poolvault"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Port     int    `envconfig:"HTTP_PORT" default:"8080"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST" required:"true"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"poolvault"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" required:"true"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS" required:"true"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"poolvault"`
}

// LedgerConfig describes the authoritative on-chain ledger gateway.
// Every call is bounded by RequestTimeout; on expiry the caller degrades
// to the next valuation tier instead of retrying.
type LedgerConfig struct {
	BaseURL           string        `envconfig:"LEDGER_BASE_URL" required:"true"`
	RequestTimeout    time.Duration `envconfig:"LEDGER_REQUEST_TIMEOUT" default:"3s"`
	RequestsPerMinute int           `envconfig:"LEDGER_REQUESTS_PER_MINUTE" default:"300"`
	PageSize          int           `envconfig:"LEDGER_PAGE_SIZE" default:"200"`
}

type PricesConfig struct {
	QuoteTTL time.Duration `envconfig:"PRICE_QUOTE_TTL" default:"15s"`
}

// PoolConfig carries share accounting policy for the pooled vehicle
type PoolConfig struct {
	Assets            []string      `envconfig:"POOL_ASSETS" default:"BTC,ETH,CRO,SUI"`
	MinDepositUSD     string        `envconfig:"POOL_MIN_DEPOSIT_USD" default:"10"`
	ManagementFeeBps  int64         `envconfig:"POOL_MANAGEMENT_FEE_BPS" default:"200"`
	PerformanceFeeBps int64         `envconfig:"POOL_PERFORMANCE_FEE_BPS" default:"2000"`
	RebalanceCooldown time.Duration `envconfig:"POOL_REBALANCE_COOLDOWN" default:"24h"`
	SnapshotTTL       time.Duration `envconfig:"POOL_SNAPSHOT_TTL" default:"30s"`
	RecentValuations  int           `envconfig:"POOL_RECENT_VALUATIONS" default:"64"`
}

// MinDeposit parses the configured minimum deposit into a decimal
func (c PoolConfig) MinDeposit() decimal.Decimal {
	d, err := decimal.NewFromString(c.MinDepositUSD)
	if err != nil {
		return decimal.NewFromInt(10)
	}
	return d
}

// AdminConfig holds the shared admin secret and capability principals.
// FeeManagerID gates fee withdrawal; RebalancerIDs gates allocation changes.
type AdminConfig struct {
	SyncSecret    string   `envconfig:"ADMIN_SYNC_SECRET" required:"true"`
	FeeManagerID  string   `envconfig:"ADMIN_FEE_MANAGER_ID" required:"true"`
	RebalancerIDs []string `envconfig:"ADMIN_REBALANCER_IDS" required:"true"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for all background workers
type WorkerConfig struct {
	ResyncInterval     time.Duration `envconfig:"WORKER_RESYNC_INTERVAL" default:"15m"`
	ResyncEnabled      bool          `envconfig:"WORKER_RESYNC_ENABLED" default:"true"`
	FeeAccrualInterval time.Duration `envconfig:"WORKER_FEE_ACCRUAL_INTERVAL" default:"1h"`
	FeeAccrualEnabled  bool          `envconfig:"WORKER_FEE_ACCRUAL_ENABLED" default:"true"`
	ValuationInterval  time.Duration `envconfig:"WORKER_VALUATION_INTERVAL" default:"1m"`
	ValuationEnabled   bool          `envconfig:"WORKER_VALUATION_ENABLED" default:"true"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
