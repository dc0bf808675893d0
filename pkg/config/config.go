package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	Delivery DeliveryConfig
	Sweeps   SweepConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Delivery.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CARDVAULT_APP_ENV" required:"true"`
	Port         string `envconfig:"CARDVAULT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CARDVAULT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARDVAULT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CARDVAULT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CARDVAULT_DB_DSN"`
	Driver string `envconfig:"CARDVAULT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CARDVAULT_DB_HOST"`
	LegacyPort     int    `envconfig:"CARDVAULT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CARDVAULT_DB_USER"`
	LegacyPassword string `envconfig:"CARDVAULT_DB_PASSWORD"`
	LegacyName     string `envconfig:"CARDVAULT_DB_NAME"`
	LegacySSLMode  string `envconfig:"CARDVAULT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CARDVAULT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CARDVAULT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CARDVAULT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARDVAULT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CARDVAULT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CARDVAULT_REDIS_ADDR"`
	Password     string        `envconfig:"CARDVAULT_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARDVAULT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARDVAULT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARDVAULT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARDVAULT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARDVAULT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARDVAULT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// DeliveryConfig carries the auto-delivery tunables. The defaults mirror the
// production values; none of them is a load-bearing business rule.
type DeliveryConfig struct {
	MaxRetryAttempts  int             `envconfig:"CARDVAULT_DELIVERY_MAX_RETRY_ATTEMPTS" default:"3"`
	RetryWindow       time.Duration   `envconfig:"CARDVAULT_DELIVERY_RETRY_WINDOW" default:"24h"`
	RetryBackoff      []time.Duration `envconfig:"CARDVAULT_DELIVERY_RETRY_BACKOFF" default:"5m,15m,45m"`
	LowStockThreshold int             `envconfig:"CARDVAULT_DELIVERY_LOW_STOCK_THRESHOLD" default:"5"`
}

func (d DeliveryConfig) validate() error {
	if d.MaxRetryAttempts < 0 {
		return fmt.Errorf("max retry attempts must not be negative")
	}
	if len(d.RetryBackoff) < d.MaxRetryAttempts {
		return fmt.Errorf("retry backoff schedule needs %d entries, got %d", d.MaxRetryAttempts, len(d.RetryBackoff))
	}
	return nil
}

// BackoffFor returns the wait required before retry attempt n (1-based).
// Attempts beyond the schedule reuse the last entry.
func (d DeliveryConfig) BackoffFor(attempt int) time.Duration {
	if len(d.RetryBackoff) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(d.RetryBackoff) {
		attempt = len(d.RetryBackoff)
	}
	return d.RetryBackoff[attempt-1]
}

type SweepConfig struct {
	Interval     time.Duration `envconfig:"CARDVAULT_SWEEP_INTERVAL" default:"1m"`
	LockTTL      time.Duration `envconfig:"CARDVAULT_SWEEP_LOCK_TTL" default:"5m"`
	OrderBatch   int           `envconfig:"CARDVAULT_SWEEP_ORDER_BATCH" default:"100"`
	RetryBatch   int           `envconfig:"CARDVAULT_SWEEP_RETRY_BATCH" default:"100"`
	MetricsPort  string        `envconfig:"CARDVAULT_SWEEP_METRICS_PORT" default:"9090"`
	MetricsOn    bool          `envconfig:"CARDVAULT_SWEEP_METRICS_ENABLED" default:"true"`
	DisabledJobs []string      `envconfig:"CARDVAULT_SWEEP_DISABLED_JOBS"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
