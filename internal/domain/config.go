package domain

import (
	"strconv"
	"strings"
	"time"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Detection tunes the scoring pipeline
	Detection DetectionConfig `json:"detection"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// AsyncWorker consumes detection requests from the event bus
	AsyncWorker bool `json:"asyncWorker"`

	// WorkerTenants limits the async worker to these tenants; empty means all.
	WorkerTenants []string `json:"workerTenants,omitempty"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// DetectionConfig holds ensemble and batch settings.
type DetectionConfig struct {
	// EnsembleProfile selects the member set: "full" (8 models) or "compact" (4 models)
	EnsembleProfile string `json:"ensembleProfile"`

	// UncertaintyAmplitude is the width of the shared jitter applied before per-model noise.
	// Zero disables it.
	UncertaintyAmplitude float64 `json:"uncertaintyAmplitude"`

	// Workers bounds batch parallelism. 1 keeps noise draws in input order.
	Workers int `json:"workers"`

	// Seed pins the noise source when non-zero.
	Seed uint64 `json:"seed"`

	// RateLimit is the per-tenant request limit per minute; 0 disables it.
	RateLimit int `json:"rateLimit"`

	// IdempotencyTTL bounds how long replayable responses are kept.
	IdempotencyTTL time.Duration `json:"idempotencyTtl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, none
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process cache
	TierCommunity Tier = "community"

	// TierPro uses PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// Ensemble profile names.
const (
	ProfileFull    = "full"
	ProfileCompact = "compact"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Detection: DetectionConfig{
			EnsembleProfile:      ProfileFull,
			UncertaintyAmplitude: 0.1,
			Workers:              1,
			IdempotencyTTL:       10 * time.Minute,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			ServiceName:  "kestrel",
			ExporterType: "stdout",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		RedisPoolSize:  20,
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "kestrel-workers",
	}
	cfg.AsyncWorker = true
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig picks the tier defaults from KESTREL_TIER and applies environment overrides.
func LoadConfig(getenv func(string) string) *Config {
	cfg := DefaultConfig()
	if strings.EqualFold(getenv("KESTREL_TIER"), string(TierPro)) {
		cfg = ProConfig()
	}
	ApplyEnv(cfg, getenv)
	return cfg
}

// ApplyEnv overrides cfg with KESTREL_* environment variables.
// Unset or malformed values leave the current setting untouched.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, err := strconv.Atoi(strings.TrimSpace(getenv(key))); err == nil {
			*dst = v
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, err := strconv.ParseFloat(strings.TrimSpace(getenv(key)), 64); err == nil {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v, err := strconv.ParseBool(strings.TrimSpace(getenv(key))); err == nil {
			*dst = v
		}
	}

	setString("KESTREL_HOST", &cfg.Server.Host)
	setInt("KESTREL_PORT", &cfg.Server.Port)

	setString("KESTREL_ENSEMBLE_PROFILE", &cfg.Detection.EnsembleProfile)
	setFloat("KESTREL_UNCERTAINTY", &cfg.Detection.UncertaintyAmplitude)
	setInt("KESTREL_WORKERS", &cfg.Detection.Workers)
	setInt("KESTREL_RATE_LIMIT", &cfg.Detection.RateLimit)
	if v, err := strconv.ParseUint(strings.TrimSpace(getenv("KESTREL_SEED")), 10, 64); err == nil {
		cfg.Detection.Seed = v
	}

	setString("KESTREL_DB_DRIVER", &cfg.Repository.Driver)
	setString("KESTREL_SQLITE_PATH", &cfg.Repository.SQLitePath)
	setString("KESTREL_POSTGRES_HOST", &cfg.Repository.PostgresHost)
	setInt("KESTREL_POSTGRES_PORT", &cfg.Repository.PostgresPort)
	setString("KESTREL_POSTGRES_USER", &cfg.Repository.PostgresUser)
	setString("KESTREL_POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword)
	setString("KESTREL_POSTGRES_DB", &cfg.Repository.PostgresDB)
	setString("KESTREL_POSTGRES_SSLMODE", &cfg.Repository.PostgresSSLMode)

	setString("KESTREL_REDIS_ADDR", &cfg.Cache.RedisAddr)
	setString("KESTREL_REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	setInt("KESTREL_REDIS_POOL_SIZE", &cfg.Cache.RedisPoolSize)
	setString("KESTREL_NATS_URL", &cfg.EventBus.NATSUrl)
	setString("KESTREL_NATS_TOKEN", &cfg.EventBus.NATSToken)
	setString("KESTREL_NATS_QUEUE", &cfg.EventBus.NATSQueueGroup)

	setBool("KESTREL_ASYNC_WORKER", &cfg.AsyncWorker)
	if tenants := splitList(getenv("KESTREL_TENANTS")); len(tenants) > 0 {
		cfg.WorkerTenants = tenants
	}
	setBool("KESTREL_TRACING", &cfg.Tracing.Enabled)

	setString("KESTREL_LOG_LEVEL", &cfg.Logging.Level)
	setString("KESTREL_LOG_FORMAT", &cfg.Logging.Format)
	if getenv("KESTREL_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
