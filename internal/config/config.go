package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	R2        R2Config
	Storage   StorageConfig
	Zitadel   ZitadelConfig
	Gateway   GatewayConfig
	Extractor ExtractorConfig
	Bulk      BulkConfig
	Store     StoreConfig
	Ledger    LedgerConfig
	Database  DatabaseConfig
	Worker    WorkerConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
	PublicURL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	BulkPerHour   int
	ResolvePerMin int
	StatusPerMin  int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// Endpoint overrides the account endpoint for S3 compatible stores.
	Endpoint string
}

// StorageConfig selects where finished archives are kept.
type StorageConfig struct {
	Backend       string // "r2" or "local"
	LocalDir      string
	SigningSecret string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

type ExtractorConfig struct {
	BaseURL string
	APIKey  string
	Timeout int // seconds
}

type BulkConfig struct {
	MaxURLs           int
	DispatchMode      string // "queue" or "inline"
	ItemTimeout       time.Duration
	ExecutionTimeout  time.Duration
	QueuedTimeout     time.Duration
	LeaseTTL          time.Duration
	LinkTTL           time.Duration
	FetchConcurrency  int
	SpoolDir          string
	ReconcileSchedule string
	WorkerConcurrency int
}

type StoreConfig struct {
	Backend        string // "redis" or "memory"
	MemoryCapacity int
}

type LedgerConfig struct {
	Backend string // "redis", "postgres" or "memory"
}

type DatabaseConfig struct {
	DSN         string
	AutoMigrate bool
}

type WorkerConfig struct {
	Secret string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")
	readSecret("EXTRACTOR_API_KEY")
	readSecret("WORKER_SECRET")
	readSecret("DATABASE_DSN")
	readSecret("STORAGE_SIGNING_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("server.public_url", "PUBLIC_URL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("ratelimit.bulk_per_hour", "RATELIMIT_BULK_PER_HOUR")
	_ = viper.BindEnv("ratelimit.resolve_per_min", "RATELIMIT_RESOLVE_PER_MIN")
	_ = viper.BindEnv("ratelimit.status_per_min", "RATELIMIT_STATUS_PER_MIN")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.endpoint", "R2_ENDPOINT")
	_ = viper.BindEnv("storage.backend", "STORAGE_BACKEND")
	_ = viper.BindEnv("storage.local_dir", "STORAGE_LOCAL_DIR")
	_ = viper.BindEnv("storage.signing_secret", "STORAGE_SIGNING_SECRET")
	_ = viper.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = viper.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = viper.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("extractor.base_url", "EXTRACTOR_BASE_URL")
	_ = viper.BindEnv("extractor.api_key", "EXTRACTOR_API_KEY")
	_ = viper.BindEnv("extractor.timeout", "EXTRACTOR_TIMEOUT")
	_ = viper.BindEnv("bulk.max_urls", "BULK_MAX_URLS")
	_ = viper.BindEnv("bulk.dispatch_mode", "BULK_DISPATCH_MODE")
	_ = viper.BindEnv("bulk.item_timeout", "BULK_ITEM_TIMEOUT")
	_ = viper.BindEnv("bulk.execution_timeout", "BULK_EXECUTION_TIMEOUT")
	_ = viper.BindEnv("bulk.queued_timeout", "BULK_QUEUED_TIMEOUT")
	_ = viper.BindEnv("bulk.lease_ttl", "BULK_LEASE_TTL")
	_ = viper.BindEnv("bulk.link_ttl", "BULK_LINK_TTL")
	_ = viper.BindEnv("bulk.fetch_concurrency", "BULK_FETCH_CONCURRENCY")
	_ = viper.BindEnv("bulk.spool_dir", "BULK_SPOOL_DIR")
	_ = viper.BindEnv("bulk.reconcile_schedule", "BULK_RECONCILE_SCHEDULE")
	_ = viper.BindEnv("bulk.worker_concurrency", "BULK_WORKER_CONCURRENCY")
	_ = viper.BindEnv("store.backend", "STORE_BACKEND")
	_ = viper.BindEnv("store.memory_capacity", "STORE_MEMORY_CAPACITY")
	_ = viper.BindEnv("ledger.backend", "LEDGER_BACKEND")
	_ = viper.BindEnv("database.dsn", "DATABASE_DSN")
	_ = viper.BindEnv("database.auto_migrate", "DATABASE_AUTO_MIGRATE")
	_ = viper.BindEnv("worker.secret", "WORKER_SECRET")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.bulk_per_hour", 20)
	viper.SetDefault("ratelimit.resolve_per_min", 30)
	viper.SetDefault("ratelimit.status_per_min", 120)

	// Storage defaults
	viper.SetDefault("storage.backend", "local")
	viper.SetDefault("storage.local_dir", "./data/archives")

	// Extractor defaults
	viper.SetDefault("extractor.base_url", "http://localhost:8085")
	viper.SetDefault("extractor.timeout", 30)

	// Bulk pipeline defaults
	viper.SetDefault("bulk.max_urls", 100)
	viper.SetDefault("bulk.dispatch_mode", "queue")
	viper.SetDefault("bulk.item_timeout", "2m")
	viper.SetDefault("bulk.execution_timeout", "15m")
	viper.SetDefault("bulk.queued_timeout", "30m")
	viper.SetDefault("bulk.lease_ttl", "90s")
	viper.SetDefault("bulk.link_ttl", "24h")
	viper.SetDefault("bulk.fetch_concurrency", 1)
	viper.SetDefault("bulk.spool_dir", os.TempDir())
	viper.SetDefault("bulk.reconcile_schedule", "*/30 * * * * *")
	viper.SetDefault("bulk.worker_concurrency", 4)

	// Store and ledger defaults
	viper.SetDefault("store.backend", "redis")
	viper.SetDefault("store.memory_capacity", 1000)
	viper.SetDefault("ledger.backend", "redis")
	viper.SetDefault("database.auto_migrate", false)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
			PublicURL: viper.GetString("server.public_url"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			BulkPerHour:   viper.GetInt("ratelimit.bulk_per_hour"),
			ResolvePerMin: viper.GetInt("ratelimit.resolve_per_min"),
			StatusPerMin:  viper.GetInt("ratelimit.status_per_min"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			Endpoint:        viper.GetString("r2.endpoint"),
		},
		Storage: StorageConfig{
			Backend:       viper.GetString("storage.backend"),
			LocalDir:      viper.GetString("storage.local_dir"),
			SigningSecret: viper.GetString("storage.signing_secret"),
		},
		Zitadel: ZitadelConfig{
			Domain:   viper.GetString("zitadel.domain"),
			ClientID: viper.GetString("zitadel.client_id"),
			Issuer:   viper.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		Extractor: ExtractorConfig{
			BaseURL: viper.GetString("extractor.base_url"),
			APIKey:  viper.GetString("extractor.api_key"),
			Timeout: viper.GetInt("extractor.timeout"),
		},
		Bulk: BulkConfig{
			MaxURLs:           viper.GetInt("bulk.max_urls"),
			DispatchMode:      viper.GetString("bulk.dispatch_mode"),
			ItemTimeout:       viper.GetDuration("bulk.item_timeout"),
			ExecutionTimeout:  viper.GetDuration("bulk.execution_timeout"),
			QueuedTimeout:     viper.GetDuration("bulk.queued_timeout"),
			LeaseTTL:          viper.GetDuration("bulk.lease_ttl"),
			LinkTTL:           viper.GetDuration("bulk.link_ttl"),
			FetchConcurrency:  viper.GetInt("bulk.fetch_concurrency"),
			SpoolDir:          viper.GetString("bulk.spool_dir"),
			ReconcileSchedule: viper.GetString("bulk.reconcile_schedule"),
			WorkerConcurrency: viper.GetInt("bulk.worker_concurrency"),
		},
		Store: StoreConfig{
			Backend:        viper.GetString("store.backend"),
			MemoryCapacity: viper.GetInt("store.memory_capacity"),
		},
		Ledger: LedgerConfig{
			Backend: viper.GetString("ledger.backend"),
		},
		Database: DatabaseConfig{
			DSN:         viper.GetString("database.dsn"),
			AutoMigrate: viper.GetBool("database.auto_migrate"),
		},
		Worker: WorkerConfig{
			Secret: viper.GetString("worker.secret"),
		},
	}

	// Download links are signed with the JWT secret unless a dedicated one is set
	if cfg.Storage.SigningSecret == "" {
		cfg.Storage.SigningSecret = cfg.JWT.Secret
	}

	return cfg, nil
}
