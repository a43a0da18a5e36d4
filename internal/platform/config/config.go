package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ccms/pkg/domain"
	pstrings "ccms/pkg/platform/strings"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig
	Ledger    LedgerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

// LedgerConfig holds the identities fixed at ledger creation.
type LedgerConfig struct {
	Controller domain.AccountID
	Escrow     domain.AccountID
	Store      string
	TxTimeout  time.Duration
	// SeedAsset, when non-zero, is minted to SeedHolder at startup so the
	// asset ledger has supply to stake. An asset that already exists is kept.
	SeedAsset  domain.AssetID
	SeedHolder domain.AccountID
	SeedSupply uint64
}

// DatabaseConfig configures Postgres.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig configures the dedup store. An empty URL selects the in-memory
// fallback.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DedupTTL     time.Duration
}

// KafkaConfig configures the activity consumer. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers       []string
	ActivityTopic string
	EventsTopic   string
	Group         string
	Partitions    int32
	Replication   int16
}

// AuthConfig configures bearer-token validation.
type AuthConfig struct {
	JWTSigningKey string
	JWTIssuer     string
	TokenTTL      time.Duration
}

// RateLimitConfig bounds authenticated mutations per caller. A zero
// Mutations disables the limit.
type RateLimitConfig struct {
	Mutations int
	Window    time.Duration
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string
	Format string
}

const devSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds a Config from environment variables so main stays lean.
// Unset variables fall back to development defaults.
func FromEnv() (Config, error) {
	var errs []error

	cfg := Config{
		Server: ServerConfig{
			Addr:            getEnv("CCMS_ADDR", ":8080"),
			ReadTimeout:     durationEnv("CCMS_READ_TIMEOUT", 10*time.Second, &errs),
			WriteTimeout:    durationEnv("CCMS_WRITE_TIMEOUT", 10*time.Second, &errs),
			ShutdownTimeout: durationEnv("CCMS_SHUTDOWN_TIMEOUT", 10*time.Second, &errs),
			RequestTimeout:  durationEnv("CCMS_REQUEST_TIMEOUT", 30*time.Second, &errs),
		},
		Ledger: LedgerConfig{
			Controller: domain.AccountID(os.Getenv("CCMS_CONTROLLER")),
			Escrow:     domain.AccountID(os.Getenv("CCMS_ESCROW")),
			Store:      getEnv("CCMS_STORE", StoreMemory),
			TxTimeout:  durationEnv("CCMS_TX_TIMEOUT", 5*time.Second, &errs),
			SeedHolder: domain.AccountID(os.Getenv("CCMS_SEED_HOLDER")),
			SeedSupply: uintEnv("CCMS_SEED_SUPPLY", 0, &errs),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: int(uintEnv("DATABASE_MAX_OPEN_CONNS", 10, &errs)),
			MaxIdleConns: int(uintEnv("DATABASE_MAX_IDLE_CONNS", 5, &errs)),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     int(uintEnv("REDIS_POOL_SIZE", 10, &errs)),
			MinIdleConns: int(uintEnv("REDIS_MIN_IDLE_CONNS", 2, &errs)),
			DialTimeout:  durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second, &errs),
			ReadTimeout:  durationEnv("REDIS_READ_TIMEOUT", 3*time.Second, &errs),
			WriteTimeout: durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second, &errs),
			DedupTTL:     durationEnv("ACTIVITY_DEDUP_TTL", 24*time.Hour, &errs),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(os.Getenv("KAFKA_BROKERS")),
			ActivityTopic: getEnv("KAFKA_ACTIVITY_TOPIC", "ccms.activity"),
			EventsTopic:   getEnv("KAFKA_EVENTS_TOPIC", "ccms.ledger-events"),
			Group:         getEnv("KAFKA_GROUP", "ccms-reputation"),
			Partitions:    int32(uintEnv("KAFKA_PARTITIONS", 3, &errs)),
			Replication:   int16(uintEnv("KAFKA_REPLICATION", 1, &errs)),
		},
		Auth: AuthConfig{
			JWTSigningKey: getEnv("JWT_SIGNING_KEY", devSigningKey),
			JWTIssuer:     getEnv("JWT_ISSUER", "ccms"),
			TokenTTL:      durationEnv("JWT_TOKEN_TTL", time.Hour, &errs),
		},
		RateLimit: RateLimitConfig{
			Mutations: int(uintEnv("RATE_LIMIT_MUTATIONS", 60, &errs)),
			Window:    durationEnv("RATE_LIMIT_WINDOW", time.Minute, &errs),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if raw := os.Getenv("CCMS_SEED_ASSET"); raw != "" {
		asset, err := domain.ParseAssetID(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("CCMS_SEED_ASSET: %w", err))
		}
		cfg.Ledger.SeedAsset = asset
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if _, err := domain.ParseAccountID(string(c.Ledger.Controller)); err != nil {
		errs = append(errs, fmt.Errorf("CCMS_CONTROLLER: %w", err))
	}
	if _, err := domain.ParseAccountID(string(c.Ledger.Escrow)); err != nil {
		errs = append(errs, fmt.Errorf("CCMS_ESCROW: %w", err))
	}
	if c.Ledger.Controller != "" && c.Ledger.Controller == c.Ledger.Escrow {
		errs = append(errs, errors.New("CCMS_ESCROW must differ from CCMS_CONTROLLER"))
	}
	switch c.Ledger.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when CCMS_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("CCMS_STORE: unsupported store %q", c.Ledger.Store))
	}
	if c.Ledger.SeedAsset != 0 && c.Ledger.SeedHolder == "" {
		errs = append(errs, errors.New("CCMS_SEED_HOLDER is required with CCMS_SEED_ASSET"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Partitions <= 0 {
		errs = append(errs, errors.New("KAFKA_PARTITIONS must be positive"))
	}
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY is required"))
	}
	for name, d := range map[string]time.Duration{
		"CCMS_TX_TIMEOUT":      c.Ledger.TxTimeout,
		"CCMS_REQUEST_TIMEOUT": c.Server.RequestTimeout,
		"JWT_TOKEN_TTL":        c.Auth.TokenTTL,
		"RATE_LIMIT_WINDOW":    c.RateLimit.Window,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

// UsesDevSigningKey reports whether the insecure development key is active.
func (c Config) UsesDevSigningKey() bool {
	return c.Auth.JWTSigningKey == devSigningKey
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func uintEnv(key string, fallback uint64, errs *[]error) uint64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func splitList(raw string) []string {
	return pstrings.DedupeAndTrim(strings.Split(raw, ","))
}
