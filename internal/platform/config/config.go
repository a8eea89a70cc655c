package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config is the process configuration, read once at startup.
type Config struct {
	Server   Server
	LogLevel string
	Store    StoreConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Identity IdentityConfig
	Refresh  RefreshConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
	// AdminJWTSecret signs admin tokens. Admin routes are not mounted when
	// it is empty.
	AdminJWTSecret string
}

type StoreConfig struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
}

// RedisConfig configures the refresh queue connection. An empty URL
// disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the change feed. No brokers disables it.
type KafkaConfig struct {
	Brokers           []string
	ClientID          string
	ChangesTopic      string
	Partitions        int32
	ReplicationFactor int16
}

// IdentityConfig is the write policy of the identity service.
type IdentityConfig struct {
	StalenessWindow time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration
	ChunkSize       int
}

// RefreshConfig drives the background refresh dispatcher.
type RefreshConfig struct {
	Interval       time.Duration
	Limit          int
	MinLookupCount int
	ClaimTTL       time.Duration
}

// FromEnv builds the configuration from environment variables so main stays
// lean. Malformed values are reported together.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}

	cfg := Config{
		Server: Server{
			Addr:           e.str("WALLETID_ADDR", ":8080"),
			AdminJWTSecret: e.str("ADMIN_JWT_SECRET", ""),
		},
		LogLevel: e.str("LOG_LEVEL", "info"),
		Store: StoreConfig{
			Driver:      strings.ToLower(e.str("STORE_DRIVER", DriverMemory)),
			DatabaseURL: e.str("DATABASE_URL", ""),
			SQLitePath:  e.str("SQLITE_PATH", "walletid.db"),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           e.list("KAFKA_BROKERS"),
			ClientID:          e.str("KAFKA_CLIENT_ID", "walletid"),
			ChangesTopic:      e.str("KAFKA_CHANGES_TOPIC", "identity.changes"),
			Partitions:        int32(e.int("KAFKA_CHANGES_PARTITIONS", 6)),
			ReplicationFactor: int16(e.int("KAFKA_CHANGES_REPLICATION_FACTOR", 1)),
		},
		Identity: IdentityConfig{
			StalenessWindow: e.duration("IDENTITY_STALENESS_WINDOW", 30*24*time.Hour),
			MaxRetries:      e.int("IDENTITY_MAX_RETRIES", 3),
			RetryBaseDelay:  e.duration("IDENTITY_RETRY_BASE_DELAY", time.Second),
			ChunkSize:       e.int("IDENTITY_CHUNK_SIZE", 100),
		},
		Refresh: RefreshConfig{
			Interval:       e.duration("REFRESH_INTERVAL", 10*time.Minute),
			Limit:          e.int("REFRESH_LIMIT", 100),
			MinLookupCount: e.int("REFRESH_MIN_LOOKUP_COUNT", 1),
			ClaimTTL:       e.duration("REFRESH_CLAIM_TTL", time.Hour),
		},
	}

	switch cfg.Store.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if cfg.Store.DatabaseURL == "" {
			e.errs = append(e.errs, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres"))
		}
	default:
		e.errs = append(e.errs, fmt.Errorf("STORE_DRIVER: unknown driver %q", cfg.Store.Driver))
	}

	if err := errors.Join(e.errs...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) int(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (e *env) list(key string) []string {
	var out []string
	for part := range strings.SplitSeq(e.str(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
