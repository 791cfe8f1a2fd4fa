package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendSnapshot = "snapshot"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"

	SnapshotRedis  = "redis"
	SnapshotMemory = "memory"
)

type Config struct {
	HTTPPort        string
	GRPCPort        string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Backend selects where carts are persisted: snapshot, mongo or postgres.
	Backend string
	// SnapshotStore is redis or memory; only used by the snapshot backend.
	SnapshotStore string
	SnapshotKey   string

	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	MongoURI      string
	MongoDBName   string
	CartRetention time.Duration

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	CatalogURL     string
	CatalogTimeout time.Duration

	// Empty KafkaBrokers disables the checkout consumer, empty RabbitMQURL
	// the comment consumer.
	KafkaBrokers []string
	RabbitMQURL  string

	JWTSecret       string
	LoginURL        string
	SessionCapacity int
	SessionTTL      time.Duration
	DedupTTL        time.Duration
}

// Load reads the configuration from the environment, after loading a .env
// file from the working directory when there is one.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		GRPCPort:        getEnv("GRPC_PORT", "50052"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		Backend:       strings.ToLower(getEnv("CART_BACKEND", BackendSnapshot)),
		SnapshotStore: strings.ToLower(getEnv("SNAPSHOT_STORE", SnapshotRedis)),
		SnapshotKey:   getEnv("SNAPSHOT_KEY", "cart:snapshot"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		CacheTTL:      getDuration("CACHE_TTL", 15*time.Minute),

		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:   getEnv("MONGO_DB_NAME", "cartdb"),
		CartRetention: getDuration("CART_RETENTION", 0),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getInt("POSTGRES_PORT", 5432),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:       getEnv("POSTGRES_DB", "cartsync"),

		CatalogURL:     getEnv("CATALOG_URL", "http://localhost:8081"),
		CatalogTimeout: getDuration("CATALOG_TIMEOUT", 3*time.Second),

		KafkaBrokers: splitCSV(getEnv("KAFKA_BROKERS", "")),
		RabbitMQURL:  getEnv("RABBITMQ_URL", ""),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		LoginURL:        getEnv("LOGIN_URL", "/login"),
		SessionCapacity: getInt("SESSION_CAPACITY", 10000),
		SessionTTL:      getDuration("SESSION_TTL", 30*time.Minute),
		DedupTTL:        getDuration("CHECKOUT_DEDUP_TTL", 7*24*time.Hour),
	}
}

func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendSnapshot, BackendMongo, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("CART_BACKEND must be snapshot, mongo or postgres, got %q", c.Backend))
	}
	if c.Backend == BackendSnapshot {
		switch c.SnapshotStore {
		case SnapshotRedis:
			if c.RedisAddr == "" {
				errs = append(errs, errors.New("SNAPSHOT_STORE=redis needs REDIS_ADDR"))
			}
		case SnapshotMemory:
		default:
			errs = append(errs, fmt.Errorf("SNAPSHOT_STORE must be redis or memory, got %q", c.SnapshotStore))
		}
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.SessionCapacity <= 0 {
		errs = append(errs, errors.New("SESSION_CAPACITY must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); strings.TrimSpace(value) != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

func splitCSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
