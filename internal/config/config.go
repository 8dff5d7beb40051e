package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	ServerPort string

	DBDriver           string // "pgx" or "postgres" (lib/pq)
	DBHost             string
	DBPort             int
	DBUser             string
	DBPassword         string
	DBName             string
	DBSslMode          string
	DBMaxOpenConns     int
	DBStatementTimeout time.Duration
	DBTxTimeout        time.Duration

	LogLevel       string
	LogDevelopment bool

	AWSRegion           string
	SQSSnapshotQueueURL string

	AMQPURL           string
	AMQPSnapshotQueue string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionPrefix string

	JWTSecret     string
	JWTExpiration time.Duration

	WeatherBaseURL string
	WeatherAPIKey  string
	WeatherUnits   string
	WeatherLang    string

	CollectInterval time.Duration
	DatasetSink     string // "postgres" or "duckdb"
	DuckDBPath      string
}

// Load reads the configuration from the environment, after merging an
// optional .env file. Missing values fall back to development defaults; the
// keys that fell back are returned so the caller can log them once a logger
// exists.
func Load() (*Config, []string) {
	var defaulted []string
	getEnv := func(key, fallback string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		defaulted = append(defaulted, key)
		return fallback
	}

	_ = godotenv.Load()

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),

		DBDriver:           getEnv("DB_DRIVER", "pgx"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             atoi(getEnv("DB_PORT", "5432"), 5432),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", "postgres"),
		DBName:             getEnv("DB_NAME", "parktronic"),
		DBSslMode:          getEnv("DB_SSLMODE", "disable"),
		DBMaxOpenConns:     atoi(getEnv("DB_MAX_OPEN_CONNS", "25"), 25),
		DBStatementTimeout: parseDur(getEnv("DB_STATEMENT_TIMEOUT", "5s"), 5*time.Second),
		DBTxTimeout:        parseDur(getEnv("DB_TX_TIMEOUT", "10s"), 10*time.Second),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogDevelopment: parseBool(getEnv("LOG_DEVELOPMENT", "false")),

		AWSRegion:           getEnv("AWS_REGION", "eu-central-1"),
		SQSSnapshotQueueURL: getEnv("SQS_SNAPSHOT_QUEUE_URL", ""),

		AMQPURL:           getEnv("AMQP_URL", ""),
		AMQPSnapshotQueue: getEnv("AMQP_SNAPSHOT_QUEUE", "parking.snapshots"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       atoi(getEnv("REDIS_DB", "0"), 0),
		SessionPrefix: getEnv("SESSION_PREFIX", "session"),

		JWTSecret:     getEnv("JWT_SECRET", "change-me-in-production"),
		JWTExpiration: parseDur(getEnv("JWT_EXPIRATION", "24h"), 24*time.Hour),

		WeatherBaseURL: getEnv("WEATHER_BASE_URL", "https://api.openweathermap.org"),
		WeatherAPIKey:  getEnv("WEATHER_API_KEY", ""),
		WeatherUnits:   getEnv("WEATHER_UNITS", "metric"),
		WeatherLang:    getEnv("WEATHER_LANG", "ru"),

		CollectInterval: parseDur(getEnv("COLLECT_INTERVAL", "10m"), 10*time.Minute),
		DatasetSink:     strings.ToLower(getEnv("DATASET_SINK", "postgres")),
		DuckDBPath:      getEnv("DUCKDB_PATH", "prediction_info.duckdb"),
	}, defaulted
}

// LogDefaults reports the keys Load filled with defaults.
func LogDefaults(log *zap.Logger, keys []string) {
	if len(keys) == 0 {
		return
	}
	log.Debug("environment variables not set, using defaults", zap.Strings("keys", keys))
}

func atoi(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func parseDur(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
