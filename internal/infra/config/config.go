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
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string
	HTTPAddr string
	LogLevel string
	Store    string

	MongoURI string
	MongoDB  string

	KafkaBrokers       []string
	KafkaTopicPrefix   string
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration
	IdempotencyTTL     time.Duration
	OutboxRetention    time.Duration
	OutboxPurgeCron    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	ScyllaHosts       []string
	ScyllaKeyspace    string
	ScyllaConsistency string
	ScyllaTimeout     time.Duration

	S3Endpoint       string
	S3PublicEndpoint string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	S3UseSSL         bool

	JWTSecret string

	GatewayURL             string
	GatewayTerminalKey     string
	GatewayPassword        string
	GatewayNotificationURL string
	GatewaySuccessURL      string
	GatewayFailURL         string

	PublicBaseURL string

	SendgridAPIKey string
	SendgridFrom   string

	FirebaseProjectID   string
	FirebaseCredentials string

	GeminiAPIKey        string
	GeminiModel         string
	TranslationCacheTTL time.Duration

	ReconcileSchedule string
	ReconcileAfter    time.Duration
	RefundWindow      time.Duration

	NewRelicLicenseKey string
	FixturesPath       string
}

// Load parses configuration from the current environment. An optional .env
// file in the working directory is applied first without overriding
// variables that are already set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Config{
		Env:                    getEnv("APP_ENV", "dev"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		LogLevel:               strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Store:                  strings.ToLower(getEnv("STORE", StoreMemory)),
		MongoURI:               os.Getenv("MONGO_URI"),
		MongoDB:                getEnv("MONGO_DB", "rentguru"),
		KafkaBrokers:           parseListEnv("KAFKA_BROKERS"),
		KafkaTopicPrefix:       getEnv("KAFKA_TOPIC_PREFIX", ""),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		ScyllaHosts:            parseListEnv("SCYLLA_HOSTS"),
		ScyllaKeyspace:         getEnv("SCYLLA_KEYSPACE", "rentguru_chat"),
		ScyllaConsistency:      getEnv("SCYLLA_CONSISTENCY", "quorum"),
		S3Endpoint:             os.Getenv("S3_ENDPOINT"),
		S3PublicEndpoint:       getEnv("S3_PUBLIC_ENDPOINT", ""),
		S3AccessKey:            getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:            getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:               getEnv("S3_BUCKET", "rentguru-attachments"),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		GatewayURL:             getEnv("GATEWAY_URL", "https://securepay.tinkoff.ru/v2"),
		GatewayTerminalKey:     os.Getenv("GATEWAY_TERMINAL_KEY"),
		GatewayPassword:        os.Getenv("GATEWAY_PASSWORD"),
		GatewayNotificationURL: os.Getenv("GATEWAY_NOTIFICATION_URL"),
		GatewaySuccessURL:      os.Getenv("GATEWAY_SUCCESS_URL"),
		GatewayFailURL:         os.Getenv("GATEWAY_FAIL_URL"),
		PublicBaseURL:          getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		SendgridAPIKey:         os.Getenv("SENDGRID_API_KEY"),
		SendgridFrom:           getEnv("SENDGRID_FROM", "noreply@rentguru.local"),
		FirebaseProjectID:      os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseCredentials:    os.Getenv("FIREBASE_CREDENTIALS"),
		GeminiAPIKey:           os.Getenv("GEMINI_API_KEY"),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		ReconcileSchedule:      getEnv("RECONCILE_SCHEDULE", "0 */5 * * * *"),
		OutboxPurgeCron:        getEnv("OUTBOX_PURGE_SCHEDULE", "0 30 3 * * *"),
		NewRelicLicenseKey:     os.Getenv("NEW_RELIC_LICENSE_KEY"),
		FixturesPath:           os.Getenv("FIXTURES_PATH"),
	}
	if cfg.S3PublicEndpoint == "" {
		cfg.S3PublicEndpoint = cfg.S3Endpoint
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"OUTBOX_POLL_INTERVAL", 500 * time.Millisecond, &cfg.OutboxPollInterval},
		{"IDEMP_TTL", 168 * time.Hour, &cfg.IdempotencyTTL},
		{"OUTBOX_RETENTION", 72 * time.Hour, &cfg.OutboxRetention},
		{"LOCK_TTL", 10 * time.Second, &cfg.LockTTL},
		{"SCYLLA_TIMEOUT", 5 * time.Second, &cfg.ScyllaTimeout},
		{"TRANSLATION_CACHE_TTL", 24 * time.Hour, &cfg.TranslationCacheTTL},
		{"RECONCILE_AFTER", 15 * time.Minute, &cfg.ReconcileAfter},
		{"REFUND_WINDOW", 48 * time.Hour, &cfg.RefundWindow},
	}
	for _, d := range durations {
		v, err := parseDurationEnv(d.key, d.def)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}

	for _, raw := range strings.Split(getEnv("RETRY_BACKOFF", "1s,5s,30s"), ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}

	useSSL, err := parseBoolEnv("S3_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg.S3UseSSL = useSSL

	if cfg.RedisDB, err = parseIntEnv("REDIS_DB", 0); err != nil {
		return Config{}, err
	}

	switch cfg.Store {
	case StoreMemory:
	case StoreMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required when STORE=mongo")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORE %q: want memory or mongo", cfg.Store)
	}
	if cfg.JWTSecret == "" && cfg.Env != "dev" && cfg.Env != "local" {
		return Config{}, fmt.Errorf("JWT_SECRET is required outside dev")
	}
	return cfg, nil
}

// GatewayEnabled reports whether the card gateway credentials are configured.
func (c Config) GatewayEnabled() bool {
	return c.GatewayTerminalKey != "" && c.GatewayPassword != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseListEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return n, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}
