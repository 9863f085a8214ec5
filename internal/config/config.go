package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	DatabaseURL   string
	PublicBaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StateCacheTTL time.Duration

	SyncWorkers   int
	SyncQueueSize int
	SyncTimeout   time.Duration

	NoShowGrace time.Duration
	SessionTTL  time.Duration
	BcryptCost  int

	RateLimitPerMinute       int
	RateLimitBurst           int
	ClinicRateLimitPerMinute int
	ClinicRateLimitBurst     int

	RefreshSchedule      string
	SessionSweepSchedule string
	SeedPath             string

	B2KeyID          string
	B2ApplicationKey string
	B2Bucket         string
	B2AuthURL        string

	InsightProvider   string
	InsightWebhookURL string

	LogLevel       string
	LogFormat      string
	MetricsEnabled bool

	OTLPEndpoint    string
	OTLPInsecure    bool
	TraceSampleRate float64
}

// Load reads configuration from the environment. A .env file in the working
// directory, if present, fills variables that are not already set.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:          readString("PORT", "8080"),
		DatabaseURL:   os.Getenv("DB_DSN"),
		PublicBaseURL: strings.TrimRight(readString("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       readInt("REDIS_DB", 0),
		StateCacheTTL: readDurationSeconds("STATE_CACHE_TTL_SECONDS", 30),

		SyncWorkers:   readInt("SYNC_WORKERS", 4),
		SyncQueueSize: readInt("SYNC_QUEUE_SIZE", 256),
		SyncTimeout:   readDurationSeconds("SYNC_TIMEOUT_SECONDS", 5),

		NoShowGrace: readDurationSeconds("NO_SHOW_GRACE_SECONDS", 30),
		SessionTTL:  time.Duration(readInt("SESSION_TTL_HOURS", 8)) * time.Hour,
		BcryptCost:  readInt("BCRYPT_COST", 0),

		RateLimitPerMinute:       readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:           readInt("RATE_LIMIT_BURST", 30),
		ClinicRateLimitPerMinute: readInt("CLINIC_RATE_LIMIT_PER_MIN", 600),
		ClinicRateLimitBurst:     readInt("CLINIC_RATE_LIMIT_BURST", 120),

		RefreshSchedule:      readString("REFRESH_SCHEDULE", "@every 1m"),
		SessionSweepSchedule: readString("SESSION_SWEEP_SCHEDULE", "@every 15m"),
		SeedPath:             os.Getenv("SEED_PATH"),

		B2KeyID:          os.Getenv("B2_KEY_ID"),
		B2ApplicationKey: os.Getenv("B2_APPLICATION_KEY"),
		B2Bucket:         readString("B2_BUCKET", "omnitech-ads"),
		B2AuthURL:        os.Getenv("B2_AUTH_URL"),

		InsightProvider:   readString("INSIGHT_PROVIDER", "static"),
		InsightWebhookURL: os.Getenv("INSIGHT_WEBHOOK_URL"),

		LogLevel:       readString("LOG_LEVEL", "info"),
		LogFormat:      readString("LOG_FORMAT", "json"),
		MetricsEnabled: readBool("METRICS_ENABLED", true),

		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:    readBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSampleRate: readFloat("OTEL_TRACE_SAMPLE_RATIO", 1),
	}
}

func readString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
