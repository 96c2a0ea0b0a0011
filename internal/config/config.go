package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	// Storage selects the backing store: "mysql" or "memory".
	Storage   string
	MySQLDSN  string
	RedisAddr string

	KafkaBrokers  []string
	NotifyTopic   string
	NotifyGroup   string
	NotifyTimeout time.Duration

	JWTSecret string

	SMTPAddr string
	SMTPFrom string

	// MetricsAddr is where cmd/notifier serves /metrics.
	MetricsAddr string

	LogLevel    string
	WorkerCount int
	QueueSize   int

	// TraceSampleRatio is the fraction of new traces recorded, from 0 to 1.
	TraceSampleRatio float64
}

// devJWTSecret signs tokens when running against in-memory storage only.
const devJWTSecret = "dev-secret"

var ErrMissingJWTSecret = errors.New("JWT_SECRET is required unless STORAGE=memory")

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:      env("HTTP_ADDR", ":8080"),
		GRPCAddr:      env("GRPC_ADDR", ":50051"),
		Storage:       env("STORAGE", "mysql"),
		MySQLDSN:      env("MYSQL_DSN", "root:root@tcp(localhost:3306)/storefront?parseTime=true"),
		RedisAddr:     env("REDIS_ADDR", ""),
		KafkaBrokers:  splitCSV(env("KAFKA_BROKERS", "")),
		NotifyTopic:   env("NOTIFY_TOPIC", "order.confirmations"),
		NotifyGroup:   env("NOTIFY_GROUP", "storefront-notifier"),
		NotifyTimeout: envDuration("NOTIFY_TIMEOUT", 5*time.Second),
		JWTSecret:     env("JWT_SECRET", ""),
		SMTPAddr:      env("SMTP_ADDR", "localhost:1025"),
		SMTPFrom:      env("SMTP_FROM", "orders@storefront.local"),
		MetricsAddr:   env("METRICS_ADDR", ":9091"),
		LogLevel:      env("LOG_LEVEL", "info"),
		WorkerCount:   envInt("WORKER_COUNT", 10),
		QueueSize:     envInt("QUEUE_SIZE", 1000),

		TraceSampleRatio: envRatio("TRACE_SAMPLE_RATIO", 1),
	}
	if cfg.JWTSecret == "" && cfg.Storage == "memory" {
		cfg.JWTSecret = devJWTSecret
	}
	return cfg
}

// Validate reports settings the API server cannot start with.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envRatio(k string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(k), 64)
	if err != nil || f < 0 || f > 1 {
		return def
	}
	return f
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
