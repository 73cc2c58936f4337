package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. FromEnv builds it from
// environment variables so main stays lean; unset values fall back to
// development defaults.
type Config struct {
	Addr     string
	LogLevel string

	PostgresDSN string
	Redis       RedisConfig

	// MasterKeyHex is the hex-encoded 256-bit envelope master key. Empty
	// means a derived development key is used.
	MasterKeyHex string

	KafkaBrokers     []string
	AlertTopic       string
	IndexBackend     string // "memory" or "remote"
	IndexServerCmd   string // command line for the remote ANN process
	IndexCallTimeout time.Duration

	Thresholds ThresholdConfig
	Replay     ReplayConfig
	Session    SessionConfig
}

// RedisConfig mirrors the knobs the go-redis client needs. An empty URL
// means Redis is not configured and memory-backed stores are used.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ThresholdConfig carries the similarity policy thresholds. Invariant
// low < review < block is validated by the consumers.
type ThresholdConfig struct {
	Block  float64
	Review float64
}

// ReplayConfig tunes the anti-replay recency window.
type ReplayConfig struct {
	Window     time.Duration
	ReuseLimit int
	RiskCutoff float64
}

// SessionConfig controls verification session token minting.
type SessionConfig struct {
	SigningKey string
	Issuer     string
	TTL        time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:     envOr("FACEGATE_ADDR", ":8080"),
		LogLevel: envOr("FACEGATE_LOG_LEVEL", "info"),

		PostgresDSN:  os.Getenv("FACEGATE_POSTGRES_DSN"),
		MasterKeyHex: os.Getenv("FACEGATE_MASTER_KEY"),
		Redis: RedisConfig{
			URL:          os.Getenv("FACEGATE_REDIS_URL"),
			PoolSize:     envInt("FACEGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("FACEGATE_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("FACEGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("FACEGATE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("FACEGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},

		KafkaBrokers:     splitNonEmpty(os.Getenv("FACEGATE_KAFKA_BROKERS")),
		AlertTopic:       envOr("FACEGATE_ALERT_TOPIC", "facegate.security.alerts"),
		IndexBackend:     envOr("FACEGATE_INDEX_BACKEND", "memory"),
		IndexServerCmd:   os.Getenv("FACEGATE_INDEX_SERVER_CMD"),
		IndexCallTimeout: envDuration("FACEGATE_INDEX_CALL_TIMEOUT", 30*time.Second),

		Thresholds: ThresholdConfig{
			Block:  envFloat("FACEGATE_BLOCK_THRESHOLD", 0.85),
			Review: envFloat("FACEGATE_REVIEW_THRESHOLD", 0.70),
		},
		Replay: ReplayConfig{
			Window:     envDuration("FACEGATE_REPLAY_WINDOW", time.Hour),
			ReuseLimit: envInt("FACEGATE_REPLAY_REUSE_LIMIT", 3),
			RiskCutoff: envFloat("FACEGATE_REPLAY_RISK_CUTOFF", 0.7),
		},
		Session: SessionConfig{
			// Development default; override in production.
			SigningKey: envOr("FACEGATE_SESSION_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:     envOr("FACEGATE_SESSION_ISSUER", "facegate"),
			TTL:        envDuration("FACEGATE_SESSION_TTL", 5*time.Minute),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
