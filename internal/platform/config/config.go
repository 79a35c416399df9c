// Package config builds the service configuration from the environment so
// main stays lean.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "veristat/pkg/platform/strings"
)

// Config carries everything cmd/server needs to wire the service.
type Config struct {
	Addr        string
	Environment string

	// AnalyticsDSN is the pgx connection string for the telemetry store.
	AnalyticsDSN string
	// AuditDSN is the database/sql connection string for the audit store.
	AuditDSN string

	RedisURL     string
	KafkaBrokers []string
	AlertTopic   string

	// MasterKey seeds HKDF; the field-encryption and audit-integrity keys
	// are derived from it with distinct labels.
	MasterKey  string
	JWTSecret  string
	AdminToken string
	KThreshold int
	// Epsilon is spent per anonymization pass; EpsilonCap bounds the
	// total a series may ever spend, so it must leave room for more
	// than one pass.
	Epsilon      float64
	EpsilonCap   float64
	CacheTTL     time.Duration
	ShutdownWait time.Duration
}

const (
	defaultAddr         = ":8080"
	defaultKThreshold   = 5
	defaultEpsilon      = 0.1
	defaultEpsilonCap   = 1.0
	defaultCacheTTL     = 15 * time.Minute
	defaultShutdownWait = 10 * time.Second
)

// FromEnv reads VERISTAT_* variables and applies defaults. It errors on
// values that parse but make no sense rather than silently correcting them.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:         envOr("VERISTAT_ADDR", defaultAddr),
		Environment:  envOr("VERISTAT_ENV", "production"),
		AnalyticsDSN: os.Getenv("VERISTAT_ANALYTICS_DSN"),
		AuditDSN:     os.Getenv("VERISTAT_AUDIT_DSN"),
		RedisURL:     os.Getenv("VERISTAT_REDIS_URL"),
		AlertTopic:   os.Getenv("VERISTAT_ALERT_TOPIC"),
		MasterKey:    os.Getenv("VERISTAT_MASTER_KEY"),
		JWTSecret:    os.Getenv("VERISTAT_JWT_SECRET"),
		AdminToken:   os.Getenv("VERISTAT_ADMIN_TOKEN"),
		KThreshold:   defaultKThreshold,
		Epsilon:      defaultEpsilon,
		EpsilonCap:   defaultEpsilonCap,
		CacheTTL:     defaultCacheTTL,
		ShutdownWait: defaultShutdownWait,
	}

	if brokers := os.Getenv("VERISTAT_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = pstrings.DedupeAndTrim(strings.Split(brokers, ","))
	}

	if raw := os.Getenv("VERISTAT_K_THRESHOLD"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k < 2 {
			return Config{}, fmt.Errorf("invalid VERISTAT_K_THRESHOLD %q", raw)
		}
		cfg.KThreshold = k
	}
	if raw := os.Getenv("VERISTAT_EPSILON"); raw != "" {
		eps, err := strconv.ParseFloat(raw, 64)
		if err != nil || eps <= 0 {
			return Config{}, fmt.Errorf("invalid VERISTAT_EPSILON %q", raw)
		}
		cfg.Epsilon = eps
	}
	if raw := os.Getenv("VERISTAT_EPSILON_CAP"); raw != "" {
		eps, err := strconv.ParseFloat(raw, 64)
		if err != nil || eps <= 0 {
			return Config{}, fmt.Errorf("invalid VERISTAT_EPSILON_CAP %q", raw)
		}
		cfg.EpsilonCap = eps
	}
	if cfg.Epsilon >= cfg.EpsilonCap {
		return Config{}, fmt.Errorf(
			"VERISTAT_EPSILON (%g) must be below VERISTAT_EPSILON_CAP (%g)",
			cfg.Epsilon, cfg.EpsilonCap)
	}
	if raw := os.Getenv("VERISTAT_CACHE_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return Config{}, fmt.Errorf("invalid VERISTAT_CACHE_TTL %q", raw)
		}
		cfg.CacheTTL = ttl
	}

	if cfg.MasterKey == "" {
		return Config{}, fmt.Errorf("VERISTAT_MASTER_KEY is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
