package main

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	listenAddr         string
	metricsAddr        string
	upstreamURL        string
	rateEnabled        bool
	rateMax            int
	rateWindow         time.Duration
	rateKeyHeader      string
	trustXFF           bool
	concurrencyMax     int
	concurrencyTimeout time.Duration

	redisURL      string
	redisAddr     string
	redisPassword string
	redisDB       int
	redisTimeout  time.Duration

	rateStatsEnabled   bool
	rateStatsPrefix    string
	rateStatsTTL       time.Duration
	rateStatsBucket    string
	rateStatsTrackKeys bool
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.metricsAddr = getenvDefault("METRICS_ADDR", ":9090")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")
	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.rateMax = getenvIntDefault("RATE_LIMIT_MAX", 100)
	cfg.rateWindow = time.Duration(getenvIntDefault("RATE_LIMIT_WINDOW_MS", 900000)) * time.Millisecond
	cfg.rateKeyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.redisURL = os.Getenv("REDIS_URL")
	cfg.redisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.redisTimeout = getenvDurationDefault("REDIS_TIMEOUT", 500*time.Millisecond)

	cfg.rateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats")
	cfg.rateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	if strings.TrimSpace(cfg.upstreamURL) == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	if cfg.rateMax <= 0 {
		return config{}, errors.New("RATE_LIMIT_MAX must be > 0")
	}
	if cfg.rateWindow <= 0 {
		return config{}, errors.New("RATE_LIMIT_WINDOW_MS must be > 0")
	}
	if cfg.redisTimeout <= 0 {
		return config{}, errors.New("REDIS_TIMEOUT must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
