package main

import (
	"errors"
	"os"
	"strconv"
	"time"

	"portal-gateway/middleware/ratelimit/domain"
)

// readPolicy lê a política padrão do gate das mesmas variáveis do gateway.
func readPolicy() (domain.Policy, error) {
	p := domain.Policy{
		Max:    getenvIntDefault("RATE_LIMIT_MAX", 100),
		Window: time.Duration(getenvIntDefault("RATE_LIMIT_WINDOW_MS", 900000)) * time.Millisecond,
	}
	if !p.Valid() {
		return domain.Policy{}, errors.New("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW_MS must be > 0")
	}
	return p, nil
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
