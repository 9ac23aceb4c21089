package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"portal-gateway/middleware/ratelimit"
	"portal-gateway/middleware/ratelimit/domain"
	"portal-gateway/middleware/ratelimit/infra"
	"portal-gateway/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		log.Fatalf("invalid UPSTREAM_URL: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("proxy error: %v", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promStats := infra.NewPrometheusStats(reg)

	// único client do backend no processo; cache e rate limit compartilham.
	kv, err := store.New(store.Config{
		URL:      cfg.redisURL,
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
		Timeout:  cfg.redisTimeout,
	}, store.WithObserver(promStats.ObserveStoreError))
	if err != nil {
		log.Fatalf("store config error: %v", err)
	}
	defer func() { _ = kv.Close() }()

	// backend fora no startup não impede o gateway de subir (fail-open).
	if err := kv.Ping(context.Background()); err != nil {
		log.Printf("store ping failed, rate limit will fail open until it recovers: %v", err)
	}

	var statsStore domain.StatsStore = promStats
	if cfg.rateStatsEnabled {
		statsStore = infra.TeeStats(promStats, infra.NewRedisStatsStore(
			kv,
			infra.WithStatsPrefix(cfg.rateStatsPrefix),
			infra.WithStatsTTL(cfg.rateStatsTTL),
			infra.WithStatsBucket(cfg.rateStatsBucket),
			infra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
		))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h := http.Handler(proxy)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
	})(h)
	if cfg.rateEnabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Store:              kv,
			Defaults:           domain.Policy{Max: cfg.rateMax, Window: cfg.rateWindow},
			Stats:              statsStore,
			KeyHeader:          cfg.rateKeyHeader,
			TrustXForwardedFor: cfg.trustXFF,
		})(h)
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	servers := []*http.Server{srv}

	if cfg.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", healthHandler(kv))
		msrv := &http.Server{
			Addr:              cfg.metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		servers = append(servers, msrv)
		go func() {
			if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server error: %v", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, s := range servers {
			_ = s.Shutdown(shutdownCtx)
		}
	}()

	log.Printf("gateway listening on %s -> %s", cfg.listenAddr, target)
	log.Printf("rate: enabled=%v max=%d window=%s keyHeader=%q trustXFF=%v", cfg.rateEnabled, cfg.rateMax, cfg.rateWindow, cfg.rateKeyHeader, cfg.trustXFF)
	log.Printf("store: url=%v addr=%q db=%d timeout=%s", cfg.redisURL != "", cfg.redisAddr, cfg.redisDB, cfg.redisTimeout)
	log.Printf("rate-stats: redis=%v bucket=%q ttl=%s trackKeys=%v", cfg.rateStatsEnabled, cfg.rateStatsBucket, cfg.rateStatsTTL, cfg.rateStatsTrackKeys)
	log.Printf("concurrency: max=%d acquireTimeout=%s", cfg.concurrencyMax, cfg.concurrencyTimeout)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
	Stats() store.Stats
}

// healthHandler responde 200 mesmo com o backend fora: o gateway continua
// servindo em fail-open. O campo store indica o estado do backend.
func healthHandler(kv pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if err := kv.Ping(r.Context()); err != nil {
			status = "unavailable"
		}
		st := kv.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":         "ok",
			"store":          status,
			"store_calls":    st.Calls,
			"store_failures": st.Failures,
		})
	}
}
