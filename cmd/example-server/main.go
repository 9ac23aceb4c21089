package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portal-gateway/cache"
	"portal-gateway/middleware/ratelimit"
	"portal-gateway/store"
)

func main() {
	// Exemplo: injetando o gate e o cache diretamente no seu webserver (sem proxy)
	kv, err := store.New(store.Config{
		URL:  os.Getenv("REDIS_URL"),
		Addr: getenvDefault("REDIS_ADDR", "localhost:6379"),
	})
	if err != nil {
		log.Fatalf("store config error: %v", err)
	}
	defer func() { _ = kv.Close() }()

	policy, err := readPolicy()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h := http.Handler(newMux(cache.New(kv)))
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Store:              kv,
		Defaults:           policy,
		KeyHeader:          "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor: true,
	})(h)

	addr := getenvDefault("LISTEN_ADDR", ":8081")

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("example server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
