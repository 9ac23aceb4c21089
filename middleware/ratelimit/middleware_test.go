package ratelimit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"portal-gateway/middleware/ratelimit/domain"
	"portal-gateway/middleware/ratelimit/infra"
	"portal-gateway/store"

	"github.com/alicebob/miniredis/v2"
)

const wantRejectBody = `{"success":false,"error":{"code":"RATE_LIMIT_EXCEEDED","message":"Too many requests, please try again later."}}`

func newBackend(t *testing.T) (*store.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli, err := store.New(store.Config{Addr: mr.Addr(), Timeout: time.Second})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	return cli, mr
}

func okHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
}

func doRequest(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "http://example/vagas", nil)
	r.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware_FiveAllowedThenRejected(t *testing.T) {
	cli, _ := newBackend(t)
	stats := infra.NewMemoryStatsStore()

	calls := 0
	h := Middleware(Options{
		Store:    cli,
		Defaults: domain.Policy{Max: 5, Window: 60 * time.Second},
		Stats:    stats,
	})(okHandler(&calls))

	before := time.Now()
	for i, want := range []string{"4", "3", "2", "1", "0"} {
		w := doRequest(h, "1.2.3.4:5555")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
		if got := w.Header().Get(HeaderRemaining); got != want {
			t.Fatalf("request %d: expected remaining=%s, got %q", i+1, want, got)
		}
		if got := w.Header().Get(HeaderLimit); got != "5" {
			t.Fatalf("request %d: expected limit=5, got %q", i+1, got)
		}
		reset, err := strconv.ParseInt(w.Header().Get(HeaderReset), 10, 64)
		if err != nil {
			t.Fatalf("request %d: invalid reset header: %v", i+1, err)
		}
		if min := before.Add(59 * time.Second).UnixMilli(); reset < min {
			t.Fatalf("request %d: expected reset in epoch ms about 60s ahead, got %d", i+1, reset)
		}
	}

	w := doRequest(h, "1.2.3.4:5555")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("request 6: expected 429, got %d", w.Code)
	}
	if got := w.Body.String(); got != wantRejectBody {
		t.Fatalf("unexpected body %s", got)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected json content type, got %q", got)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After=60, got %q", got)
	}

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Fatalf("unexpected body %+v", body)
	}

	if calls != 5 {
		t.Fatalf("expected next handler to be called 5 times, got %d", calls)
	}
	if got := stats.Total(); got.Allowed != 5 || got.Denied != 1 {
		t.Fatalf("unexpected stats %+v", got)
	}
}

func TestMiddleware_WindowResets(t *testing.T) {
	cli, mr := newBackend(t)

	calls := 0
	h := Middleware(Options{
		Store:    cli,
		Defaults: domain.Policy{Max: 2, Window: 10 * time.Second},
	})(okHandler(&calls))

	doRequest(h, "10.0.0.1:1234")
	doRequest(h, "10.0.0.1:1234")
	if w := doRequest(h, "10.0.0.1:1234"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 inside window, got %d", w.Code)
	}

	mr.FastForward(10 * time.Second)

	w := doRequest(h, "10.0.0.1:1234")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after window, got %d", w.Code)
	}
	if got := w.Header().Get(HeaderRemaining); got != "1" {
		t.Fatalf("expected remaining reset to max-1, got %q", got)
	}
}

func TestMiddleware_FailsOpenWhenBackendDown(t *testing.T) {
	cli, err := store.New(store.Config{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer cli.Close()
	stats := infra.NewMemoryStatsStore()

	calls := 0
	h := Middleware(Options{
		Store:    cli,
		Defaults: domain.Policy{Max: 1, Window: time.Minute},
		Stats:    stats,
	})(okHandler(&calls))

	for i := 0; i < 5; i++ {
		w := doRequest(h, "10.0.0.1:1234")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 (fail-open), got %d", i+1, w.Code)
		}
		if got := w.Header().Get(HeaderRemaining); got != "" {
			t.Fatalf("expected no rate limit headers when degraded, got %q", got)
		}
	}
	if calls != 5 {
		t.Fatalf("expected every request forwarded, got %d", calls)
	}
	if got := stats.Total().Degraded; got != 5 {
		t.Fatalf("expected 5 degraded decisions, got %d", got)
	}
}

func TestMiddleware_RoutePolicyOverridesDefaults(t *testing.T) {
	cli, _ := newBackend(t)

	calls := 0
	h := Middleware(Options{
		Store:    cli,
		Defaults: domain.Policy{Max: 100, Window: 15 * time.Minute},
		Policy:   &domain.Policy{Max: 1},
	})(okHandler(&calls))

	if w := doRequest(h, "10.0.0.1:1234"); w.Header().Get(HeaderLimit) != "1" {
		t.Fatalf("expected limit=1, got %q", w.Header().Get(HeaderLimit))
	}
	if w := doRequest(h, "10.0.0.1:1234"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestMiddleware_KeyByHeader(t *testing.T) {
	cli, mr := newBackend(t)

	calls := 0
	h := Middleware(Options{
		Store:     cli,
		Defaults:  domain.Policy{Max: 1, Window: time.Minute},
		KeyHeader: "X-Api-Key",
	})(okHandler(&calls))

	// duas chaves diferentes => ambos devem passar (cada chave tem seu próprio contador)
	for _, k := range []string{"k1", "k2"} {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		r.Header.Set("X-Api-Key", k)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 for key %s, got %d", k, w.Code)
		}
	}

	if !mr.Exists("rate-limit:k1") || !mr.Exists("rate-limit:k2") {
		t.Fatalf("expected counters per key, got %v", mr.Keys())
	}
}

func TestMiddleware_CounterKeyFormat(t *testing.T) {
	cli, mr := newBackend(t)

	calls := 0
	h := Middleware(Options{Store: cli, Defaults: domain.Policy{Max: 10, Window: time.Minute}})(okHandler(&calls))
	doRequest(h, "1.2.3.4:5555")

	if v, err := mr.Get("rate-limit:1.2.3.4"); err != nil || v != "1" {
		t.Fatalf("expected rate-limit:1.2.3.4=1, got %q (%v)", v, err)
	}
	if ttl := mr.TTL("rate-limit:1.2.3.4"); ttl != time.Minute {
		t.Fatalf("expected counter ttl=1m, got %s", ttl)
	}
}

func TestMiddleware_NoStoreAllowsEverything(t *testing.T) {
	calls := 0
	h := Middleware(Options{})(okHandler(&calls))

	for i := 0; i < 3; i++ {
		if w := doRequest(h, "10.0.0.1:1234"); w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}
}

func TestCeilSeconds(t *testing.T) {
	cases := map[time.Duration]int64{
		0:                       0,
		time.Millisecond:        1,
		2500 * time.Millisecond: 3,
		time.Minute:             60,
	}
	for in, want := range cases {
		if got := ceilSeconds(in); got != want {
			t.Fatalf("ceilSeconds(%s): expected %d, got %d", in, want, got)
		}
	}
}

type orderStats struct {
	served *bool
	seen   []bool
}

func (s *orderStats) Record(_ context.Context, ev domain.StatsEvent) error {
	s.seen = append(s.seen, *s.served)
	return nil
}

func TestMiddleware_RecordsStatsAfterResponse(t *testing.T) {
	cli, _ := newBackend(t)

	served := false
	stats := &orderStats{served: &served}
	h := Middleware(Options{
		Store:    cli,
		Defaults: domain.Policy{Max: 1, Window: time.Minute},
		Stats:    stats,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served = true
		w.WriteHeader(http.StatusOK)
	}))

	if w := doRequest(h, "10.0.0.9:1"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	served = false
	if w := doRequest(h, "10.0.0.9:1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}

	if len(stats.seen) != 2 {
		t.Fatalf("expected 2 recorded events, got %d", len(stats.seen))
	}
	if !stats.seen[0] {
		t.Fatalf("expected allowed request recorded after next ran")
	}
	if stats.seen[1] {
		t.Fatalf("expected denied request not forwarded")
	}
}
