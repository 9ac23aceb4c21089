package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"portal-gateway/middleware/ratelimit/domain"
)

// fakeCounters imita o backend: contador por chave com expiração definida só
// na criação, relógio controlado pelo teste.
type fakeCounters struct {
	mu      sync.Mutex
	now     time.Time
	counts  map[string]int64
	expires map[string]time.Time
	calls   int
}

func newFakeCounters(now time.Time) *fakeCounters {
	return &fakeCounters{
		now:     now,
		counts:  make(map[string]int64),
		expires: make(map[string]time.Time),
	}
}

func (f *fakeCounters) IncrementWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if exp, ok := f.expires[key]; ok && !f.now.Before(exp) {
		delete(f.counts, key)
		delete(f.expires, key)
	}
	f.counts[key]++
	if f.counts[key] == 1 {
		f.expires[key] = f.now.Add(window)
	}
	return f.counts[key], f.expires[key].Sub(f.now), nil
}

func (f *fakeCounters) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fakeCounters) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

type failingCounters struct{ err error }

func (f failingCounters) IncrementWindow(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, f.err
}

func newTestService(store domain.CounterStore, max int, window time.Duration, now func() time.Time) *Service {
	svc := NewService(store, domain.Policy{Max: max, Window: window})
	svc.Now = now
	return svc
}

func TestService_Decide_AllowsWhenNoStore(t *testing.T) {
	svc := &Service{}
	dec := svc.Decide(context.Background(), "k", nil)
	if !dec.Allowed || !dec.Degraded {
		t.Fatalf("expected degraded allow, got %+v", dec)
	}
}

func TestService_Decide_FirstNThenDeny(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	store := newFakeCounters(start)
	svc := newTestService(store, 5, time.Minute, store.clock)

	for i, want := range []int{4, 3, 2, 1, 0} {
		dec := svc.Decide(context.Background(), "1.2.3.4", nil)
		if !dec.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
		if dec.Remaining != want {
			t.Fatalf("request %d: expected remaining=%d, got %d", i+1, want, dec.Remaining)
		}
		if dec.Limit != 5 {
			t.Fatalf("request %d: expected limit=5, got %d", i+1, dec.Limit)
		}
		if !dec.ResetAt.Equal(start.Add(time.Minute)) {
			t.Fatalf("request %d: expected reset at window end, got %s", i+1, dec.ResetAt)
		}
	}

	dec := svc.Decide(context.Background(), "1.2.3.4", nil)
	if dec.Allowed {
		t.Fatalf("request 6: expected denied")
	}
	if !errors.Is(dec.Err(), domain.ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", dec.Err())
	}
	if dec.Remaining != 0 {
		t.Fatalf("expected remaining=0 when denied, got %d", dec.Remaining)
	}
	if dec.RetryAfter != time.Minute {
		t.Fatalf("expected RetryAfter=1m, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_ResetAtIsFixedForTheWindow(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	store := newFakeCounters(start)
	svc := newTestService(store, 10, time.Minute, store.clock)

	first := svc.Decide(context.Background(), "c", nil)
	store.advance(20 * time.Second)
	second := svc.Decide(context.Background(), "c", nil)

	if !first.ResetAt.Equal(second.ResetAt) {
		t.Fatalf("expected same window end, got %s and %s", first.ResetAt, second.ResetAt)
	}
}

func TestService_Decide_WindowResets(t *testing.T) {
	store := newFakeCounters(time.Unix(1_700_000_000, 0))
	svc := newTestService(store, 2, time.Minute, store.clock)
	ctx := context.Background()

	svc.Decide(ctx, "c", nil)
	svc.Decide(ctx, "c", nil)
	if svc.Decide(ctx, "c", nil).Allowed {
		t.Fatalf("expected denied inside the window")
	}

	store.advance(time.Minute)

	dec := svc.Decide(ctx, "c", nil)
	if !dec.Allowed {
		t.Fatalf("expected allowed after window elapsed")
	}
	if dec.Remaining != 1 {
		t.Fatalf("expected remaining=max-1, got %d", dec.Remaining)
	}
}

func TestService_Decide_DeniedRequestsStillCount(t *testing.T) {
	store := newFakeCounters(time.Unix(1_700_000_000, 0))
	svc := newTestService(store, 1, time.Minute, store.clock)
	ctx := context.Background()

	svc.Decide(ctx, "c", nil)
	svc.Decide(ctx, "c", nil)
	svc.Decide(ctx, "c", nil)

	if store.counts["rate-limit:c"] != 3 {
		t.Fatalf("expected counter incremented on denials too, got %d", store.counts["rate-limit:c"])
	}
	if store.calls != 3 {
		t.Fatalf("expected one store call per decision, got %d", store.calls)
	}
}

func TestService_Decide_ConcurrentClientNeverOvershoots(t *testing.T) {
	store := newFakeCounters(time.Unix(1_700_000_000, 0))
	svc := newTestService(store, 10, time.Minute, store.clock)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if svc.Decide(context.Background(), "c", nil).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 10 {
		t.Fatalf("expected exactly 10 allowed, got %d", allowed)
	}
}

func TestService_Decide_ClientsAreIndependent(t *testing.T) {
	store := newFakeCounters(time.Unix(1_700_000_000, 0))
	svc := newTestService(store, 1, time.Minute, store.clock)
	ctx := context.Background()

	if !svc.Decide(ctx, "a", nil).Allowed || !svc.Decide(ctx, "b", nil).Allowed {
		t.Fatalf("expected both clients allowed")
	}
}

func TestService_Decide_OverridePolicy(t *testing.T) {
	store := newFakeCounters(time.Unix(1_700_000_000, 0))
	svc := newTestService(store, 100, 15*time.Minute, store.clock)

	dec := svc.Decide(context.Background(), "c", &domain.Policy{Max: 3, Window: 10 * time.Second})
	if dec.Limit != 3 || dec.Remaining != 2 {
		t.Fatalf("expected override limit=3 remaining=2, got %+v", dec)
	}
	if got := dec.ResetAt.Sub(store.clock()); got != 10*time.Second {
		t.Fatalf("expected override window, got %s", got)
	}
}

func TestService_Decide_DefaultsWhenUnset(t *testing.T) {
	store := newFakeCounters(time.Unix(1_700_000_000, 0))
	svc := &Service{Store: store, Now: store.clock}

	dec := svc.Decide(context.Background(), "", nil)
	if dec.Limit != DefaultMax {
		t.Fatalf("expected default max, got %d", dec.Limit)
	}
	if _, ok := store.counts["rate-limit:127.0.0.1"]; !ok {
		t.Fatalf("expected empty id to fall back to 127.0.0.1, got %v", store.counts)
	}
}

func TestService_Decide_FailsOpen(t *testing.T) {
	svc := newTestService(failingCounters{err: errors.New("connection refused")}, 1, time.Minute, nil)

	for i := 0; i < 5; i++ {
		dec := svc.Decide(context.Background(), "c", nil)
		if !dec.Allowed {
			t.Fatalf("request %d: expected fail-open allow", i+1)
		}
		if !dec.Degraded {
			t.Fatalf("request %d: expected degraded decision", i+1)
		}
	}
}
