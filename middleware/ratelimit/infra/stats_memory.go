package infra

import (
	"context"
	"sync"

	"portal-gateway/middleware/ratelimit/domain"

	"go.uber.org/atomic"
)

type Counters struct {
	Allowed  int64
	Denied   int64
	Degraded int64
}

func (c *Counters) add(ev domain.StatsEvent) {
	switch ev.Outcome() {
	case "degraded":
		c.Degraded++
	case "allowed":
		c.Allowed++
	default:
		c.Denied++
	}
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	allowed  atomic.Int64
	denied   atomic.Int64
	degraded atomic.Int64

	mu      sync.Mutex
	byRoute map[string]Counters
	byKey   map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: make(map[string]Counters),
		byKey:   make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	switch ev.Outcome() {
	case "degraded":
		s.degraded.Inc()
	case "allowed":
		s.allowed.Inc()
	default:
		s.denied.Inc()
	}

	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.byRoute[route]
	c.add(ev)
	s.byRoute[route] = c
	if s.trackKeys {
		k := s.byKey[string(ev.Key)]
		k.add(ev)
		s.byKey[string(ev.Key)] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	return Counters{
		Allowed:  s.allowed.Load(),
		Denied:   s.denied.Load(),
		Degraded: s.degraded.Load(),
	}
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}
