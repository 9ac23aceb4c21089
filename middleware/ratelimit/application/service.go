package application

import (
	"context"
	"log"
	"time"

	"portal-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

const (
	DefaultPrefix   = "rate-limit:"
	DefaultClientID = "127.0.0.1"
	DefaultMax      = 100
	DefaultWindow   = 15 * time.Minute
)

// Service concentra a regra do rate limit de janela fixa.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Não há lock nem contador em memória: toda a coordenação entre requisições
// concorrentes acontece no IncrementWindow atômico do backend.
type Service struct {
	Store    domain.CounterStore
	Defaults domain.Policy
	Prefix   string

	// Now existe para testes; nil => time.Now.
	Now func() time.Time

	failLog *rate.Sometimes
}

func NewService(store domain.CounterStore, defaults domain.Policy) *Service {
	return &Service{
		Store:    store,
		Defaults: defaults,
		Prefix:   DefaultPrefix,
		failLog:  &rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
}

// Key monta a chave do contador do cliente id.
func (s *Service) Key(id domain.Key) string {
	if id == "" {
		id = DefaultClientID
	}
	prefix := s.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + string(id)
}

func (s *Service) policy(override *domain.Policy) domain.Policy {
	p := s.Defaults
	if override != nil {
		if override.Max > 0 {
			p.Max = override.Max
		}
		if override.Window > 0 {
			p.Window = override.Window
		}
	}
	if p.Max <= 0 {
		p.Max = DefaultMax
	}
	if p.Window <= 0 {
		p.Window = DefaultWindow
	}
	return p
}

// Decide conta a requisição na janela atual do cliente e decide.
//
// O incremento vem antes da comparação: uma requisição negada também conta,
// então o contador pode passar de Max, mas nenhuma requisição além de Max é
// admitida na mesma janela, mesmo com requisições concorrentes.
//
// Se o backend falhar, a decisão é fail-open (Allowed + Degraded).
func (s *Service) Decide(ctx context.Context, id domain.Key, override *domain.Policy) domain.Decision {
	p := s.policy(override)
	if s.Store == nil {
		return domain.Decision{Allowed: true, Degraded: true, Limit: p.Max}
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	key := s.Key(id)
	count, ttl, err := s.Store.IncrementWindow(ctx, key, p.Window)
	if err != nil {
		s.logFailure(key, err)
		return domain.Decision{Allowed: true, Degraded: true, Limit: p.Max}
	}

	if ttl <= 0 || ttl > p.Window {
		ttl = p.Window
	}
	dec := domain.Decision{
		Limit:   p.Max,
		ResetAt: now().Add(ttl),
	}
	if count <= int64(p.Max) {
		dec.Allowed = true
		dec.Remaining = p.Max - int(count)
		return dec
	}
	dec.RetryAfter = ttl
	return dec
}

func (s *Service) logFailure(key string, err error) {
	f := func() { log.Printf("ratelimit: store failure for %q, failing open: %v", key, err) }
	if s.failLog == nil {
		f()
		return
	}
	s.failLog.Do(f)
}
