package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Method/Path são strings genéricas; cuidado com cardinalidade ao guardar
// Key/Path em Redis ou Prometheus.
type StatsEvent struct {
	Key      Key
	Allowed  bool
	Degraded bool

	Method string
	Path   string

	At time.Time
}

// Outcome resume o evento em um rótulo: "allowed", "denied" ou "degraded".
func (ev StatsEvent) Outcome() string {
	switch {
	case ev.Degraded:
		return "degraded"
	case ev.Allowed:
		return "allowed"
	default:
		return "denied"
	}
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
// O middleware trata erro como best-effort (não derruba a request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
