package infra

import (
	"context"
	"errors"

	"portal-gateway/middleware/ratelimit/domain"
	"portal-gateway/store"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStats expõe as decisões do rate limit e as falhas do backend
// como métricas. Não usa Key como label (cardinalidade).
type PrometheusStats struct {
	decisions   *prometheus.CounterVec
	storeErrors *prometheus.CounterVec
}

func NewPrometheusStats(reg prometheus.Registerer) *PrometheusStats {
	s := &PrometheusStats{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Total rate limit decisions by outcome",
		}, []string{"outcome"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kvstore_errors_total",
			Help: "Total key/value backend failures by operation and kind",
		}, []string{"op", "kind"}),
	}
	if reg != nil {
		reg.MustRegister(s.decisions, s.storeErrors)
	}
	return s
}

func (s *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	s.decisions.WithLabelValues(ev.Outcome()).Inc()
	return nil
}

// ObserveStoreError tem a assinatura de store.WithObserver.
func (s *PrometheusStats) ObserveStoreError(op string, err error) {
	kind := "unknown"
	if errors.Is(err, store.ErrUnavailable) {
		kind = "unavailable"
	}
	s.storeErrors.WithLabelValues(op, kind).Inc()
}
