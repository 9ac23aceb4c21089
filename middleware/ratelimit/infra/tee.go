package infra

import (
	"context"
	"errors"

	"portal-gateway/middleware/ratelimit/domain"
)

type teeStats []domain.StatsStore

// TeeStats repassa cada evento para todos os stores não-nil.
// Um store com erro não impede os demais.
func TeeStats(stores ...domain.StatsStore) domain.StatsStore {
	out := make(teeStats, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (t teeStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range t {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
