package infra

import (
	"context"

	"portal-gateway/middleware/ratelimit/domain"

	"golang.org/x/sync/semaphore"
)

// SemaphorePool é um domain.SlotPool com capacidade fixa.
type SemaphorePool struct {
	sem *semaphore.Weighted
}

// NewSemaphorePool cria um pool com capacidade `max`.
func NewSemaphorePool(max int) *SemaphorePool {
	return &SemaphorePool{sem: semaphore.NewWeighted(int64(max))}
}

func (p *SemaphorePool) Acquire(ctx context.Context) (func(), error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, domain.ErrNoSlot
	}
	return func() { p.sem.Release(1) }, nil
}
