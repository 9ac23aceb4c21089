package application

import (
	"context"
	"time"

	"portal-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService limita requisições em voo, sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//   - Sem Pool, sempre libera.
//   - Se AcquireTimeout <= 0, espera até o ctx encerrar.
//   - Se AcquireTimeout > 0, espera no máximo esse tempo.
//
// Em caso de erro (domain.ErrNoSlot), nenhuma vaga foi adquirida.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}
	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}
