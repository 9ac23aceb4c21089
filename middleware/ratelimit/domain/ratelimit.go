package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"errors"
	"time"
)

// ErrLimitExceeded é a única falha visível para o cliente (HTTP 429).
var ErrLimitExceeded = errors.New("rate limit exceeded")

type Key string

// Policy é a configuração de uma janela fixa: no máximo Max requisições por Window.
type Policy struct {
	Max    int
	Window time.Duration
}

func (p Policy) Valid() bool { return p.Max > 0 && p.Window > 0 }

// CounterStore mantém os contadores das janelas no backend.
//
// IncrementWindow deve ser atômico: incrementa e, apenas quando o contador
// nasce (ausente -> 1), define a expiração em window. Retorna o valor
// pós-incremento e quanto falta para a janela expirar.
type CounterStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt é quando a janela atual expira no backend.
	ResetAt time.Time
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
	// Degraded indica que o backend falhou e a requisição passou por fail-open.
	// Nesse caso Limit/Remaining/ResetAt não têm significado.
	Degraded bool
}

// Err retorna ErrLimitExceeded quando a decisão é de bloqueio.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrLimitExceeded
}
