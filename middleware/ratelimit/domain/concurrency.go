package domain

import (
	"context"
	"errors"
)

// ErrNoSlot indica que não houve vaga dentro do prazo.
var ErrNoSlot = errors.New("no concurrency slot available")

// SlotPool representa um recurso com capacidade finita (ex: requisições em voo).
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar; nesse caso
// retorna ErrNoSlot. Ao adquirir, retorna uma função de release que deve ser
// chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), err error)
}
