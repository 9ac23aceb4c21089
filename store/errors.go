package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound indica chave ausente. Não é falha do backend.
	ErrNotFound = errors.New("store: key not found")
	// ErrUnavailable cobre falhas de rede, timeout, pool esgotado e client fechado.
	ErrUnavailable = errors.New("store: backend unavailable")
	// ErrUnknown cobre qualquer outra resposta de erro do backend.
	ErrUnknown = errors.New("store: unknown backend error")
)

// Error descreve uma falha de uma operação no backend.
// Kind é sempre ErrUnavailable ou ErrUnknown.
type Error struct {
	Op   string
	Key  string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

// classify mapeia o erro cru do go-redis para a taxonomia do pacote.
// Respostas de erro do servidor (redis.Error) viram ErrUnknown; o resto
// é problema de transporte.
func classify(err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
		return ErrUnavailable
	}
	var rerr redis.Error
	if errors.As(err, &rerr) {
		return ErrUnknown
	}
	return ErrUnavailable
}
