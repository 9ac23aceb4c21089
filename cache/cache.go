// Package cache é a fachada de cache genérico da aplicação.
//
// Todas as operações são fail-soft: falha do backend vira log (amostrado) e um
// valor padrão seguro. Quem chama nunca recebe erro e não deve assumir que um
// Set seguido de Get sempre encontra o valor.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"portal-gateway/store"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const DefaultPrefix = "cache:"

// Backend é o subconjunto do store.Client usado pela fachada.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context, pattern string) error
	Exists(ctx context.Context, key string) (bool, error)
	Increment(ctx context.Context, key string) (int64, error)
	Decrement(ctx context.Context, key string) (int64, error)
}

type Cache struct {
	backend Backend
	prefix  string

	sf     singleflight.Group
	logMsg rate.Sometimes
}

type Option func(*Cache)

// WithPrefix troca o namespace das chaves. Clear só apaga chaves desse namespace.
// Prefixo vazio ou com caracteres de glob (*?[]\) é ignorado: o padrão do
// Clear passaria a casar chaves de fora do namespace.
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		if prefix == "" || strings.ContainsAny(prefix, `*?[]\`) {
			log.Printf("cache: invalid prefix %q, using %q", prefix, DefaultPrefix)
			return
		}
		c.prefix = prefix
	}
}

func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend: backend,
		prefix:  DefaultPrefix,
		logMsg:  rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) key(k string) string { return c.prefix + k }

func (c *Cache) soft(op, key string, err error) {
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return
	}
	c.logMsg.Do(func() {
		log.Printf("cache: %s %q failed, serving default: %v", op, key, err)
	})
}

// Get decodifica o valor em dst. Retorna false em miss, falha do backend ou
// valor que não decodifica.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	b, err := c.backend.Get(ctx, c.key(key))
	if err != nil {
		c.soft("get", key, err)
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		c.soft("decode", key, err)
		return false
	}
	return true
}

// Set grava v (JSON). ttl <= 0 => sem expiração. Retorna false se não gravou.
func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) bool {
	b, err := json.Marshal(v)
	if err != nil {
		c.soft("encode", key, err)
		return false
	}
	if err := c.backend.Set(ctx, c.key(key), b, ttl); err != nil {
		c.soft("set", key, err)
		return false
	}
	return true
}

func (c *Cache) Delete(ctx context.Context, keys ...string) {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	c.soft("delete", "", c.backend.Delete(ctx, full...))
}

// Clear apaga todas as chaves do namespace do cache.
func (c *Cache) Clear(ctx context.Context) {
	c.soft("clear", c.prefix+"*", c.backend.Clear(ctx, c.prefix+"*"))
}

func (c *Cache) Exists(ctx context.Context, key string) bool {
	ok, err := c.backend.Exists(ctx, c.key(key))
	if err != nil {
		c.soft("exists", key, err)
		return false
	}
	return ok
}

// Increment retorna o novo valor, ou 0 se o backend falhar.
// Atenção: 0 é indistinguível de um contador real em zero.
func (c *Cache) Increment(ctx context.Context, key string) int64 {
	n, err := c.backend.Increment(ctx, c.key(key))
	if err != nil {
		c.soft("increment", key, err)
		return 0
	}
	return n
}

// Decrement tem piso em zero; retorna 0 também em falha do backend.
func (c *Cache) Decrement(ctx context.Context, key string) int64 {
	n, err := c.backend.Decrement(ctx, c.key(key))
	if err != nil {
		c.soft("decrement", key, err)
		return 0
	}
	return n
}

// Remember é um read-through: em miss chama load uma única vez por chave,
// mesmo com várias goroutines pedindo a mesma chave ao mesmo tempo, e grava o
// resultado com ttl. Erro de load é retornado; erro do backend não.
//
// load roda sem o cancelamento de quem disparou a carga, porque o resultado é
// compartilhado. Cada chamador só desiste da espera pelo próprio ctx.
func (c *Cache) Remember(ctx context.Context, key string, ttl time.Duration, dst any, load func(context.Context) (any, error)) error {
	if c.Get(ctx, key, dst) {
		return nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(key, func() (any, error) {
		v, err := load(flightCtx)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if err := c.backend.Set(flightCtx, c.key(key), b, ttl); err != nil {
			c.soft("set", key, err)
		}
		return b, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dst)
	}
}

// Fetch é o Get tipado.
func Fetch[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T
	ok := c.Get(ctx, key, &v)
	return v, ok
}
