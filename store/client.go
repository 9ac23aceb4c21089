package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"
)

const (
	DefaultTimeout = 500 * time.Millisecond
	scanBatch      = 200
)

// Config é a configuração de conexão do backend.
// Se URL estiver preenchida (redis://...), ela tem precedência sobre Addr/Password/DB.
// Addr aceita uma lista separada por vírgula; mais de um endereço => cluster.
type Config struct {
	URL      string
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

type Option func(*Client)

// WithObserver registra um callback chamado a cada falha do backend
// (não é chamado para ErrNotFound).
func WithObserver(fn func(op string, err error)) Option {
	return func(c *Client) { c.observer = fn }
}

// Client é o handle único do processo para o backend.
// É seguro para uso concorrente e somente leitura após a construção.
type Client struct {
	rdb      redis.UniversalClient
	timeout  time.Duration
	observer func(op string, err error)

	calls    atomic.Int64
	failures atomic.Int64
}

// Stats é um retrato dos contadores de chamadas do Client.
type Stats struct {
	Calls    int64
	Failures int64
}

func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	var rdb redis.UniversalClient
	switch {
	case strings.TrimSpace(cfg.URL) != "":
		o, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, &Error{Op: "config", Kind: ErrUnknown, Err: err}
		}
		o.ReadTimeout = cfg.Timeout
		o.WriteTimeout = cfg.Timeout
		o.ContextTimeoutEnabled = true
		o.MaxRetries = 1
		rdb = redis.NewClient(o)
	case strings.TrimSpace(cfg.Addr) != "":
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:                 splitAddrs(cfg.Addr),
			Password:              cfg.Password,
			DB:                    cfg.DB,
			ReadTimeout:           cfg.Timeout,
			WriteTimeout:          cfg.Timeout,
			ContextTimeoutEnabled: true,
			MaxRetries:            1,
		})
	default:
		return nil, &Error{Op: "config", Kind: ErrUnknown, Err: errors.New("redis address or url is required")}
	}

	c := &Client{rdb: rdb, timeout: cfg.Timeout}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func splitAddrs(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Client) Stats() Stats {
	return Stats{Calls: c.calls.Load(), Failures: c.failures.Load()}
}

func (c *Client) Close() error { return c.rdb.Close() }

// opCtx cria o contexto de uma chamada: herda valores do chamador mas não o
// cancelamento, e é sempre limitado pelo timeout do Client.
func (c *Client) opCtx(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	c.calls.Inc()
	return context.WithTimeout(context.WithoutCancel(parent), d)
}

func (c *Client) fail(op, key string, err error) error {
	kind := classify(err)
	if kind == ErrNotFound {
		return ErrNotFound
	}
	return c.failAs(op, key, kind, err)
}

func (c *Client) failAs(op, key string, kind, err error) error {
	c.failures.Inc()
	e := &Error{Op: op, Key: key, Kind: kind, Err: err}
	if c.observer != nil {
		c.observer(op, e)
	}
	return e
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.opCtx(ctx, c.timeout)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return c.fail("ping", "", err)
	}
	return nil
}

// Get retorna ErrNotFound quando a chave não existe (ou já expirou no backend).
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := c.opCtx(ctx, c.timeout)
	defer cancel()
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, c.fail("get", key, err)
	}
	return b, nil
}

// Set grava value. ttl <= 0 significa sem expiração.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	ctx, cancel := c.opCtx(ctx, c.timeout)
	defer cancel()
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return c.fail("set", key, err)
	}
	return nil
}

// Delete remove as chaves. Chave ausente não é erro.
// Cada chave vai num comando próprio (pipeline) para funcionar em cluster.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := c.opCtx(ctx, c.timeout)
	defer cancel()
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			p.Del(ctx, k)
		}
		return nil
	})
	if err != nil {
		return c.fail("del", strings.Join(keys, ","), err)
	}
	return nil
}

// Clear remove todas as chaves que casam com pattern (SCAN + DEL).
// Em cluster, varre cada master.
func (c *Client) Clear(ctx context.Context, pattern string) error {
	ctx, cancel := c.opCtx(ctx, 10*c.timeout)
	defer cancel()

	var err error
	if cc, ok := c.rdb.(*redis.ClusterClient); ok {
		err = cc.ForEachMaster(ctx, func(ctx context.Context, n *redis.Client) error {
			return scanDelete(ctx, n, pattern)
		})
	} else {
		err = scanDelete(ctx, c.rdb, pattern)
	}
	if err != nil {
		return c.fail("clear", pattern, err)
	}
	return nil
}

// scanDelete coleta todas as chaves do SCAN antes de apagar qualquer uma:
// apagar no meio da varredura pode pular chaves em backends cujo cursor é um
// deslocamento na lista de chaves.
func scanDelete(ctx context.Context, rdb redis.Cmdable, pattern string) error {
	seen := make(map[string]struct{})
	var keys []string
	var cursor uint64
	for {
		batch, next, err := rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return err
		}
		for _, k := range batch {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	for len(keys) > 0 {
		n := min(len(keys), scanBatch)
		chunk := keys[:n]
		keys = keys[n:]
		_, err := rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
			for _, k := range chunk {
				p.Del(ctx, k)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := c.opCtx(ctx, c.timeout)
	defer cancel()
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, c.fail("exists", key, err)
	}
	return n > 0, nil
}

// Increment é um INCR atômico (uma ida ao backend). Chave ausente => 1.
func (c *Client) Increment(ctx context.Context, key string) (int64, error) {
	ctx, cancel := c.opCtx(ctx, c.timeout)
	defer cancel()
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, c.fail("incr", key, err)
	}
	return n, nil
}

// Decrement decrementa com piso em zero. Chave ausente retorna 0 e não é criada;
// o TTL da chave é preservado.
func (c *Client) Decrement(ctx context.Context, key string) (int64, error) {
	ctx, cancel := c.opCtx(ctx, c.timeout)
	defer cancel()
	n, err := decrementFloorScript.Run(ctx, c.rdb, []string{key}).Int64()
	if err != nil {
		return 0, c.fail("decr", key, err)
	}
	return n, nil
}

// IncrementWindow incrementa o contador de uma janela fixa.
//
// A expiração (window) é definida apenas na transição ausente -> 1 e nunca é
// estendida por incrementos seguintes. Retorna o valor pós-incremento e o TTL
// restante da janela segundo o backend.
func (c *Client) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	ms := window.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	ctx, cancel := c.opCtx(ctx, c.timeout)
	defer cancel()
	vals, err := incrementWindowScript.Run(ctx, c.rdb, []string{key}, ms).Int64Slice()
	if err != nil {
		return 0, 0, c.fail("incr_window", key, err)
	}
	if len(vals) != 2 {
		return 0, 0, c.failAs("incr_window", key, ErrUnknown, errors.New("unexpected script reply"))
	}
	return vals[0], time.Duration(vals[1]) * time.Millisecond, nil
}

// Pipelined executa fn num pipeline. Usado para gravações em lote
// (estatísticas) sem expor o client do backend.
func (c *Client) Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) error {
	ctx, cancel := c.opCtx(ctx, c.timeout)
	defer cancel()
	if _, err := c.rdb.Pipelined(ctx, fn); err != nil {
		return c.fail("pipeline", "", err)
	}
	return nil
}
