package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"portal-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// PipelineRunner é o que o RedisStatsStore precisa do backend.
// store.Client implementa; assim as credenciais ficam só no client.
type PipelineRunner interface {
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) error
}

type RedisStatsStore struct {
	backend PipelineRunner

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(backend PipelineRunner, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		backend: backend,
		prefix:  "ratelimit:stats",
		ttl:     24 * time.Hour,
		bucket:  "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record grava o evento num único pipeline. Campos: allowed, denied, degraded.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.backend == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := ev.Outcome()

	return s.backend.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

		if s.bucket == "minute" {
			bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
			pipe.HIncrBy(ctx, bucketKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, bucketKey, s.ttl)
			}
		}

		routeField := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
		if routeField != "" {
			pipe.HIncrBy(ctx, s.prefix+":route", routeField+":"+field, 1)
		}

		if s.trackKeys {
			if k := strings.TrimSpace(string(ev.Key)); k != "" {
				keyKey := s.prefix + ":key:" + k
				pipe.HIncrBy(ctx, keyKey, field, 1)
				if s.ttl > 0 {
					pipe.Expire(ctx, keyKey, s.ttl)
				}
			}
		}
		return nil
	})
}
