package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"portal-gateway/middleware/ratelimit/application"
	"portal-gateway/middleware/ratelimit/domain"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"

	ErrorCodeRateLimit = "RATE_LIMIT_EXCEEDED"
	MessageRateLimit   = "Too many requests, please try again later."
)

type KeyFunc func(r *http.Request) string

type Options struct {
	Store domain.CounterStore
	// Defaults vem da configuração do processo (RATE_LIMIT_MAX / RATE_LIMIT_WINDOW_MS).
	Defaults domain.Policy
	// Policy sobrescreve Defaults para as rotas atrás deste middleware.
	Policy *domain.Policy
	// Prefix das chaves dos contadores; vazio => "rate-limit:".
	Prefix string

	Stats              domain.StatsStore
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
}

type errorBody struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var rejectBody, _ = json.Marshal(errorBody{
	Error: errorDetail{Code: ErrorCodeRateLimit, Message: MessageRateLimit},
})

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		addr := strings.TrimSpace(r.RemoteAddr)
		host, _, err := net.SplitHostPort(addr)
		if err == nil && host != "" {
			return host
		}
		if addr != "" {
			return addr
		}
		return application.DefaultClientID
	}
}

// Middleware é o gate de rate limit: decide antes de qualquer regra de negócio.
//
// Permitida: anexa X-RateLimit-* e chama next. Bloqueada: 429 com corpo JSON
// padronizado e next não é chamado. Se o backend falhar a requisição passa
// (fail-open) sem os headers de limite.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}

	svc := application.NewService(opts.Store, opts.Defaults)
	if opts.Prefix != "" {
		svc.Prefix = opts.Prefix
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain.Key(opts.KeyFn(r))

			dec := svc.Decide(r.Context(), key, opts.Policy)
			at := time.Now()

			if !dec.Degraded {
				h := w.Header()
				h.Set(HeaderLimit, formatInt(dec.Limit))
				h.Set(HeaderRemaining, formatInt(dec.Remaining))
				h.Set(HeaderReset, formatInt64(dec.ResetAt.UnixMilli()))
			}

			if !dec.Allowed {
				writeRejection(w, dec)
			} else {
				next.ServeHTTP(w, r)
			}

			// registro só depois da resposta.
			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:      key,
					Allowed:  dec.Allowed,
					Degraded: dec.Degraded,
					Method:   r.Method,
					Path:     r.URL.Path,
					At:       at,
				})
			}
		})
	}
}

func writeRejection(w http.ResponseWriter, dec domain.Decision) {
	if dec.RetryAfter > 0 {
		w.Header().Set("Retry-After", formatInt64(ceilSeconds(dec.RetryAfter)))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write(rejectBody)
}
