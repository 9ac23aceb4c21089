// Package ratelimit fornece adapters HTTP (net/http) para rate limit de janela
// fixa e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny, acquire/timeout) sem net/http
//   - infra: estatísticas e semáforo
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Os contadores vivem no backend chave/valor (pacote store), sob a chave
// "rate-limit:<cliente>", e expiram sozinhos ao fim da janela.
//
// Fluxo por requisição:
//
//  1. Extrai a chave do cliente (header/XFF/IP; "127.0.0.1" se não houver)
//  2. Chama a camada application para obter a decisão
//  3. Se bloqueado, responde 429 com {"success":false,"error":{"code":"RATE_LIMIT_EXCEEDED",...}}
//  4. Se permitido, anexa X-RateLimit-Limit/Remaining/Reset e chama o próximo handler
//
// Com Options.Stats, o registro da decisão acontece depois de a resposta ser
// escrita (ou do next retornar). Um RedisStatsStore ainda ocupa a goroutine do
// request por até REDIS_TIMEOUT nesse ponto, mas o cliente já recebeu a resposta.
//
// Se o backend estiver fora, tudo passa (fail-open) e os headers de limite
// não são enviados.
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como RATE_LIMIT_MAX, RATE_LIMIT_WINDOW_MS, CONCURRENCY_MAX e CONCURRENCY_TIMEOUT.
package ratelimit
