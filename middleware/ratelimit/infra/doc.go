// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - SemaphorePool: limite de concorrência com golang.org/x/sync/semaphore
//   - MemoryStatsStore, RedisStatsStore, PrometheusStats: estatísticas das decisões
//
// O CounterStore do rate limit é o próprio store.Client.
package infra
