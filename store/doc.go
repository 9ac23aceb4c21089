// Package store é o cliente do backend chave/valor remoto (Redis) compartilhado
// pelo cache da aplicação e pelo rate limit.
//
// Existe um único *Client por processo, construído explicitamente no startup e
// passado por referência. Somente ele conhece endereço e credenciais do backend.
//
// Toda operação:
//
//   - é limitada por um timeout (Config.Timeout);
//   - roda desacoplada do cancelamento do chamador, para que efeitos colaterais
//     já enviados (ex: INCR do contador) não sejam perdidos;
//   - retorna um erro explícito (ErrNotFound, ErrUnavailable, ErrUnknown).
//
// A política de falha (fail-soft no cache, fail-open no rate limit) é decidida
// por quem consome o Client, não aqui.
package store
