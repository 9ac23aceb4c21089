// Package application contém os casos de uso do rate limit (janela fixa) e do
// limite de concorrência.
//
// Depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(ctx, id, policy) retorna uma Decision
// (allow/deny + limit/remaining/reset).
package application
