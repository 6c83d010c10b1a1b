// Package application contém os casos de uso (regras de aplicação) para rate limit
// e limite de concorrência.
//
// Ele depende apenas do pacote domain (e de golang.org/x/time/rate para
// desafogar logs) e não conhece net/http.
// Ex.: Service.Decide(ctx, key, policy) retorna uma Decision (allow/deny,
// contagem, reset) escolhendo entre o contador distribuído e o fallback local.
package application
