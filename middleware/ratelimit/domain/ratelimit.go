package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"errors"
	"time"
)

// Key identifica o sujeito do rate limit: `{ip}` ou `{ip}:{digest-da-credencial}`.
type Key string

// ErrBackendUnavailable indica que o contador distribuído está inacessível
// (conexão recusada, timeout). Quem chama decide o fallback; essa falha nunca
// chega ao cliente como erro.
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// Decision é o resultado de uma admissão: permitido ou não, mais os números
// necessários para os headers X-RateLimit-*.
type Decision struct {
	Allowed bool
	// Count é a contagem observada na janela (inclui esta requisição quando permitida).
	Count int
	Limit int
	// Window é a duração da janela da política aplicada.
	Window time.Duration
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
	// ResetAt é o instante em que a entrada mais antiga ainda contada sai da janela.
	ResetAt time.Time
	// Fallback indica que a decisão veio do contador local (backend distribuído
	// indisponível naquele instante).
	Fallback bool
}

// Remaining devolve quantas requisições ainda cabem na janela. Nunca negativo.
func (d Decision) Remaining() int {
	if r := d.Limit - d.Count; r > 0 {
		return r
	}
	return 0
}

// CounterStore decide a admissão de uma requisição para uma chave sob uma
// política: janela deslizante por log de timestamps.
//
// Implementações precisam ser seguras sob invocação concorrente para a mesma
// chave. Requisição negada NÃO é registrada no log.
//
// O erro é reservado para falha de infraestrutura (ex: Redis fora do ar).
// Estourar a cota não é erro; é Decision{Allowed: false}.
type CounterStore interface {
	Allow(ctx context.Context, key Key, p Policy) (Decision, error)
}
