// Package domain define contratos e tipos de domínio para rate limit e concorrência:
// chave, política por categoria, decisão de admissão e os contratos CounterStore,
// StatsStore e SlotPool.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura.
package domain
