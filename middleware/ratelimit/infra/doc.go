// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisStore: contador distribuído (janela deslizante por log em ZSET + Lua)
//   - MemoryStore: fallback local do contador, por processo
//   - RedisStatsStore / MemoryStatsStore: estatísticas de decisão
//   - ChanPool: semáforo simples para limite de concorrência
package infra
