// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (chave, política por categoria, decisão)
//   - application: casos de uso (seleção Redis/local com fallback, acquire/timeout) sem net/http
//   - infra: implementações concretas (ZSET+Lua no Redis, log em memória, semáforo)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai a chave do cliente (IP/header/XFF, + digest do Bearer se habilitado)
//  2. Classifica a rota em uma categoria (auth/listing/admin/health/general) e pega a cota
//  3. Chama a camada application para obter a decisão (janela deslizante)
//  4. Se bloqueado, responde 429 com corpo JSON e Retry-After; 503 para concorrência
//  5. Se permitido, chama o próximo handler (ex: reverse proxy) com os headers X-RateLimit-*
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como REDIS_ADDR, RATE_FORCE_LOCAL, RATE_AUTH_LIMIT, CONCURRENCY_MAX.
package ratelimit
