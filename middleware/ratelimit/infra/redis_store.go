package infra

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/JonissonGomes/fiap-prova-sub-fase-3-sub000/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore é o contador distribuído: uma ZSET por chave com o log de
// timestamps da janela deslizante, compartilhada por todas as instâncias.
//
// Os quatro passos (poda, contagem, registro, expiração) rodam em um único
// script Lua, então a decisão é atômica mesmo com chamadores concorrentes
// em instâncias diferentes. Requisição negada não é registrada.
//
// Scores em milissegundos: nanossegundo estoura a precisão de double do
// score da ZSET; o membro (uuid) garante unicidade dentro do mesmo ms.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	script *redis.Script

	now    func() time.Time
	member func() string
}

var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]
local ttl = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    return {0, count, oldest[2] or ARGV[1]}
end
redis.call('ZADD', key, now, member)
redis.call('EXPIRE', key, ttl)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {1, count + 1, oldest[2] or ARGV[1]}
`)

type RedisStoreOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

func withRedisNow(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) { s.now = now }
}

func NewRedisStore(rdb *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "ratelimit",
		script: slidingWindowScript,
		now:    time.Now,
		member: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping verifica a conexão (sonda de startup; falha só gera log, não derruba o serviço).
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}

// Allow implementa domain.CounterStore contra o Redis compartilhado.
//
// Qualquer falha de conexão/timeout retorna erro embrulhando
// ErrBackendUnavailable — nunca um allow silencioso.
func (s *RedisStore) Allow(ctx context.Context, key domain.Key, p domain.Policy) (domain.Decision, error) {
	now := s.now()
	windowMs := p.Window.Milliseconds()
	ttl := int64(p.Window/time.Second) + 1

	res, err := s.script.Run(ctx, s.rdb,
		[]string{s.redisKey(key)},
		now.UnixMilli(), windowMs, p.Limit, s.member(), ttl,
	).Result()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return domain.Decision{}, fmt.Errorf("%w: unexpected script reply %v", domain.ErrBackendUnavailable, res)
	}

	allowed, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	oldestMs := parseScore(vals[2])

	dec := domain.Decision{
		Allowed: allowed == 1,
		Count:   int(count),
		Limit:   p.Limit,
		Window:  p.Window,
		ResetAt: time.UnixMilli(oldestMs + windowMs),
	}
	if !dec.Allowed {
		dec.RetryAfter = p.Window
	}
	return dec, nil
}

func (s *RedisStore) redisKey(key domain.Key) string {
	return s.prefix + ":" + string(key)
}

// parseScore lê o score devolvido pelo script (bulk string, ex: "1712345678901").
func parseScore(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return int64(f)
	default:
		return 0
	}
}
