package application

import (
	"context"
	"log"
	"time"

	"github.com/JonissonGomes/fiap-prova-sub-fase-3-sub000/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// Service concentra a política de seleção de backend do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão:
//
//   - Primary (Redis) é preferido em toda chamada.
//   - Falhou? Uma retentativa imediata no Primary; falhou de novo, SÓ esta
//     chamada degrada para o Fallback local. A próxima chamada tenta o
//     Primary de novo (reconexão lazy, sem desligar o backend em definitivo).
//   - Se até o Fallback falhar, fail-open: defeito do limiter nunca pode
//     bloquear tráfego legítimo. Bloqueio só por cota estourada.
type Service struct {
	primary  domain.CounterStore
	fallback domain.CounterStore
	logger   *log.Logger

	// warn desafoga o log durante uma queda do Redis: um aviso por intervalo,
	// não um por requisição.
	warn rate.Sometimes
}

// NewService monta o serviço. primary pode ser nil (flag de desligar o
// backend distribuído); fallback é obrigatório.
func NewService(primary, fallback domain.CounterStore, logger *log.Logger) *Service {
	return &Service{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		warn:     rate.Sometimes{Interval: 30 * time.Second},
	}
}

// Decide executa check-and-increment da chave sob a política.
func (s *Service) Decide(ctx context.Context, key domain.Key, p domain.Policy) domain.Decision {
	if s.primary != nil {
		dec, err := s.primary.Allow(ctx, key, p)
		if err == nil {
			return dec
		}
		// uma retentativa antes de degradar a chamada
		dec, retryErr := s.primary.Allow(ctx, key, p)
		if retryErr == nil {
			return dec
		}
		s.warnf("ratelimit: backend distribuído indisponível, usando contador local: %v", retryErr)
	}

	dec, err := s.fallback.Allow(ctx, key, p)
	if err != nil {
		s.warnf("ratelimit: contador local falhou, liberando requisição (fail-open): %v", err)
		return domain.Decision{
			Allowed:  true,
			Limit:    p.Limit,
			Window:   p.Window,
			ResetAt:  time.Now().Add(p.Window),
			Fallback: true,
		}
	}
	if s.primary != nil {
		dec.Fallback = true
	}
	return dec
}

func (s *Service) warnf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.warn.Do(func() {
		s.logger.Printf(format, args...)
	})
}
