package infra

import (
	"context"
	"sync"
	"time"

	"github.com/JonissonGomes/fiap-prova-sub-fase-3-sub000/middleware/ratelimit/domain"
)

// MemoryStore é o fallback local do contador: janela deslizante por log de
// timestamps, guardada em memória do processo, com limpeza lazy + periódica.
//
// Sem consistência entre instâncias: com N réplicas, cada uma admite até a
// cota cheia de forma independente. Trade-off aceito de disponibilidade
// quando o Redis está fora.
type MemoryStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*memoryEntry
	idleTTL      time.Duration
	cleanupEvery time.Duration

	// now é injetável em teste; fora de teste é time.Now.
	now func() time.Time
}

type memoryEntry struct {
	// stamps ordenados do mais antigo para o mais novo, todos dentro da janela
	// (podados no próximo acesso à chave).
	stamps   []time.Time
	lastSeen time.Time
}

type MemoryStoreOption func(*MemoryStore)

func WithIdleTTL(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.cleanupEvery = d }
}

func withNow(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries:      make(map[domain.Key]*memoryEntry),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// Allow implementa domain.CounterStore: poda o log da chave, compara com o
// limite e só registra o timestamp quando a requisição é admitida.
// Nunca retorna erro: memória local não tem falha de infraestrutura.
func (s *MemoryStore) Allow(_ context.Context, key domain.Key, p domain.Policy) (domain.Decision, error) {
	now := s.now()
	cutoff := now.Add(-p.Window)

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		ent = &memoryEntry{}
		s.entries[key] = ent
	}
	ent.lastSeen = now

	// poda lazy: remove o que saiu da janela
	keep := 0
	for keep < len(ent.stamps) && !ent.stamps[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		ent.stamps = append(ent.stamps[:0], ent.stamps[keep:]...)
	}

	dec := domain.Decision{
		Limit:  p.Limit,
		Window: p.Window,
	}

	if len(ent.stamps) >= p.Limit {
		dec.Allowed = false
		dec.Count = len(ent.stamps)
		dec.RetryAfter = p.Window
		dec.ResetAt = now.Add(p.Window)
		if len(ent.stamps) > 0 {
			dec.ResetAt = ent.stamps[0].Add(p.Window)
		}
		return dec, nil
	}

	ent.stamps = append(ent.stamps, now)
	dec.Allowed = true
	dec.Count = len(ent.stamps)
	dec.ResetAt = ent.stamps[0].Add(p.Window)
	return dec, nil
}

// Len devolve quantas chaves estão vivas no mapa (introspecção/diagnóstico).
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove chaves ociosas (sem acesso há mais de idleTTL).
func (s *MemoryStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}
