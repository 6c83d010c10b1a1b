package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/JonissonGomes/fiap-prova-sub-fase-3-sub000/middleware/ratelimit/application"
	"github.com/JonissonGomes/fiap-prova-sub-fase-3-sub000/middleware/ratelimit/domain"
)

type Options struct {
	// Service decide a admissão (Redis preferido, fallback local). Obrigatório.
	Service *application.Service
	// Table classifica rota → categoria → cota. Nil usa domain.DefaultTable.
	Table *domain.PolicyTable
	Stats domain.StatsStore

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	// HashBearer separa usuários autenticados atrás do mesmo IP.
	HashBearer bool

	RejectStatus int
	// CheckTimeout limita a ida ao backend do contador — o único ponto
	// bloqueante por requisição. Independente (e bem menor que) da janela.
	CheckTimeout time.Duration
}

// rejeição estruturada do 429 (contrato com os clientes dos serviços)
type rejectionBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// Middleware intercepta toda requisição antes dos handlers de rota:
// resolve a chave, classifica a rota, consulta o contador e ou encaminha
// (com headers X-RateLimit-*) ou corta com 429 + corpo JSON.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Table == nil {
		opts.Table = domain.DefaultTable()
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 300 * time.Millisecond
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor, opts.HashBearer)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain.Key(opts.KeyFn(r))
			category := opts.Table.Classify(r.Method, r.URL.Path)
			policy := opts.Table.PolicyFor(category)

			checkCtx, cancel := context.WithTimeout(r.Context(), opts.CheckTimeout)
			dec := opts.Service.Decide(checkCtx, key, policy)
			cancel()

			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:      key,
					Category: category,
					Allowed:  dec.Allowed,
					Fallback: dec.Fallback,
					Method:   r.Method,
					Path:     r.URL.Path,
					At:       time.Now(),
				})
			}

			writeRateHeaders(w, dec)

			if !dec.Allowed {
				retry := int(dec.RetryAfter.Seconds())
				w.Header().Set("Retry-After", formatInt(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(opts.RejectStatus)
				_ = json.NewEncoder(w).Encode(rejectionBody{
					Error:      "Rate limit exceeded",
					Message:    "Too many requests. Try again in " + formatInt(retry) + "s.",
					RetryAfter: retry,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeRateHeaders(w http.ResponseWriter, dec domain.Decision) {
	w.Header().Set("X-RateLimit-Limit", formatInt(dec.Limit))
	w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining()))

	reset := dec.ResetAt
	if reset.IsZero() {
		reset = time.Now().Add(dec.Window)
	}
	w.Header().Set("X-RateLimit-Reset", formatInt64(reset.Unix()))
}
