package ratelimit

import (
	"encoding/json"
	"net/http"

	"github.com/JonissonGomes/fiap-prova-sub-fase-3-sub000/middleware/ratelimit/domain"
	"github.com/JonissonGomes/fiap-prova-sub-fase-3-sub000/middleware/ratelimit/infra"
)

// StatusOptions configura o endpoint read-only de introspecção.
type StatusOptions struct {
	Table *domain.PolicyTable
	// DistributedEnabled diz se o gateway subiu com backend Redis configurado.
	DistributedEnabled bool
	RedisAddr          string
	// Local é o contador de fallback; expõe o tamanho do mapa em memória.
	Local *infra.MemoryStore
	// Stats (opcional) soma allowed/denied/fallback desde o boot.
	Stats *infra.MemoryStatsStore
}

type statusPolicy struct {
	Limit         int   `json:"limit"`
	WindowSeconds int64 `json:"window_seconds"`
}

type statusResponse struct {
	Policies map[string]statusPolicy `json:"policies"`
	Backend  struct {
		Distributed bool   `json:"distributed"`
		RedisAddr   string `json:"redis_addr,omitempty"`
		LocalKeys   int    `json:"local_keys"`
	} `json:"backend"`
	Totals *infra.Counters `json:"totals,omitempty"`
}

// StatusHandler devolve a configuração viva do rate limit e o estado do
// fallback local. Diagnóstico para operadores; não participa da admissão.
func StatusHandler(opts StatusOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		table := opts.Table
		if table == nil {
			table = domain.DefaultTable()
		}

		resp := statusResponse{Policies: make(map[string]statusPolicy)}
		for cat, p := range table.Policies() {
			resp.Policies[string(cat)] = statusPolicy{
				Limit:         p.Limit,
				WindowSeconds: int64(p.Window.Seconds()),
			}
		}
		resp.Backend.Distributed = opts.DistributedEnabled
		resp.Backend.RedisAddr = opts.RedisAddr
		if opts.Local != nil {
			resp.Backend.LocalKeys = opts.Local.Len()
		}
		if opts.Stats != nil {
			total := opts.Stats.Total()
			resp.Totals = &total
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}
