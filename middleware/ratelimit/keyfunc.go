package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

type KeyFunc func(r *http.Request) string

// DefaultKeyFunc resolve a identidade de rate limit da requisição.
//
// Ordem: header de chave (se configurado) → primeiro IP do X-Forwarded-For
// (se confiável) → host do RemoteAddr → "unknown". Com hashBearer ligado,
// credencial Bearer vira sufixo ":<digest curto>" — usuários autenticados
// atrás do mesmo IP ganham buckets separados; tráfego anônimo divide o
// bucket do endereço puro.
//
// Função pura da requisição, nunca falha: entrada malformada degrada para o
// endereço puro.
func DefaultKeyFunc(keyHeader string, trustXFF bool, hashBearer bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		base := clientAddress(r, trustXFF)
		if hashBearer {
			if digest := bearerDigest(r.Header.Get("Authorization")); digest != "" {
				return base + ":" + digest
			}
		}
		return base
	}
}

func clientAddress(r *http.Request, trustXFF bool) string {
	if trustXFF {
		// pega o primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if len(parts) > 0 {
				ip := strings.TrimSpace(parts[0])
				if ip != "" {
					return ip
				}
			}
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// bearerDigest devolve um resumo curto, de tamanho fixo e não reversível da
// credencial. sha256 em vez de um hash genérico: colisão forjada não pode
// virar bypass de cota.
func bearerDigest(authz string) string {
	const prefix = "Bearer "
	authz = strings.TrimSpace(authz)
	if len(authz) <= len(prefix) || !strings.EqualFold(authz[:len(prefix)], prefix) {
		return ""
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:12]
}
