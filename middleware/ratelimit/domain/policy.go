package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Category agrupa rotas com a mesma cota. Conjunto fixo, conhecido no startup.
type Category string

const (
	CategoryAuth    Category = "auth"
	CategoryListing Category = "listing"
	CategoryAdmin   Category = "admin"
	CategoryHealth  Category = "health"
	CategoryGeneral Category = "general"
)

// Policy é a cota de uma categoria: no máximo Limit requisições por Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// PrefixRule associa um prefixo de rota a uma categoria.
// Method vazio casa com qualquer método (ex: listing usa GET).
type PrefixRule struct {
	Prefix   string
	Method   string
	Category Category
}

// PolicyTable classifica rotas em categorias e devolve a política de cada uma.
//
// Ordem de classificação: match exato do path; depois o prefixo mais longo
// que casar; por fim CategoryGeneral. Determinística e sem efeito colateral.
type PolicyTable struct {
	exact    map[string]Category
	prefixes []PrefixRule
	policies map[Category]Policy
}

// DefaultPolicies reproduz as cotas dos serviços (requisições por janela de 60s).
func DefaultPolicies() map[Category]Policy {
	return map[Category]Policy{
		CategoryAuth:    {Limit: 5, Window: 60 * time.Second},
		CategoryListing: {Limit: 30, Window: 60 * time.Second},
		CategoryAdmin:   {Limit: 50, Window: 60 * time.Second},
		CategoryGeneral: {Limit: 100, Window: 60 * time.Second},
		CategoryHealth:  {Limit: 200, Window: 60 * time.Second},
	}
}

// DefaultTable monta a tabela com as rotas dos serviços (auth, customer,
// core/vehicle, sales, payment) e as cotas padrão.
//
// Health entra como match exato E prefixo: tráfego de monitoramento nunca
// pode cair em general, senão sonda e cliente disputam a mesma cota.
func DefaultTable() *PolicyTable {
	t := &PolicyTable{
		exact: map[string]Category{
			"/health":  CategoryHealth,
			"/healthz": CategoryHealth,
		},
		prefixes: []PrefixRule{
			{Prefix: "/health", Category: CategoryHealth},
			{Prefix: "/auth", Category: CategoryAuth},
			{Prefix: "/login", Category: CategoryAuth},
			{Prefix: "/admin", Category: CategoryAdmin},
			{Prefix: "/customers", Method: "GET", Category: CategoryListing},
			{Prefix: "/vehicles", Method: "GET", Category: CategoryListing},
			{Prefix: "/sales", Method: "GET", Category: CategoryListing},
			{Prefix: "/payments", Method: "GET", Category: CategoryListing},
		},
		policies: DefaultPolicies(),
	}
	t.sortPrefixes()
	return t
}

// NewTable monta uma tabela customizada. Entradas de política ausentes caem
// nos valores de DefaultPolicies.
func NewTable(exact map[string]Category, prefixes []PrefixRule, policies map[Category]Policy) *PolicyTable {
	t := &PolicyTable{
		exact:    make(map[string]Category, len(exact)),
		prefixes: append([]PrefixRule(nil), prefixes...),
		policies: DefaultPolicies(),
	}
	for path, cat := range exact {
		t.exact[path] = cat
	}
	for cat, p := range policies {
		t.policies[cat] = p
	}
	t.sortPrefixes()
	return t
}

func (t *PolicyTable) sortPrefixes() {
	// prefixo mais longo primeiro; estável para desempate previsível
	sort.SliceStable(t.prefixes, func(i, j int) bool {
		return len(t.prefixes[i].Prefix) > len(t.prefixes[j].Prefix)
	})
}

// SetPolicy sobrescreve a cota de uma categoria (ex: override vindo de env).
func (t *PolicyTable) SetPolicy(cat Category, p Policy) {
	t.policies[cat] = p
}

// Classify devolve a categoria de uma rota.
func (t *PolicyTable) Classify(method, path string) Category {
	if cat, ok := t.exact[path]; ok {
		return cat
	}
	for _, rule := range t.prefixes {
		if rule.Method != "" && !strings.EqualFold(rule.Method, method) {
			continue
		}
		if strings.HasPrefix(path, rule.Prefix) {
			return rule.Category
		}
	}
	return CategoryGeneral
}

// PolicyFor devolve a política da categoria. Categoria desconhecida cai em general.
func (t *PolicyTable) PolicyFor(cat Category) Policy {
	if p, ok := t.policies[cat]; ok {
		return p
	}
	return t.policies[CategoryGeneral]
}

// Policies devolve uma cópia da tabela de cotas (para introspecção).
func (t *PolicyTable) Policies() map[Category]Policy {
	out := make(map[Category]Policy, len(t.policies))
	for cat, p := range t.policies {
		out[cat] = p
	}
	return out
}

// Validate falha se alguma cota for ambígua (limite ou janela não positivos).
// Tabela inválida é erro fatal de configuração: o serviço não deve subir.
func (t *PolicyTable) Validate() error {
	for _, cat := range []Category{CategoryAuth, CategoryListing, CategoryAdmin, CategoryHealth, CategoryGeneral} {
		p, ok := t.policies[cat]
		if !ok {
			return fmt.Errorf("policy missing for category %q", cat)
		}
		if p.Limit <= 0 {
			return fmt.Errorf("policy %q: limit must be > 0, got %d", cat, p.Limit)
		}
		if p.Window <= 0 {
			return fmt.Errorf("policy %q: window must be > 0, got %s", cat, p.Window)
		}
	}
	for _, rule := range t.prefixes {
		if rule.Prefix == "" {
			return fmt.Errorf("prefix rule for category %q has empty prefix", rule.Category)
		}
	}
	return nil
}
