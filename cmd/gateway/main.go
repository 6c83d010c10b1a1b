package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/JonissonGomes/fiap-prova-sub-fase-3-sub000/middleware/ratelimit"
	"github.com/JonissonGomes/fiap-prova-sub-fase-3-sub000/middleware/ratelimit/application"
	"github.com/JonissonGomes/fiap-prova-sub-fase-3-sub000/middleware/ratelimit/domain"
	"github.com/JonissonGomes/fiap-prova-sub-fase-3-sub000/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		log.Fatalf("invalid UPSTREAM_URL: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("proxy error: %v", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	table := domain.DefaultTable()
	applyPolicyOverrides(table)
	// tabela de cotas ambígua é fatal: melhor não subir do que subir sem limite claro
	if err := table.Validate(); err != nil {
		log.Fatalf("invalid rate limit policy table: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	local := infra.NewMemoryStore()
	local.StartJanitor(ctx)

	var primary domain.CounterStore
	distributed := cfg.redisAddr != "" && !cfg.forceLocal
	if distributed {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		defer func() { _ = rdb.Close() }()

		store := infra.NewRedisStore(rdb)
		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		err := store.Ping(pingCtx)
		cancelPing()
		if err != nil {
			// não derruba o serviço: sobe no fallback local e o Service
			// volta a tentar o Redis a cada chamada
			log.Printf("redis ping failed, starting on local fallback: %v", err)
		}
		primary = store
	}

	svc := application.NewService(primary, local, log.Default())

	statsMem := infra.NewMemoryStatsStore()
	var stats domain.StatsStore = statsMem
	if cfg.statsRedisEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.statsRedisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		defer func() { _ = rdb.Close() }()

		redisStats := infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackKeys(cfg.statsTrackKeys),
		)
		stats = multiStats{statsMem, redisStats}
	}

	h := http.Handler(proxy)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
	})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Service:            svc,
		Table:              table,
		Stats:              stats,
		KeyHeader:          cfg.keyHeader,
		TrustXForwardedFor: cfg.trustXFF,
		HashBearer:         cfg.hashBearer,
		CheckTimeout:       cfg.checkTimeout,
	})(h)

	mux := http.NewServeMux()
	if cfg.statusEnabled {
		// introspecção fica fora da cadeia de rate limit (diagnóstico de operador)
		mux.Handle(cfg.statusPath, ratelimit.StatusHandler(ratelimit.StatusOptions{
			Table:              table,
			DistributedEnabled: distributed,
			RedisAddr:          cfg.redisAddr,
			Local:              local,
			Stats:              statsMem,
		}))
	}
	mux.Handle("/", h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("gateway listening on %s -> %s", cfg.listenAddr, target)
	log.Printf("rate: distributed=%v redisAddr=%q forceLocal=%v keyHeader=%q trustXFF=%v hashBearer=%v checkTimeout=%s",
		distributed, cfg.redisAddr, cfg.forceLocal, cfg.keyHeader, cfg.trustXFF, cfg.hashBearer, cfg.checkTimeout)
	for cat, p := range table.Policies() {
		log.Printf("rate policy: %s limit=%d window=%s", cat, p.Limit, p.Window)
	}
	log.Printf("concurrency: max=%d acquireTimeout=%s", cfg.concurrencyMax, cfg.concurrencyTimeout)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

// multiStats replica cada evento para todos os destinos (memória p/ status,
// Redis p/ séries). Best-effort: o primeiro erro é retornado mas nada é cortado.
type multiStats []domain.StatsStore

func (m multiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var firstErr error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type config struct {
	listenAddr  string
	upstreamURL string

	redisAddr     string
	redisPassword string
	redisDB       int
	forceLocal    bool

	keyHeader    string
	trustXFF     bool
	hashBearer   bool
	checkTimeout time.Duration

	concurrencyMax     int
	concurrencyTimeout time.Duration

	statsRedisEnabled bool
	statsRedisAddr    string
	statsPrefix       string
	statsTTL          time.Duration
	statsBucket       string
	statsTrackKeys    bool

	statusEnabled bool
	statusPath    string
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")

	cfg.redisAddr = os.Getenv("REDIS_ADDR")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)
	// flag de contingência: ignora o Redis mesmo configurado e fica só no
	// contador local (sem consistência entre instâncias)
	cfg.forceLocal = getenvBoolDefault("RATE_FORCE_LOCAL", false)

	cfg.keyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.hashBearer = getenvBoolDefault("RATE_HASH_BEARER", true)
	cfg.checkTimeout = getenvDurationDefault("RATE_CHECK_TIMEOUT", 300*time.Millisecond)

	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.statsRedisEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.statsRedisAddr = getenvDefault("RATE_STATS_REDIS_ADDR", cfg.redisAddr)
	cfg.statsPrefix = getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats")
	cfg.statsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.statsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.statsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	cfg.statusEnabled = getenvBoolDefault("STATUS_ENABLED", true)
	cfg.statusPath = getenvDefault("STATUS_PATH", "/ratelimit/status")

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	if cfg.statsRedisEnabled && strings.TrimSpace(cfg.statsRedisAddr) == "" {
		return config{}, errors.New("RATE_STATS_REDIS_ADDR (or REDIS_ADDR) is required when RATE_STATS_ENABLED=true")
	}
	if cfg.checkTimeout <= 0 {
		return config{}, errors.New("RATE_CHECK_TIMEOUT must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if !strings.HasPrefix(cfg.statusPath, "/") {
		return config{}, errors.New("STATUS_PATH must start with /")
	}
	return cfg, nil
}

// applyPolicyOverrides lê RATE_<CATEGORIA>_LIMIT / RATE_<CATEGORIA>_WINDOW.
// Valor ausente mantém o padrão; valor inválido é pego pelo Validate.
func applyPolicyOverrides(table *domain.PolicyTable) {
	names := map[domain.Category]string{
		domain.CategoryAuth:    "AUTH",
		domain.CategoryListing: "LISTING",
		domain.CategoryAdmin:   "ADMIN",
		domain.CategoryHealth:  "HEALTH",
		domain.CategoryGeneral: "GENERAL",
	}
	for cat, name := range names {
		p := table.PolicyFor(cat)
		p.Limit = getenvIntDefault("RATE_"+name+"_LIMIT", p.Limit)
		p.Window = getenvDurationDefault("RATE_"+name+"_WINDOW", p.Window)
		table.SetPolicy(cat, p)
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
