package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/cargo-backoffice/internal/audit"
	"github.com/noah-isme/cargo-backoffice/internal/auth"
	"github.com/noah-isme/cargo-backoffice/internal/benefit"
	"github.com/noah-isme/cargo-backoffice/internal/branch"
	"github.com/noah-isme/cargo-backoffice/internal/common"
	"github.com/noah-isme/cargo-backoffice/internal/config"
	"github.com/noah-isme/cargo-backoffice/internal/goods"
	"github.com/noah-isme/cargo-backoffice/internal/health"
	"github.com/noah-isme/cargo-backoffice/internal/obs"
	"github.com/noah-isme/cargo-backoffice/internal/queue"
	"github.com/noah-isme/cargo-backoffice/internal/ratelimit"
	"github.com/noah-isme/cargo-backoffice/internal/report"
	"github.com/noah-isme/cargo-backoffice/internal/security"
	"github.com/noah-isme/cargo-backoffice/internal/tariff"
)

// RouterConfig collects what the HTTP router needs.
type RouterConfig struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Redis    *redis.Client
	Services *Services
	Checks   []health.Check
	Metrics  *obs.HTTPMetrics
	Registry *prometheus.Registry
	Tracing  bool

	// Inspector backs the queue admin endpoints.
	Inspector queue.Inspector
}

// NewRouter builds the API router.
func NewRouter(rc RouterConfig) (http.Handler, error) {
	cfg := rc.Config
	svc := rc.Services

	globalLimit, err := ratelimit.NewGlobal(rc.Redis, cfg.RateLimitPerMinute)
	if err != nil {
		return nil, err
	}
	loginLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: rc.Redis, Prefix: "ratelimit:login:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("login"),
			Window: cfg.LoginRateWindow,
			Max:    cfg.LoginRateLimit,
		},
		OnError: func(r *http.Request, err error) {
			rc.Logger.Error().Err(err).Str("client_ip", common.ClientIP(r)).Msg("login_rate_limiter_failed")
		},
	}
	idem := common.Idem{R: rc.Redis, TTL: cfg.IdempotencyTTL}
	csrf := security.CSRF{Secure: cfg.IsProduction(), Guarded: cfg.RefreshCookieName}

	authHandler := &auth.Handler{
		Service:           svc.Auth,
		CSRF:              csrf,
		RefreshCookieName: cfg.RefreshCookieName,
		CookieSecure:      cfg.IsProduction(),
	}
	authMW := auth.Middleware{Service: svc.Auth}
	tariffHandler := &tariff.Handler{Svc: svc.Tariffs}
	benefitHandler := &benefit.Handler{Svc: svc.Benefits}
	branchHandler := &branch.Handler{Svc: svc.Branches}
	goodsHandler := &goods.Handler{Svc: svc.Goods}
	reportHandler := &report.Handler{Svc: svc.Reports}
	healthHandler := health.Handler{Checks: rc.Checks}
	auditHandler := audit.Handler{Svc: svc.Audit}
	auditWrites := audit.Middleware{
		Service:         svc.Audit,
		ResourceIDParam: "id",
		OnError: func(r *http.Request, err error) {
			rc.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("audit_record_failed")
		},
	}.Handler
	queueAdmin := &queue.AdminHandler{
		Inspector: rc.Inspector,
		Queues:    []string{report.QueueReports},
		Logger:    rc.Logger.With().Str("component", "queue_admin").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if rc.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if rc.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: rc.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{
		Logger:        rc.Logger,
		SlowThreshold: 2 * time.Second,
		SkipPaths:     []string{"/health/live", "/metrics"},
	}.Middleware)
	hsts := time.Duration(0)
	if cfg.IsProduction() {
		hsts = 365 * 24 * time.Hour
	}
	r.Use(security.Headers{HSTS: hsts, NoStorePrefixes: []string{"/api/v1/auth", "/api/v1/reports"}}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Location", "X-Total-Count", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	r.Handle("/metrics", obs.Handler(rc.Registry))
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(globalLimit)

		v.Route("/auth", func(a chi.Router) {
			a.With(loginLimit.Middleware).Post("/login", authHandler.Login)
			a.Get("/csrf", authHandler.IssueCSRF)
			a.With(csrf.Middleware).Post("/refresh", authHandler.Refresh)
			a.With(csrf.Middleware).Post("/logout", authHandler.Logout)
			a.With(authMW.RequireAuth).Get("/me", authHandler.Me)
		})

		v.Group(func(p chi.Router) {
			p.Use(authMW.RequireAuth)
			p.Use(auditWrites)
			p.Get("/menu", authHandler.Menu)

			p.Route("/goods", func(g chi.Router) {
				g.Use(auth.RequireRole(auth.RoleAdmin, auth.RoleManager, auth.RoleOperator))
				g.Get("/", goodsHandler.List)
				g.Post("/quote", goodsHandler.Quote)
				g.Get("/{id}", goodsHandler.Get)
				g.With(idem.Middleware).Post("/", goodsHandler.Create)
				g.With(idem.Middleware).Put("/{id}", goodsHandler.Update)
			})

			p.Get("/tariffs/lookup", tariffHandler.Lookup)
			p.Get("/benefits/resolve", benefitHandler.Resolve)
			p.Get("/branches", branchHandler.List)
			p.Get("/branches/{id}/nomenclature", branchHandler.Nomenclature)

			p.Group(func(m chi.Router) {
				m.Use(auth.RequireRole(auth.RoleAdmin, auth.RoleManager))
				m.Get("/tariffs", tariffHandler.List)
				m.Put("/tariffs", tariffHandler.Upsert)
				m.Delete("/tariffs/{id}", tariffHandler.Delete)
				m.Post("/discounts", benefitHandler.CreateDiscount)
				m.Delete("/discounts/{id}", benefitHandler.DeleteDiscount)
				m.Post("/cash-backs", benefitHandler.CreateCashback)
				m.Delete("/cash-backs/{id}", benefitHandler.DeleteCashback)

				m.Get("/reports/goods.xlsx", reportHandler.GoodsXLSX)
				m.Post("/reports/goods/exports", reportHandler.CreateExport)
				m.Get("/reports/exports/{id}", reportHandler.Download)
			})

			p.Group(func(a chi.Router) {
				a.Use(auth.RequireRole(auth.RoleAdmin))
				a.Post("/branches", branchHandler.Create)
				a.Put("/branches/{id}/nomenclature", branchHandler.SaveNomenclature)

				a.Get("/admin/audit-logs", auditHandler.List)
				a.Get("/admin/queues", queueAdmin.Stats)
				a.Get("/admin/queues/{queue}/archived", queueAdmin.Archived)
				a.Post("/admin/queues/{queue}/replay", queueAdmin.Replay)
			})
		})
	})

	return r, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
