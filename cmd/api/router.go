package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/collections-portal/internal/domain/common"
	portalhandler "github.com/FACorreiaa/collections-portal/internal/domain/portal/handler"
	"github.com/FACorreiaa/collections-portal/pkg/config"
	"github.com/FACorreiaa/collections-portal/pkg/interceptors"
	"github.com/FACorreiaa/collections-portal/pkg/observability"
)

// HealthChecker is the part of db.DB the health routes need.
type HealthChecker interface {
	Health(ctx context.Context) error
	Stats() map[string]any
}

// SetupRouter configures all routes and returns the HTTP service
func SetupRouter(deps *Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	tracer := otel.GetTracerProvider().Tracer("collections/api")
	r.Use(
		interceptors.RequestID("X-Request-ID"),
		interceptors.Tracing(tracer),
		interceptors.Logging(deps.Logger),
		interceptors.Recovery(deps.Logger),
	)
	if cfg.Server.RateLimitPerSecond > 0 && cfg.Server.RateLimitBurst > 0 {
		r.Use(interceptors.RateLimit(rate.NewLimiter(
			rate.Limit(float64(cfg.Server.RateLimitPerSecond)),
			cfg.Server.RateLimitBurst,
		)))
	}
	if cfg.Observability.MetricsEnabled {
		r.Use(observability.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(noStore)

		r.Route("/auth", deps.AuthHandler.Routes)

		r.Route("/crm", func(r chi.Router) {
			r.Use(interceptors.RequireAuth(deps.TokenManager))

			r.Get("/me", deps.AuthHandler.Me)
			deps.AccountHandler.Routes(r)
			deps.ImportHandler.Routes(r)
			deps.PaymentHandler.Routes(r)
			deps.CallWindowHandler.Routes(r)

			r.Group(func(r chi.Router) {
				r.Use(interceptors.RequireRole(common.RoleSiteAdmin, common.RoleCRMAdmin))
				r.Post("/clients", deps.AccountHandler.CreateClient)
				r.Post("/staff", deps.AuthHandler.CreateStaff)
			})
		})

		r.Route("/consumer", func(r chi.Router) {
			hops := cfg.Server.TrustedProxyHops
			deps.PortalHandler.Routes(r, portalhandler.Limits{
				Lookup: interceptors.PerMinute(cfg.Server.ConsumerLookupPerMin).TrustProxies(hops).Middleware,
				Verify: interceptors.PerMinute(cfg.Server.ConsumerVerifyPerMin).TrustProxies(hops).Middleware,
			})
		})
	})
	deps.Logger.Info("API routes configured")

	registerUtilityRoutes(r, deps.DB, cfg, deps.Logger)

	return newCORS(cfg.Server.AllowedOrigins).Handler(r)
}

func newCORS(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           7200,
	})
}

// noStore keeps API responses, which carry account data, out of caches.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

// registerUtilityRoutes registers health check, metrics, and other utility routes
func registerUtilityRoutes(r chi.Router, health HealthChecker, cfg *config.Config, logger *slog.Logger) {
	ping := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return health.Health(ctx)
	}

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, writeErr := w.Write([]byte("database unhealthy")); writeErr != nil {
				logger.Error("failed to write health response", slog.Any("error", writeErr))
			}
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Error("failed to write health response", slog.Any("error", err))
		}
	})

	r.Get("/health/details", func(w http.ResponseWriter, req *http.Request) {
		type status struct {
			Status string         `json:"status"`
			Detail string         `json:"detail,omitempty"`
			Stats  map[string]any `json:"stats,omitempty"`
		}
		result := map[string]status{
			"db":    {Status: "ok"},
			"ai":    {Status: "ok"},
			"ready": {Status: "ok"},
		}

		if err := ping(req.Context()); err != nil {
			result["db"] = status{Status: "fail", Detail: "database unreachable"}
			result["ready"] = status{Status: "fail", Detail: "db unavailable"}
		} else {
			result["db"] = status{Status: "ok", Stats: health.Stats()}
		}
		if cfg.AI.APIKey == "" {
			result["ai"] = status{Status: "warn", Detail: "GEMINI_API_KEY missing; manual mapping only"}
		}

		code := http.StatusOK
		if result["ready"].Status == "fail" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(result); err != nil {
			logger.Error("failed to encode health details", slog.Any("error", err))
		}
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ready")); err != nil {
			logger.Error("failed to write readiness response", slog.Any("error", err))
		}
	})

	if cfg.Observability.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("registered metrics endpoint", slog.String("path", "/metrics"))
	}
}
