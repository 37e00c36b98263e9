package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shopfront/catalog-backend/internal/http/handler"
	"github.com/shopfront/catalog-backend/internal/http/middleware"
	"github.com/shopfront/catalog-backend/internal/http/response"
	"github.com/shopfront/catalog-backend/internal/service"
)

type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Dependencies struct {
	AuthHandler     *handler.AuthHandler
	UserHandler     *handler.UserHandler
	ProductHandler  *handler.ProductHandler
	CategoryHandler *handler.CategoryHandler
	Verifier        service.AccessVerifier
	Admins          middleware.AdminChecker
	AuthRateLimiter func(http.Handler) http.Handler
	Readiness       []ReadinessCheck
	Logger          *slog.Logger
	EnableOTelHTTP  bool
}

// Route is one entry of the API table. Routes are authenticated unless Public
// is set; AdminOnly additionally requires an admin principal.
type Route struct {
	Method      string
	Pattern     string
	Handler     http.HandlerFunc
	Public      bool
	AdminOnly   bool
	RateLimited bool
}

// Routes lists every /api/v1 endpoint.
func Routes(dep Dependencies) []Route {
	a, u, p, c := dep.AuthHandler, dep.UserHandler, dep.ProductHandler, dep.CategoryHandler
	return []Route{
		{Method: http.MethodPost, Pattern: "/auth/register", Handler: a.Register, Public: true, RateLimited: true},
		{Method: http.MethodPost, Pattern: "/auth/login", Handler: a.Login, Public: true, RateLimited: true},
		{Method: http.MethodPost, Pattern: "/auth/refresh", Handler: a.Refresh, Public: true, RateLimited: true},
		{Method: http.MethodPost, Pattern: "/auth/logout", Handler: a.Logout, Public: true},
		{Method: http.MethodPost, Pattern: "/auth/logout-all", Handler: a.LogoutAll},
		{Method: http.MethodGet, Pattern: "/me", Handler: a.Me},
		{Method: http.MethodGet, Pattern: "/me/sessions", Handler: a.Sessions},

		{Method: http.MethodGet, Pattern: "/users", Handler: u.List, AdminOnly: true},
		{Method: http.MethodPost, Pattern: "/users", Handler: u.Create, AdminOnly: true},
		{Method: http.MethodGet, Pattern: "/users/{id}", Handler: u.Get},
		{Method: http.MethodPatch, Pattern: "/users/{id}", Handler: u.Update},
		{Method: http.MethodDelete, Pattern: "/users/{id}", Handler: u.Delete, AdminOnly: true},

		{Method: http.MethodGet, Pattern: "/products", Handler: p.List, Public: true},
		{Method: http.MethodGet, Pattern: "/products/{id}", Handler: p.Get, Public: true},
		{Method: http.MethodPost, Pattern: "/products", Handler: p.Create, AdminOnly: true},
		{Method: http.MethodPatch, Pattern: "/products/{id}", Handler: p.Update, AdminOnly: true},
		{Method: http.MethodDelete, Pattern: "/products/{id}", Handler: p.Delete, AdminOnly: true},
		{Method: http.MethodPost, Pattern: "/products/{id}/like", Handler: p.ToggleLike},

		{Method: http.MethodGet, Pattern: "/categories", Handler: c.List, Public: true},
		{Method: http.MethodGet, Pattern: "/categories/{id}", Handler: c.Get, Public: true},
		{Method: http.MethodGet, Pattern: "/categories/{id}/children", Handler: c.Children, Public: true},
		{Method: http.MethodPost, Pattern: "/categories", Handler: c.Create, AdminOnly: true},
		{Method: http.MethodPatch, Pattern: "/categories/{id}", Handler: c.Update, AdminOnly: true},
		{Method: http.MethodDelete, Pattern: "/categories/{id}", Handler: c.Delete, AdminOnly: true},
	}
}

func NewRouter(dep Dependencies) http.Handler {
	logger := dep.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger(logger))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		results := make(map[string]string, len(dep.Readiness))
		ready := true
		for _, check := range dep.Readiness {
			if err := check.Check(ctx); err != nil {
				results[check.Name] = err.Error()
				ready = false
				continue
			}
			results[check.Name] = "ok"
		}
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		for _, route := range Routes(dep) {
			r.With(chainFor(route, dep)...).Method(route.Method, route.Pattern, route.Handler)
		}
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}

func chainFor(route Route, dep Dependencies) []func(http.Handler) http.Handler {
	var chain []func(http.Handler) http.Handler
	if route.RateLimited && dep.AuthRateLimiter != nil {
		chain = append(chain, dep.AuthRateLimiter)
	}
	if !route.Public || route.AdminOnly {
		chain = append(chain, middleware.AuthMiddleware(dep.Verifier))
	}
	if route.AdminOnly {
		chain = append(chain, middleware.RequireAdmin(dep.Admins))
	}
	return chain
}
