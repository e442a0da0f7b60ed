package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/promptrefinery/refinery/internal/api/handlers"
	"github.com/promptrefinery/refinery/internal/api/middleware"
	"github.com/promptrefinery/refinery/internal/config"
	"github.com/promptrefinery/refinery/internal/llm"
	"github.com/promptrefinery/refinery/internal/storage"
	"github.com/promptrefinery/refinery/internal/store"
)

type Router struct {
	mux     *chi.Mux
	store   *store.Store
	llm     *llm.Client
	backend storage.Backend
	cfg     *config.Config
}

func NewRouter(st *store.Store, llmClient *llm.Client, backend storage.Backend, cfg *config.Config) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		store:   st,
		llm:     llmClient,
		backend: backend,
		cfg:     cfg,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))

	// Health endpoints
	health := handlers.NewHealthHandler(rt.backend, rt.cfg.Storage.StateKey)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	promptH := handlers.NewPromptHandler(rt.store)
	settingsH := handlers.NewSettingsHandler(rt.store)
	proxyH := handlers.NewProxyHandler(rt.store, rt.llm)
	vaultH := handlers.NewVaultHandler(rt.store)
	proxyLimit := middleware.NewProxyLimiter(1, 5)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/prompts", func(r chi.Router) {
			r.Post("/", promptH.Create)
			r.Get("/", promptH.List)
			r.Get("/{id}", promptH.Get)
			r.Put("/{id}", promptH.Update)
			r.Delete("/{id}", promptH.Delete)
			r.Post("/{id}/revert", promptH.Revert)
			r.Post("/{id}/snapshots", proxyH.AddSnapshot)
			r.With(proxyLimit.Limit).Post("/{id}/test", proxyH.TestPrompt)
		})

		r.Put("/selection", promptH.Select)
		r.Put("/filters", promptH.SetFilters)

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", settingsH.Get)
			r.Put("/", settingsH.Update)
		})

		r.With(proxyLimit.Limit).Post("/critique", proxyH.Critique)
		r.With(proxyLimit.Limit).Post("/test", proxyH.TestRun)

		r.Route("/vault", func(r chi.Router) {
			r.Get("/export", vaultH.Export)
			r.Post("/import", vaultH.Import)
		})
	})

	return r
}
