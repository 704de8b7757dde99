// Package api wires the HTTP surface of the holdings import service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ndewijer/Holdings-Import-Backend/internal/api/handlers"
	custommiddleware "github.com/ndewijer/Holdings-Import-Backend/internal/api/middleware"
	"github.com/ndewijer/Holdings-Import-Backend/internal/config"
	"github.com/ndewijer/Holdings-Import-Backend/internal/logging"
	"github.com/ndewijer/Holdings-Import-Backend/internal/service"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	systemService *service.SystemService,
	portfolioService *service.PortfolioService,
	sessionService *service.SessionService,
	cfg *config.Config,
	logger *logging.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger(logger.With("http")))
	r.Use(middleware.Recoverer)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	uploadLimit := custommiddleware.RateLimit(cfg.Import.RatePerSecond, cfg.Import.RateBurst, logger.With("ratelimit"))
	requireAPIKey := custommiddleware.APIKeyMiddleware(cfg.Auth.InternalAPIKey, cfg.Auth.TokenTTL)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// System namespace
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(systemService)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
		})

		r.Route("/owners/{uuid}", func(r chi.Router) {
			r.Use(custommiddleware.ValidateUUIDMiddleware)

			portfolioHandler := handlers.NewPortfolioHandler(portfolioService)
			r.Get("/positions", portfolioHandler.Positions)
			r.Get("/summary", portfolioHandler.Summary)
			r.Get("/history", portfolioHandler.History)

			importHandler := handlers.NewImportHandler(sessionService, cfg.Import.MaxUploadSizeBytes, logger)
			r.Route("/imports", func(r chi.Router) {
				r.Post("/", importHandler.CreateSession)

				r.Route("/{sessionId}", func(r chi.Router) {
					r.Use(custommiddleware.ValidateUUIDParam("sessionId"))
					r.Get("/", importHandler.GetSession)
					r.Delete("/", importHandler.CancelSession)
					r.With(uploadLimit).Post("/files", importHandler.AddFiles)
					r.Post("/diff", importHandler.Diff)
					r.With(requireAPIKey).Post("/apply", importHandler.Apply)
				})
			})
		})
	})

	return r
}
