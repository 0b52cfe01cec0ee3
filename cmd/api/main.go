package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/enterprise-access/access-api/internal/config"
	"github.com/enterprise-access/access-api/internal/domain/assignment"
	"github.com/enterprise-access/access-api/internal/domain/policy"
	"github.com/enterprise-access/access-api/internal/domain/redemption"
	"github.com/enterprise-access/access-api/internal/middleware"
	"github.com/enterprise-access/access-api/internal/pkg/apiclient"
	"github.com/enterprise-access/access-api/internal/pkg/catalog"
	"github.com/enterprise-access/access-api/internal/pkg/database"
	"github.com/enterprise-access/access-api/internal/pkg/jwt"
	"github.com/enterprise-access/access-api/internal/pkg/lms"
	"github.com/enterprise-access/access-api/internal/pkg/logger"
	"github.com/enterprise-access/access-api/internal/pkg/metrics"
	pkgresponse "github.com/enterprise-access/access-api/internal/pkg/response"
	"github.com/enterprise-access/access-api/internal/pkg/subsidy"
)

const (
	userAgent      = "enterprise-access-api"
	requestTimeout = 60 * time.Second
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting enterprise access API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	m := metrics.Default()
	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- Upstream clients ----------
	newAPI := func(service, baseURL string) *apiclient.Client {
		return apiclient.New(apiclient.Config{
			Service:   service,
			BaseURL:   baseURL,
			Token:     cfg.APIClientToken,
			Timeout:   cfg.APIClientTimeout(),
			UserAgent: userAgent,
			Metrics:   m,
		})
	}
	subsidyClient := subsidy.NewClient(newAPI("subsidy", cfg.SubsidyAPIURL))
	lmsClient := lms.NewClient(newAPI("lms", cfg.LMSAPIURL))
	catalogClient, err := catalog.NewCachedClient(catalog.NewClient(newAPI("catalog", cfg.CatalogAPIURL)), redis, catalog.CacheConfig{
		Size: cfg.ContentMetadataCacheSize,
		TTL:  cfg.ContentMetadataCacheTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create content metadata cache")
	}

	// ---------- Repositories ----------
	policyRepo := policy.NewRepository(db)
	assignmentRepo := assignment.NewRepository(db)

	// ---------- Services ----------
	redemptionService := redemption.NewService(redemption.Deps{
		Policies:    policyRepo,
		Catalog:     catalogClient,
		Ledger:      subsidyClient,
		Identity:    lmsClient,
		Assignments: assignmentRepo,
		Metrics:     m,
	})

	// ---------- Handlers ----------
	redemptionHandler := redemption.NewHandler(redemptionService, redemption.Links{
		SubsidyAPIURL: cfg.SubsidyAPIURL,
		LMSURL:        cfg.LMSURL,
		ServiceURL:    cfg.ServiceURL,
	})

	r := newRouter(cfg, m, middleware.Auth(jwtService), redemptionHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

// newRouter assembles middleware and routes.
func newRouter(cfg *config.Config, m *metrics.Metrics, authMiddleware func(http.Handler) http.Handler, redemptionHandler *redemption.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(m))
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})
	r.Handle("/metrics", m.Handler())
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.NotFound(w, "route not found")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/policy-redemption", redemptionHandler.Routes(authMiddleware))
	})

	return r
}
