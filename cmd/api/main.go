package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"renderly/internal/account"
	"renderly/internal/adapter/repo"
	"renderly/internal/generation"
	"renderly/internal/http/handlers"
	"renderly/internal/http/httpapi"
	"renderly/internal/infra"
	"renderly/internal/infra/geoip"
	"renderly/internal/infra/google"
	"renderly/internal/middleware"
	"renderly/internal/purchase"
	"renderly/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	users := repo.NewUserRepository(runner)
	jobs := repo.NewJobRepository(runner)
	ledger := repo.NewLedgerRepository(runner)

	var verifier account.GoogleVerifier
	if cfg.GoogleClientID != "" {
		verifier = google.NewVerifier(cfg.GoogleIssuer, cfg.GoogleClientID)
	} else {
		logger.Warn().Msg("google client id missing, google sign-in disabled")
	}

	backend := generation.NewPGQueue(ctx, jobs, logger, generation.PGQueueOptions{
		PollInterval: cfg.JobPollInterval,
		JobDeadline:  cfg.GenerationDeadline,
	})
	auth := account.NewAuthenticator(users, verifier, &logger)
	hub := account.NewHub(jobs, ledger, backend, auth, &logger)

	catalog := purchase.NewCatalog()
	var purchases purchase.Processor = purchase.NewCatalogProcessor(catalog, &logger)
	if cfg.CheckoutBaseURL != "" {
		gateway, err := purchase.NewGateway(purchase.GatewayOptions{
			Catalog: catalog,
			BaseURL: cfg.CheckoutBaseURL,
			APIKey:  cfg.CheckoutAPIKey,
			Logger:  &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure checkout gateway")
		}
		purchases = gateway
	}

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare storage directory")
	}

	var countryLookup middleware.CountryLookup
	geoResolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable")
	} else if geoResolver != nil {
		countryLookup = geoResolver.CountryCode
	}

	app := &handlers.App{
		Users:     users,
		Jobs:      jobs,
		Ledger:    ledger,
		Hub:       hub,
		Catalog:   catalog,
		Purchases: purchases,
		Store:     store,
		Config:    cfg,
		Logger:    &logger,
	}

	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimitPerMin,
		CountryLookup:  countryLookup,
		StaticDir:      cfg.StoragePath,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
