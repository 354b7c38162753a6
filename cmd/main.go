package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisclient "github.com/valuematch/valuematch-backend/internal/clients/redis"
	"github.com/valuematch/valuematch-backend/internal/db"
	"github.com/valuematch/valuematch-backend/internal/handlers"
	"github.com/valuematch/valuematch-backend/internal/logger"
	"github.com/valuematch/valuematch-backend/internal/observability"
	"github.com/valuematch/valuematch-backend/internal/repos"
	"github.com/valuematch/valuematch-backend/internal/server"
	"github.com/valuematch/valuematch-backend/internal/services"
	"github.com/valuematch/valuematch-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "valuematch-backend",
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	valueProfileRepo := repos.NewValueProfileRepo(thePG, log)
	companyRepo := repos.NewCompanyRepo(thePG, log)
	recommendationRepo := repos.NewRecommendationRepo(thePG, log)
	aiCallLogRepo := repos.NewAICallLogRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	bucketService, err := services.NewBucketService(log)
	if err != nil {
		log.Warn("Could not init BucketService; generated logo uploads disabled", "error", err)
		bucketService = nil
	}
	companyCache, err := redisclient.NewCompanyCache(log)
	if err != nil {
		log.Warn("Could not init redis company cache; lookups go straight to Postgres", "error", err)
		companyCache = nil
	} else {
		defer companyCache.Close()
	}
	openaiClient, err := services.NewOpenAIClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
	logoService := services.NewLogoService(log, bucketService)
	promptBuilder := services.NewPromptBuilder(log)
	companyResolver := services.NewCompanyResolver(thePG, log, companyRepo, aiCallLogRepo, openaiClient, logoService, promptBuilder, companyCache, services.DefaultValueKeys)
	recommendationService := services.NewRecommendationService(
		thePG,
		log,
		valueProfileRepo,
		recommendationRepo,
		aiCallLogRepo,
		companyResolver,
		openaiClient,
		promptBuilder,
		services.DefaultGenerationConfig(log),
	)

	// Handlers
	log.Info("Setting up handlers from main...")
	recommendationHandler := handlers.NewRecommendationHandler(log, recommendationService)
	companyHandler := handlers.NewCompanyHandler(log, companyResolver)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		RecommendationHandler: recommendationHandler,
		CompanyHandler:        companyHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Info("Server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	stop()

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown failed", "error", err)
	}
	if otelShutdown != nil {
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Warn("Otel shutdown failed", "error", err)
		}
	}
}
