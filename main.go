package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/steeplehq/steeple-engine/pkg/auth"
	"github.com/steeplehq/steeple-engine/pkg/config"
	"github.com/steeplehq/steeple-engine/pkg/crypto"
	"github.com/steeplehq/steeple-engine/pkg/database"
	"github.com/steeplehq/steeple-engine/pkg/handlers"
	"github.com/steeplehq/steeple-engine/pkg/pco"
	"github.com/steeplehq/steeple-engine/pkg/repositories"
	"github.com/steeplehq/steeple-engine/pkg/services"
	"github.com/steeplehq/steeple-engine/pkg/warehouse"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("database", cfg.Database.Database),
		zap.String("pco_base_url", cfg.PlanningCenter.BaseURL))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = migrationDB.Close()

	encryptor, err := crypto.NewCredentialEncryptor(cfg.CredentialsKey)
	if err != nil {
		logger.Fatal("Failed to create credential encryptor", zap.Error(err))
	}

	tenantRepo := repositories.NewTenantRepository(db)
	userRepo := repositories.NewUserRepository(db)
	jobRepo := repositories.NewSyncJobRepository(db)

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)
	mw := auth.NewMiddleware(tokens, userRepo, tenantRepo, logger)

	tenantSvc := services.NewTenantService(tenantRepo, encryptor, cfg.TrialDurationDays, logger)
	loader := warehouse.NewLoader(db, logger)

	clientOpts := []pco.Option{
		pco.WithBaseURL(cfg.PlanningCenter.BaseURL),
		pco.WithTimeout(cfg.PlanningCenter.RequestTimeout),
		pco.WithPageDelay(cfg.PlanningCenter.PageDelay),
	}
	newClient := func(appID, secret string) *pco.Client {
		return pco.NewClient(appID, secret, logger, clientOpts...)
	}

	syncSvc := services.NewSyncService(tenantRepo, jobRepo, tenantSvc,
		func(appID, secret string) services.PCOClient { return newClient(appID, secret) },
		loader, logger)

	newDiscovery := func(appID, secret string) *pco.MetadataDiscovery {
		return pco.NewMetadataDiscovery(newClient(appID, secret), logger)
	}
	testCreds := func(ctx context.Context, appID, secret string) (bool, string, []string) {
		ok, detail := newClient(appID, secret).TestConnection(ctx)
		if !ok {
			return false, detail, nil
		}
		return true, detail, newDiscovery(appID, secret).DiscoverServices(ctx)
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewAuthHandler(userRepo, tenantSvc, tokens, mw, logger).RegisterRoutes(mux)
	handlers.NewTenantHandler(tenantSvc, testCreds, mw, logger).RegisterRoutes(mux)
	handlers.NewSyncHandler(syncSvc, jobRepo, mw, logger).RegisterRoutes(mux)
	handlers.NewDiscoveryHandler(tenantSvc, newDiscovery, mw, logger).RegisterRoutes(mux)
	handlers.NewViewerHandler(loader, mw, logger).RegisterRoutes(mux)

	addr := net.JoinHostPort(cfg.BindAddr, cfg.Port)
	logger.Info("Starting steeple-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
