package main

import (
	"github.com/habitcraft/habitcraft/backend/internal/config"
	"github.com/habitcraft/habitcraft/backend/internal/handlers"
	"github.com/habitcraft/habitcraft/backend/internal/models"
	"github.com/habitcraft/habitcraft/backend/internal/services"
	"github.com/habitcraft/habitcraft/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg         *config.Config
	issuer      *services.TokenIssuer
	maintenance *services.MaintenanceScheduler
	authHandler *handlers.AuthHandler
	userHandler *handlers.UserHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	if cfg.JWT.IsDevSecret() {
		logger.Warn().Msg("using development JWT secret; set JWT_SECRET in production")
	}

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	db := models.GetDB()

	issuer := services.NewTokenIssuer(&cfg.JWT)
	ledger := services.NewSQLLedger(db)
	users := services.NewSQLUserStore(db)
	events := services.NewSecurityLogger(db)
	authService := services.NewAuthService(users, ledger, issuer, events)

	// Time-driven sweeps: expired ledger rows, old security events
	maintenance := services.NewMaintenanceScheduler(ledger, events, cfg.Log.EventRetentionDays)
	if err := maintenance.Start(); err != nil {
		logger.Fatalf("Failed to start maintenance scheduler: %v", err)
	}

	secureCookies := cfg.Server.Mode == "release"

	return &appServices{
		cfg:         cfg,
		issuer:      issuer,
		maintenance: maintenance,
		authHandler: handlers.NewAuthHandler(authService, secureCookies),
		userHandler: handlers.NewUserHandler(authService),
	}
}

// shutdown gracefully stops all background services.
func (s *appServices) shutdown() {
	s.maintenance.Stop()
	logger.Info().Msg("All schedulers stopped")
}
